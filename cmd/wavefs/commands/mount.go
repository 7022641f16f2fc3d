// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/wavestore/fuse"
)

type mountParams struct {
	StoreFlags
	AllowOther bool `json:"allow_other" flag:"allow-other" desc:"let other users read the mount (overrides mount.allow_other)"`
	ReadOnly   bool `json:"read_only"   flag:"read-only"   desc:"reject writes through the mount (overrides mount.read_only)"`
}

func mountCommand(app *App) *cli.Command {
	var params mountParams

	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the store as a filesystem",
		Usage:   "wavefs mount <mountpoint> [flags]",
		Description: `Mount the store with FUSE and serve until interrupted.

  names/        named waves, slashes as directories
  signatures/   every wave by full signature; short references and
                prefixes also resolve (read-only)

Writing a file under names/ stores the new content as a wave when the
file is closed and points the name at it. Removing a file removes the
name only. --read-only rejects all writes.

The store stays locked while mounted.`,
		Examples: []cli.Example{
			{Description: "Mount and read a named wave", Command: "wavefs mount /mnt/waves & cat /mnt/waves/names/greetings/hello"},
			{Description: "Mount without write access", Command: "wavefs mount /mnt/waves --read-only"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("mountpoint required\n\nUsage: wavefs mount <mountpoint> [flags]")
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			server, err := fuse.Mount(fuse.Options{
				Mountpoint: args[0],
				Store:      session.store,
				ReadOnly:   params.ReadOnly || session.config.Mount.ReadOnly,
				AllowOther: params.AllowOther || session.config.Mount.AllowOther,
				Logger:     session.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			served := make(chan struct{})
			go func() {
				server.Wait()
				close(served)
			}()

			select {
			case <-ctx.Done():
				session.logger.Info("unmounting", "mountpoint", args[0])
				if err := server.Unmount(); err != nil {
					return fmt.Errorf("unmounting %s: %w", args[0], err)
				}
				<-served
			case <-served:
				// Unmounted from outside, e.g. fusermount -u.
			}
			return nil
		},
	}
}
