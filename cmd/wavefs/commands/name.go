// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
)

func nameCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:    "name",
		Summary: "Manage names for stored waves",
		Description: `Names are mutable, path-like pointers to stored waves. Each name
records the frequency its wave decodes at. Slashes in a name become
directories under names/ in a FUSE mount.`,
		Subcommands: []*cli.Command{
			nameSetCommand(app),
			nameRemoveCommand(app),
			nameListCommand(app),
		},
	}
}

type nameSetParams struct {
	StoreFlags
	Frequency string `json:"frequency" flag:"frequency,f" desc:"frequency the wave was stored at (default: the store's)"`
}

func nameSetCommand(app *App) *cli.Command {
	var params nameSetParams

	return &cli.Command{
		Name:    "set",
		Summary: "Point a name at a stored wave",
		Usage:   "wavefs name set <name> <signature> [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.Usagef("name and signature required\n\nUsage: wavefs name set <name> <signature> [flags]")
			}
			if err := wavestore.ValidateName(args[0]); err != nil {
				return cli.Usagef("%v", err)
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			resolved, err := session.resolve(args[1], params.Frequency)
			if err != nil {
				return err
			}
			record, err := session.store.SetName(args[0], resolved.Signature, resolved.Frequency)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Stdout, "%s -> %s\n", record.Name, record.Target.Short())
			return nil
		},
	}
}

type nameRemoveParams struct {
	StoreFlags
}

func nameRemoveCommand(app *App) *cli.Command {
	var params nameRemoveParams

	return &cli.Command{
		Name:    "rm",
		Summary: "Remove names",
		Usage:   "wavefs name rm <name>... [flags]",
		Description: `Remove names. The waves they pointed at stay in the store; use
"wavefs rm" to delete a wave.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Usagef("at least one name required")
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			for _, name := range args {
				if err := session.store.RemoveName(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type nameListParams struct {
	StoreFlags
	cli.JSONOutput
}

func nameListCommand(app *App) *cli.Command {
	var params nameListParams

	return &cli.Command{
		Name:    "ls",
		Summary: "List names",
		Usage:   "wavefs name ls [prefix] [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Usagef("name ls takes at most one prefix")
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			records := session.store.Names().List(prefix)
			if done, err := params.EmitJSON(app.Stdout, records); done {
				return err
			}
			writer := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "NAME\tTARGET\tSIZE\tFREQUENCY\tUPDATED\n")
			for _, record := range records {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%g\t%s\n",
					record.Name,
					record.Target.Short(),
					formatSize(record.Size),
					record.Frequency,
					record.UpdatedAt.Format(time.RFC3339),
				)
			}
			return writer.Flush()
		},
	}
}
