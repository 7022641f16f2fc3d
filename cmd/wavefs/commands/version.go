// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
)

// Version is set at link time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = ""

func versionCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(ctx context.Context, args []string) error {
			fmt.Fprintf(app.Stdout, "wavefs %s\n", buildVersion())
			fmt.Fprintf(app.Stdout, "store format %d\n", wavestore.FormatVersion)
			return nil
		},
	}
}

func buildVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
