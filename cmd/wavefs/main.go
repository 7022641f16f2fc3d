// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// wavefs stores payloads as wave-encoded entries in an append-only
// log, analyzes them with salience detection and mounts the store as
// a read-only filesystem.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/cmd/wavefs/commands"
)

func main() {
	if err := run(); err != nil {
		// A command that returns ExitError has already written its
		// own output.
		var exitError *cli.ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var usageError *cli.UsageError
		if errors.As(err, &usageError) {
			os.Exit(usageError.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	return commands.Root(commands.StandardApp()).Execute(context.Background(), os.Args[1:])
}
