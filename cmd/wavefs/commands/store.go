// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
)

// --- put ---

type putParams struct {
	StoreFlags
	cli.JSONOutput
	Name      string `json:"name"      flag:"name,n"      desc:"also point this name at the stored wave"`
	Metadata  string `json:"metadata"  flag:"metadata,m"  desc:"metadata stored and signed with the wave"`
	Frequency string `json:"frequency" flag:"frequency,f" desc:"base frequency, preset or number (default: the store's)"`
}

type putResult struct {
	Signature wavestore.Signature `json:"signature"`
	Short     string              `json:"short"`
	Size      int                 `json:"size"`
	Frequency float64             `json:"frequency"`
	Name      string              `json:"name,omitempty"`
}

func putCommand(app *App) *cli.Command {
	var params putParams

	return &cli.Command{
		Name:    "put",
		Summary: "Store a payload from a file or stdin",
		Usage:   "wavefs put [file|-] [flags]",
		Description: `Encode a payload as a wave and append it to the store.

Reads the named file, or stdin when no file is given or the file is
"-". The signature is printed on success. Storing the same payload
with the same metadata and frequency again is a no-op that prints the
same signature.

The frequency is not recorded in the log. Use --name to keep it with a
name, or remember it: the payload only decodes at that frequency.`,
		Examples: []cli.Example{
			{Description: "Store a file", Command: "wavefs put report.pdf"},
			{Description: "Store stdin at the octave preset under a name", Command: "echo hello | wavefs put --frequency octave --name greetings/hello"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Usagef("put takes at most one file argument")
			}
			if params.Name != "" {
				if err := wavestore.ValidateName(params.Name); err != nil {
					return cli.Usagef("--name: %v", err)
				}
			}

			var payload []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				payload, err = io.ReadAll(app.Stdin)
			} else {
				payload, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}

			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			frequency, err := session.frequencyOrBase(params.Frequency)
			if err != nil {
				return err
			}
			var metadata []byte
			if params.Metadata != "" {
				metadata = []byte(params.Metadata)
			}

			signature, err := session.store.Store(payload, metadata, frequency)
			if err != nil {
				return err
			}
			if params.Name != "" {
				if _, err := session.store.SetName(params.Name, signature, frequency); err != nil {
					return fmt.Errorf("naming %s: %w", signature.Short(), err)
				}
			}
			session.logger.Debug("stored wave",
				"signature", signature.String(),
				"bytes", len(payload),
				"frequency", frequency,
			)

			result := putResult{
				Signature: signature,
				Short:     signature.Short(),
				Size:      len(payload),
				Frequency: frequency,
				Name:      params.Name,
			}
			if done, err := params.EmitJSON(app.Stdout, result); done {
				return err
			}
			fmt.Fprintln(app.Stdout, signature)
			return nil
		},
	}
}

// --- get ---

type getParams struct {
	StoreFlags
	OutputPath string `json:"-"         flag:"output,o"    desc:"output file (default: stdout)"`
	Force      bool   `json:"-"         flag:"force"       desc:"write to stdout even when it is a terminal"`
	Frequency  string `json:"frequency" flag:"frequency,f" desc:"decode at this frequency instead of the name's or the store's"`
}

func getCommand(app *App) *cli.Command {
	var params getParams

	return &cli.Command{
		Name:    "get",
		Summary: "Decode a stored payload to a file or stdout",
		Usage:   "wavefs get <name|signature> [flags]",
		Description: `Decode a stored wave back to its payload.

The reference can be a name, a full signature, a short reference
(wav-<hex>) or an unambiguous signature prefix. A name decodes at the
frequency it was set with; anything else decodes at the store's base
frequency unless --frequency is given. Decoding at the wrong frequency
fails with a corrupt-entry error.`,
		Examples: []cli.Example{
			{Description: "Decode to a file", Command: "wavefs get greetings/hello -o hello.txt"},
			{Description: "Decode a signature stored at f = 2", Command: "wavefs get wav-3f1a09c2d4e7 --frequency 2 --force"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("reference argument required\n\nUsage: wavefs get <name|signature> [flags]")
			}
			if params.OutputPath == "" && !params.Force && app.isTerminal(app.Stdout) {
				return cli.Usagef("refusing to write a payload to a terminal; use -o or --force")
			}

			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			resolved, err := session.resolve(args[0], params.Frequency)
			if err != nil {
				return err
			}
			payload, err := session.store.Retrieve(resolved.Signature, resolved.Frequency)
			if err != nil {
				return err
			}

			if params.OutputPath == "" {
				_, err = app.Stdout.Write(payload)
				return err
			}
			if err := os.WriteFile(params.OutputPath, payload, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", params.OutputPath, err)
			}
			return nil
		},
	}
}

// --- ls ---

type lsParams struct {
	StoreFlags
	cli.JSONOutput
}

func lsCommand(app *App) *cli.Command {
	var params lsParams

	return &cli.Command{
		Name:    "ls",
		Summary: "List stored waves",
		Usage:   "wavefs ls [flags]",
		Description: `List every live wave in signature order with its payload size,
stored size, compression and store time. Names are listed by
"wavefs name ls".`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Usagef("ls takes no arguments")
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			var entries []wavestore.EntryInfo
			for signature := range session.store.List() {
				info, err := session.store.Stat(signature)
				if errors.Is(err, wavestore.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				entries = append(entries, info)
			}

			if done, err := params.EmitJSON(app.Stdout, entries); done {
				return err
			}
			writer := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "SIGNATURE\tSIZE\tSTORED\tCOMPRESSION\tTIME\n")
			for _, info := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					info.Signature.Short(),
					formatSize(info.PayloadLength),
					formatSize(info.StoredLength),
					info.Compression,
					info.StoredAt.Format(time.RFC3339),
				)
			}
			return writer.Flush()
		},
	}
}

// --- rm ---

type rmParams struct {
	StoreFlags
}

func rmCommand(app *App) *cli.Command {
	var params rmParams

	return &cli.Command{
		Name:    "rm",
		Summary: "Delete stored waves",
		Usage:   "wavefs rm <name|signature>... [flags]",
		Description: `Append a tombstone for each referenced wave. Names pointing at a
deleted wave are removed with it. Log space is not reclaimed.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Usagef("at least one reference required\n\nUsage: wavefs rm <name|signature>...")
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			for _, reference := range args {
				resolved, err := session.resolve(reference, "")
				if err != nil {
					return err
				}
				if err := session.store.Delete(resolved.Signature); err != nil {
					return err
				}
				fmt.Fprintf(app.Stdout, "deleted %s\n", resolved.Signature.Short())
			}
			return nil
		},
	}
}

// --- stat ---

type statParams struct {
	StoreFlags
	cli.JSONOutput
}

func statCommand(app *App) *cli.Command {
	var params statParams

	return &cli.Command{
		Name:    "stat",
		Summary: "Show store totals or one wave's entry",
		Usage:   "wavefs stat [name|signature] [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Usagef("stat takes at most one reference")
			}
			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			if len(args) == 0 {
				stats := session.store.Stats()
				if done, err := params.EmitJSON(app.Stdout, stats); done {
					return err
				}
				writer := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(writer, "Root:\t%s\n", session.store.Root())
				fmt.Fprintf(writer, "Entries:\t%d\n", stats.Entries)
				fmt.Fprintf(writer, "Names:\t%d\n", stats.Names)
				fmt.Fprintf(writer, "Log:\t%s\n", formatSize(stats.LogBytes))
				fmt.Fprintf(writer, "Base frequency:\t%g\n", stats.BaseFrequency)
				fmt.Fprintf(writer, "Compression:\t%s\n", stats.Compression)
				return writer.Flush()
			}

			resolved, err := session.resolve(args[0], "")
			if err != nil {
				return err
			}
			info, err := session.store.Stat(resolved.Signature)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(app.Stdout, info); done {
				return err
			}

			writer := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "Signature:\t%s\n", info.Signature)
			if resolved.Name != "" {
				fmt.Fprintf(writer, "Name:\t%s\n", resolved.Name)
				fmt.Fprintf(writer, "Frequency:\t%g\n", resolved.Frequency)
			}
			fmt.Fprintf(writer, "Size:\t%s\n", formatSize(info.PayloadLength))
			fmt.Fprintf(writer, "Stored:\t%s (%s)\n", formatSize(info.StoredLength), info.Compression)
			fmt.Fprintf(writer, "Offset:\t%d\n", info.Offset)
			if info.HasMetadata {
				metadata, err := session.store.Metadata(info.Signature)
				if err != nil {
					return err
				}
				fmt.Fprintf(writer, "Metadata:\t%s\n", printable(metadata))
			}
			fmt.Fprintf(writer, "Time:\t%s\n", info.StoredAt.Format(time.RFC3339))
			return writer.Flush()
		},
	}
}

// printable quotes metadata that is not plain text.
func printable(data []byte) string {
	if bytes.ContainsFunc(data, func(r rune) bool { return r < 0x20 || r == 0x7f || r == 0xfffd }) {
		return fmt.Sprintf("%q", data)
	}
	return string(data)
}
