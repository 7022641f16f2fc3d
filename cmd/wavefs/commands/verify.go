// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
)

type verifyParams struct {
	StoreFlags
	cli.JSONOutput
	Frequency string `json:"frequency" flag:"frequency,f" desc:"decode at this frequency (default: the store's)"`
}

type verifyFailure struct {
	Signature wavestore.Signature `json:"signature"`
	Error     string              `json:"error"`
}

type verifyResult struct {
	Checked  int             `json:"checked"`
	Failures []verifyFailure `json:"failures"`
}

func verifyCommand(app *App) *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Re-check every stored wave",
		Usage:   "wavefs verify [flags]",
		Description: `Read every live entry from the log, re-verify its signature and
decode it at one frequency. Waves stored at other frequencies report
as corrupt, so verify a mixed store once per frequency.

Exits with status 1 when any entry fails.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Usagef("verify takes no arguments")
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
			report, err := session.store.Verify(ctx, frequency)
			if err != nil {
				return err
			}

			result := verifyResult{Checked: report.Checked, Failures: []verifyFailure{}}
			for _, failure := range report.Failures {
				result.Failures = append(result.Failures, verifyFailure{
					Signature: failure.Signature,
					Error:     failure.Err.Error(),
				})
			}

			if done, err := params.EmitJSON(app.Stdout, result); !done {
				for _, failure := range result.Failures {
					fmt.Fprintf(app.Stdout, "FAIL %s: %s\n", failure.Signature.Short(), failure.Error)
				}
				fmt.Fprintf(app.Stdout, "%d checked, %d failed\n", result.Checked, len(result.Failures))
			} else if err != nil {
				return err
			}

			if len(result.Failures) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
