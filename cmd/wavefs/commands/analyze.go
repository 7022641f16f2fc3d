// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/marine"
	"github.com/bureau-foundation/wavefs/lib/wave"
)

type analyzeParams struct {
	StoreFlags
	cli.JSONOutput
	Threshold float64 `json:"threshold" flag:"threshold,t" default:"-1" desc:"wonder threshold in [0, 1] (default: marine.wonder_threshold)"`
	Component string  `json:"component" flag:"component"   default:"magnitude" desc:"sample component to analyze: magnitude or real"`
	Frequency string  `json:"frequency" flag:"frequency,f" desc:"decode at this frequency instead of the name's or the store's"`
	Events    bool    `json:"events"    flag:"events"      desc:"list every event, not just the summary"`
}

type analyzeResult struct {
	Signature string               `json:"signature"`
	Samples   int                  `json:"samples"`
	Component string               `json:"component"`
	Summary   marine.Summary       `json:"summary"`
	Spectrum  *marine.SpectralPeak `json:"spectrum,omitempty"`
	Events    []marine.Event       `json:"events,omitempty"`
}

func analyzeCommand(app *App) *cli.Command {
	var params analyzeParams

	return &cli.Command{
		Name:    "analyze",
		Summary: "Detect salient peaks in a stored wave",
		Usage:   "wavefs analyze <name|signature> [flags]",
		Description: `Rebuild the wave of a stored payload and run salience detection
over one component of its samples, normalized to [-1, 1]. Prints an
event summary and the dominant bin of the wave's spectrum.

Detector settings come from the marine section of the config;
--threshold overrides the wonder threshold.`,
		Examples: []cli.Example{
			{Description: "Summarize a named wave", Command: "wavefs analyze greetings/hello"},
			{Description: "Only count peaks above 0.9, as JSON", Command: "wavefs analyze wav-3f1a09c2d4e7 --threshold 0.9 --events --json"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("reference argument required\n\nUsage: wavefs analyze <name|signature> [flags]")
			}
			component, err := marine.ParseComponent(params.Component)
			if err != nil {
				return cli.Usagef("--component: %v", err)
			}

			session, err := params.open(app)
			if err != nil {
				return err
			}
			defer session.Close()

			detectorConfig := marine.DefaultConfig()
			detectorConfig.WonderThreshold = session.config.Marine.WonderThreshold
			detectorConfig.SalienceThreshold = session.config.Marine.SalienceThreshold
			detectorConfig.ClipThreshold = session.config.Marine.ClipThreshold
			detectorConfig.GridTickRate = session.config.Marine.GridTickRate
			if params.Threshold >= 0 {
				detectorConfig.WonderThreshold = params.Threshold
			}
			detector, err := marine.NewDetector(detectorConfig)
			if err != nil {
				return cli.Usagef("%v", err)
			}

			resolved, err := session.resolve(args[0], params.Frequency)
			if err != nil {
				return err
			}
			payload, err := session.store.Retrieve(resolved.Signature, resolved.Frequency)
			if err != nil {
				return err
			}
			// Encoding is deterministic, so this is the stored wave.
			buffer, err := wave.Encode(payload, resolved.Frequency)
			if err != nil {
				return err
			}

			events, err := detector.DetectBuffer(buffer, component)
			if err != nil {
				return err
			}
			result := analyzeResult{
				Signature: resolved.Signature.String(),
				Samples:   len(buffer),
				Component: component.String(),
				Summary:   marine.Summarize(events),
			}
			if params.Events {
				result.Events = events
			}
			peak, err := marine.Spectrum(buffer)
			switch {
			case err == nil:
				result.Spectrum = &peak
			case !errors.Is(err, marine.ErrTooShort):
				return err
			}
			session.logger.Debug("analyzed wave",
				"signature", result.Signature,
				"samples", result.Samples,
				"events", len(events),
			)

			if done, err := params.EmitJSON(app.Stdout, result); done {
				return err
			}

			fmt.Fprintf(app.Stdout, "wave:     %s (%d samples, %s)\n", resolved.Signature.Short(), result.Samples, result.Component)
			fmt.Fprint(app.Stdout, result.Summary.String())
			if result.Spectrum != nil {
				fmt.Fprintf(app.Stdout, "spectrum: bin %d of %d, %.4f cycles/sample, %.1f%% of power\n",
					peak.Bin, peak.Bins, peak.Frequency, 100*peak.Power/max(peak.TotalPower, 1e-300))
			}
			if params.Events && len(events) > 0 {
				writer := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(writer, "\nINDEX\tVALUE\tSALIENCE\tWONDER\n")
				for _, event := range events {
					fmt.Fprintf(writer, "%d\t%.4f\t%.4f\t%t\n", event.Index, event.Value, event.Salience, event.Wonder)
				}
				return writer.Flush()
			}
			return nil
		},
	}
}
