// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands implements the wavefs command tree.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/wavefs/cmd/wavefs/cli"
	"github.com/bureau-foundation/wavefs/lib/config"
	"github.com/bureau-foundation/wavefs/lib/wave"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
)

// App carries the standard streams the commands use.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// IsTerminal reports whether a stream is a terminal. Nil uses
	// cli.IsTerminal.
	IsTerminal func(stream any) bool
}

// StandardApp returns an App on the process's standard streams.
func StandardApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) isTerminal(stream any) bool {
	if a.IsTerminal != nil {
		return a.IsTerminal(stream)
	}
	return cli.IsTerminal(stream)
}

// Root returns the top-level wavefs command.
func Root(app *App) *cli.Command {
	return &cli.Command{
		Name:    "wavefs",
		Summary: "Store and analyze wave-encoded payloads",
		Description: `wavefs stores payloads as complex waveforms in an append-only log,
addressed by a keyed BLAKE3 signature of the wave. A payload comes back
only at the base frequency it was stored at.

The store directory and defaults come from the config file named by
--config or WAVEFS_CONFIG, or from built-in defaults.`,
		Output: app.Stderr,
		Subcommands: []*cli.Command{
			putCommand(app),
			getCommand(app),
			lsCommand(app),
			rmCommand(app),
			statCommand(app),
			verifyCommand(app),
			analyzeCommand(app),
			nameCommand(app),
			mountCommand(app),
			versionCommand(app),
		},
		Examples: []cli.Example{
			{
				Description: "Store a file under a name",
				Command:     "wavefs put notes.txt --name docs/notes",
			},
			{
				Description: "Read it back",
				Command:     "wavefs get docs/notes -o notes.txt",
			},
			{
				Description: "Find salient peaks in a stored wave",
				Command:     "wavefs analyze docs/notes",
			},
		},
	}
}

// StoreFlags are the flags every store-backed command takes.
type StoreFlags struct {
	ConfigPath string `flag:"config,c" desc:"config file (default: $WAVEFS_CONFIG, then built-in defaults)"`
	Root       string `flag:"root" desc:"store directory, overriding store.root"`
}

// loadConfig reads the config named by --config, then WAVEFS_CONFIG,
// and falls back to the defaults.
func (f *StoreFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.ConfigPath != "":
		cfg, err = config.LoadFile(f.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if f.Root != "" {
		cfg.Store.Root = f.Root
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session is an open store plus the config and logger it was opened
// with.
type session struct {
	config *config.Config
	logger *slog.Logger
	store  *wavestore.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

func (f *StoreFlags) open(app *App) (*session, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(app.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	frequency, err := cfg.Store.Frequency()
	if err != nil {
		return nil, err
	}

	store, err := wavestore.Open(cfg.Store.Root, wavestore.Options{
		BaseFrequency:    frequency,
		Compression:      cfg.Store.Compression,
		CacheEntries:     cfg.Store.CacheEntries,
		NoSync:           cfg.Store.NoSync,
		RepairCorruption: cfg.Store.RepairCorruption,
		Logger:           logger,
	})
	if err != nil {
		if errors.Is(err, wavestore.ErrIndexCorrupt) {
			return nil, fmt.Errorf("%w\n\nSet store.repair_corruption to truncate the log at the bad entry.", err)
		}
		return nil, err
	}
	return &session{config: cfg, logger: logger, store: store}, nil
}

// target is a resolved reference: the wave it names and the frequency
// to decode it at.
type target struct {
	Signature wavestore.Signature
	Frequency float64
	Name      string
}

// resolve accepts a name, a full signature, a short reference or an
// unambiguous signature prefix, in that order. A name carries its own
// frequency; otherwise frequencyFlag applies, defaulting to the
// store's base frequency. A non-empty frequencyFlag overrides a
// name's frequency too.
func (s *session) resolve(reference, frequencyFlag string) (target, error) {
	var resolved target
	if record, ok := s.store.Names().Get(reference); ok {
		resolved = target{Signature: record.Target, Frequency: record.Frequency, Name: record.Name}
	} else {
		signature, err := s.store.Resolve(reference)
		if err != nil {
			if errors.Is(err, wavestore.ErrNotFound) {
				return target{}, fmt.Errorf("%q is not a name or a stored signature: %w", reference, err)
			}
			return target{}, err
		}
		resolved = target{Signature: signature, Frequency: s.store.BaseFrequency()}
	}

	if frequencyFlag != "" {
		frequency, err := wave.ParseFrequency(frequencyFlag)
		if err != nil {
			return target{}, cli.Usagef("--frequency: %v", err)
		}
		resolved.Frequency = frequency
	}
	return resolved, nil
}

// frequencyOrBase parses frequencyFlag, or returns the store's base
// frequency when it is empty.
func (s *session) frequencyOrBase(frequencyFlag string) (float64, error) {
	if frequencyFlag == "" {
		return s.store.BaseFrequency(), nil
	}
	frequency, err := wave.ParseFrequency(frequencyFlag)
	if err != nil {
		return 0, cli.Usagef("--frequency: %v", err)
	}
	return frequency, nil
}

// formatSize returns a human-readable byte count.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
