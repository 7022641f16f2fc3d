// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/wavefs/lib/codec"
	"github.com/bureau-foundation/wavefs/lib/wave"
)

// FormatVersion is the on-disk format this build reads and writes. It
// covers the log entry layout, the side index and the name records.
const FormatVersion = 1

// Descriptor is the store-wide settings file written when a store is
// created.
type Descriptor struct {
	FormatVersion int       `json:"format_version"`
	BaseFrequency float64   `json:"base_frequency"`
	Compression   string    `json:"compression"`
	CreatedAt     time.Time `json:"created_at"`
}

// loadDescriptor reads the descriptor at path. If the file does not
// exist, initial is written there and returned.
func loadDescriptor(path string, initial Descriptor) (Descriptor, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := writeDescriptor(path, initial); err != nil {
			return Descriptor{}, false, err
		}
		return initial, true, nil
	}
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("reading descriptor: %w", err)
	}

	var descriptor Descriptor
	if err := codec.Unmarshal(data, &descriptor); err != nil {
		return Descriptor{}, false, fmt.Errorf("decoding descriptor %s: %w", path, err)
	}
	if descriptor.FormatVersion != FormatVersion {
		return Descriptor{}, false, fmt.Errorf("%w: store format %d, this build reads %d",
			ErrVersionMismatch, descriptor.FormatVersion, FormatVersion)
	}
	if err := wave.ValidateFrequency(descriptor.BaseFrequency); err != nil {
		return Descriptor{}, false, fmt.Errorf("descriptor %s: %w", path, err)
	}
	if _, err := ParseCompressionTag(descriptor.Compression); err != nil {
		return Descriptor{}, false, fmt.Errorf("descriptor %s: %w", path, err)
	}
	return descriptor, false, nil
}

func writeDescriptor(path string, descriptor Descriptor) error {
	data, err := codec.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("encoding descriptor: %w", err)
	}
	temporaryPath := filepath.Join(filepath.Dir(path), ".descriptor.tmp")
	if err := writeFileSync(temporaryPath, data); err != nil {
		return fmt.Errorf("writing descriptor: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("installing descriptor: %w", err)
	}
	return nil
}
