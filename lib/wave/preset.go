// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wave

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Preset is a named base frequency. Presets are a fixed enumeration
// that resolve to constants; arbitrary frequencies are plain float64.
type Preset uint8

const (
	// PresetUnit encodes at f = 1.
	PresetUnit Preset = iota + 1

	// PresetGolden encodes at f = 1.618, the store default.
	PresetGolden

	// PresetOctave encodes at f = 2.
	PresetOctave

	// PresetEuler encodes at f = e.
	PresetEuler

	// PresetPi encodes at f = pi.
	PresetPi
)

// DefaultFrequency is the base frequency used when none is configured.
const DefaultFrequency = 1.618

var presets = []struct {
	preset    Preset
	name      string
	frequency float64
}{
	{PresetUnit, "unit", 1.0},
	{PresetGolden, "golden", DefaultFrequency},
	{PresetOctave, "octave", 2.0},
	{PresetEuler, "euler", math.E},
	{PresetPi, "pi", math.Pi},
}

// Frequency returns the preset's base frequency, or 0 for an unknown
// preset.
func (p Preset) Frequency() float64 {
	for _, entry := range presets {
		if entry.preset == p {
			return entry.frequency
		}
	}
	return 0
}

// String returns the preset name.
func (p Preset) String() string {
	for _, entry := range presets {
		if entry.preset == p {
			return entry.name
		}
	}
	return fmt.Sprintf("unknown(%d)", uint8(p))
}

// ParsePreset parses a preset by name.
func ParsePreset(name string) (Preset, error) {
	for _, entry := range presets {
		if entry.name == name {
			return entry.preset, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency preset %q", name)
}

// Presets returns the preset names in declaration order.
func Presets() []string {
	names := make([]string, len(presets))
	for i, entry := range presets {
		names[i] = entry.name
	}
	return names
}

// ParseFrequency accepts a preset name ("golden") or a decimal number
// ("1.618") and returns a validated base frequency.
func ParseFrequency(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if preset, err := ParsePreset(strings.ToLower(value)); err == nil {
		return preset.Frequency(), nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing frequency %q: not a preset (%s) or a number",
			value, strings.Join(Presets(), ", "))
	}
	if err := ValidateFrequency(f); err != nil {
		return 0, err
	}
	return f, nil
}
