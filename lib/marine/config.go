// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"errors"
	"fmt"
	"math"
)

// Weights combine the salience factors.
type Weights struct {
	Energy   float64 `json:"energy"`
	Jitter   float64 `json:"jitter"`
	Harmonic float64 `json:"harmonic"`
	Wonder   float64 `json:"wonder"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Energy: 0.4, Jitter: 0.3, Harmonic: 0.2, Wonder: 0.1}
}

// Config parameterizes a Detector. Start from DefaultConfig.
type Config struct {
	// WonderThreshold gates candidate peaks: a local maximum is
	// reported only if its value is above it. Must be in [0, 1].
	WonderThreshold float64

	// SalienceThreshold sets the wonder flag on events scoring above
	// it.
	SalienceThreshold float64

	// ClipThreshold zeroes samples whose magnitude is below it before
	// peak detection. Zero disables clipping.
	ClipThreshold float64

	// GridTickRate is the interval, in samples, that harmonic
	// alignment is measured against.
	GridTickRate float64

	// Smoothing is the EMA factor for expected interval and amplitude,
	// in (0, 1].
	Smoothing float64

	Weights Weights
}

// DefaultConfig returns a configuration that reports every positive
// local maximum.
func DefaultConfig() Config {
	return Config{
		WonderThreshold:   0,
		SalienceThreshold: 0.8,
		ClipThreshold:     0,
		GridTickRate:      100,
		Smoothing:         0.125,
		Weights:           DefaultWeights(),
	}
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

	check(c.WonderThreshold >= 0 && c.WonderThreshold <= 1,
		"wonder threshold %v is outside [0, 1]", c.WonderThreshold)
	check(finite(c.SalienceThreshold), "salience threshold %v is not finite", c.SalienceThreshold)
	check(finite(c.ClipThreshold) && c.ClipThreshold >= 0,
		"clip threshold %v must be finite and non-negative", c.ClipThreshold)
	check(finite(c.GridTickRate) && c.GridTickRate > 0,
		"grid tick rate %v must be finite and positive", c.GridTickRate)
	check(c.Smoothing > 0 && c.Smoothing <= 1, "smoothing %v is outside (0, 1]", c.Smoothing)
	weights := []struct {
		name  string
		value float64
	}{
		{"energy", c.Weights.Energy},
		{"jitter", c.Weights.Jitter},
		{"harmonic", c.Weights.Harmonic},
		{"wonder", c.Weights.Wonder},
	}
	for _, weight := range weights {
		check(finite(weight.value) && weight.value >= 0,
			"%s weight %v must be finite and non-negative", weight.name, weight.value)
	}
	return errors.Join(errs...)
}
