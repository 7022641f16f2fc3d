// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize returns samples scaled so the largest magnitude is 1. An
// all-zero input is returned as a copy. NaN or infinite samples are
// rejected with an *InvalidSampleError.
func Normalize(samples []float64) ([]float64, error) {
	if err := checkFinite(samples); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []float64{}, nil
	}
	peak := floats.Norm(samples, math.Inf(1))
	if peak == 0 {
		return append([]float64(nil), samples...), nil
	}
	return floats.ScaleTo(make([]float64, len(samples)), 1/peak, samples), nil
}

func checkFinite(samples []float64) error {
	for i, sample := range samples {
		if math.IsNaN(sample) || math.IsInf(sample, 0) {
			return &InvalidSampleError{Index: i, Value: sample}
		}
	}
	return nil
}
