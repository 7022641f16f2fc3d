// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSample matches every *InvalidSampleError.
	ErrInvalidSample = errors.New("marine: invalid sample")

	// ErrInvalidConfig reports a Config that NewDetector rejected.
	ErrInvalidConfig = errors.New("marine: invalid config")

	// ErrTooShort reports input too short for spectral analysis.
	ErrTooShort = errors.New("marine: need at least two samples")
)

// InvalidSampleError reports a NaN or infinite input sample.
type InvalidSampleError struct {
	Index int
	Value float64
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("marine: sample %d is %v", e.Index, e.Value)
}

func (e *InvalidSampleError) Is(target error) bool { return target == ErrInvalidSample }
