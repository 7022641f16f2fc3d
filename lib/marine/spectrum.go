// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

// SpectralPeak is the strongest non-DC bin of a discrete Fourier
// transform.
type SpectralPeak struct {
	// Bin is the index into the transform.
	Bin int `json:"bin"`

	// Frequency is in cycles per sample, in (-0.5, 0.5]. Negative
	// values only occur for complex input.
	Frequency float64 `json:"frequency"`

	// Power is |X[Bin]|². TotalPower sums every bin except DC.
	Power      float64 `json:"power"`
	TotalPower float64 `json:"total_power"`
	Bins       int     `json:"bins"`
}

// Spectrum transforms the complex samples of buffer and returns the
// dominant bin. Both positive and negative frequencies are searched.
func Spectrum(buffer wave.Buffer) (SpectralPeak, error) {
	samples := []complex128(buffer)
	for i, sample := range samples {
		if cmplx.IsNaN(sample) || cmplx.IsInf(sample) {
			return SpectralPeak{}, &InvalidSampleError{Index: i, Value: real(sample)}
		}
	}
	if len(samples) < 2 {
		return SpectralPeak{}, ErrTooShort
	}
	return dominantBin(fft.FFT(samples), len(samples)-1), nil
}

// RealSpectrum transforms real samples and returns the dominant bin up
// to the Nyquist frequency.
func RealSpectrum(samples []float64) (SpectralPeak, error) {
	if err := checkFinite(samples); err != nil {
		return SpectralPeak{}, err
	}
	if len(samples) < 2 {
		return SpectralPeak{}, ErrTooShort
	}
	return dominantBin(fft.FFTReal(samples), len(samples)/2), nil
}

// dominantBin searches bins 1 through last.
func dominantBin(spectrum []complex128, last int) SpectralPeak {
	n := len(spectrum)
	peak := SpectralPeak{Bins: n}
	for bin := 1; bin <= last; bin++ {
		magnitude := cmplx.Abs(spectrum[bin])
		power := magnitude * magnitude
		peak.TotalPower += power
		if power > peak.Power {
			peak.Power = power
			peak.Bin = bin
		}
	}
	if peak.Bin != 0 {
		frequency := float64(peak.Bin) / float64(n)
		if 2*peak.Bin > n {
			frequency -= 1
		}
		peak.Frequency = frequency
	}
	return peak
}
