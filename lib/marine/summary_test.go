// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"math"
	"math/cmplx"
	"strings"
	"testing"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

func TestSummarizeRhythm(t *testing.T) {
	samples := make([]float64, 100)
	for i := 10; i < 100; i += 10 {
		samples[i] = 1
	}
	events := mustDetect(t, newTestDetector(t, nil), samples)
	summary := Summarize(events)

	if summary.TotalEvents != 9 {
		t.Errorf("TotalEvents = %d, want 9", summary.TotalEvents)
	}
	if !summary.HasRhythm {
		t.Error("regular peaks not recognized as rhythm")
	}
	if summary.MaxSalience < summary.AverageSalience {
		t.Errorf("max salience %v below average %v", summary.MaxSalience, summary.AverageSalience)
	}
	if summary.Mood != MoodEnergetic && summary.Mood != MoodWondrous {
		t.Errorf("full-scale peaks have mood %q", summary.Mood)
	}
	if !strings.Contains(summary.String(), "rhythm:   true") {
		t.Errorf("String() = %q", summary.String())
	}
}

func TestSummarizeIrregular(t *testing.T) {
	samples := make([]float64, 200)
	for _, index := range []int{3, 5, 40, 42, 120, 190} {
		samples[index] = 0.5
	}
	summary := Summarize(mustDetect(t, newTestDetector(t, nil), samples))
	if summary.TotalEvents != 6 {
		t.Fatalf("TotalEvents = %d, want 6", summary.TotalEvents)
	}
	if summary.HasRhythm {
		t.Error("irregular peaks reported as rhythm")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalEvents != 0 || summary.AverageSalience != 0 || summary.MaxSalience != 0 || summary.HasRhythm {
		t.Errorf("empty summary = %+v", summary)
	}
	if summary.Mood != MoodPeaceful {
		t.Errorf("empty mood = %q, want peaceful", summary.Mood)
	}
}

func TestMood(t *testing.T) {
	tests := []struct {
		amplitude, wonder float64
		want              Mood
	}{
		{0.5, 0.6, MoodWondrous},
		{0.9, 0.1, MoodEnergetic},
		{0.1, 0.4, MoodPeaceful},
		{0.5, 0.4, MoodMusical},
		{0.5, 0.1, MoodFlowing},
	}
	for _, test := range tests {
		if got := moodOf(test.amplitude, test.wonder); got != test.want {
			t.Errorf("moodOf(%v, %v) = %q, want %q", test.amplitude, test.wonder, got, test.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	normalized, err := Normalize([]float64{-2, 1, 0.5})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := []float64{-1, 0.5, 0.25}
	for i := range want {
		if normalized[i] != want[i] {
			t.Errorf("normalized[%d] = %v, want %v", i, normalized[i], want[i])
		}
	}

	zeros, err := Normalize([]float64{0, 0})
	if err != nil || len(zeros) != 2 || zeros[0] != 0 {
		t.Errorf("Normalize(zeros) = %v, %v", zeros, err)
	}
	if _, err := Normalize([]float64{1, math.NaN()}); err == nil {
		t.Error("Normalize accepted NaN")
	}
}

func TestRealSpectrum(t *testing.T) {
	const n = 64
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.3 + math.Sin(2*math.Pi*5*float64(i)/n)
	}
	peak, err := RealSpectrum(samples)
	if err != nil {
		t.Fatalf("RealSpectrum failed: %v", err)
	}
	if peak.Bin != 5 || math.Abs(peak.Frequency-5.0/n) > 1e-12 || peak.Bins != n {
		t.Errorf("peak = %+v, want bin 5", peak)
	}
	if peak.Power > peak.TotalPower*(1+1e-9) {
		t.Errorf("peak power %v exceeds total %v", peak.Power, peak.TotalPower)
	}

	if _, err := RealSpectrum([]float64{1}); err != ErrTooShort {
		t.Errorf("single sample: error = %v, want ErrTooShort", err)
	}
}

func TestSpectrumComplex(t *testing.T) {
	const n = 50
	positive := make(wave.Buffer, n)
	negative := make(wave.Buffer, n)
	for i := range positive {
		phase := 2 * math.Pi * 3 * float64(i) / n
		positive[i] = cmplx.Exp(complex(0, phase))
		negative[i] = cmplx.Exp(complex(0, -phase))
	}

	peak, err := Spectrum(positive)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	if peak.Bin != 3 || math.Abs(peak.Frequency-3.0/n) > 1e-12 {
		t.Errorf("positive tone: %+v, want bin 3", peak)
	}

	peak, err = Spectrum(negative)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	if peak.Bin != n-3 || math.Abs(peak.Frequency+3.0/n) > 1e-12 {
		t.Errorf("negative tone: %+v, want bin %d", peak, n-3)
	}

	if _, err := Spectrum(wave.Buffer{complex(math.NaN(), 0), 0}); err == nil {
		t.Error("Spectrum accepted a NaN sample")
	}
}
