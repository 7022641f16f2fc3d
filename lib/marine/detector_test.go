// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

func newTestDetector(t *testing.T, modify func(*Config)) *Detector {
	t.Helper()
	config := DefaultConfig()
	if modify != nil {
		modify(&config)
	}
	detector, err := NewDetector(config)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return detector
}

func indices(events []Event) []int {
	result := make([]int, len(events))
	for i, event := range events {
		result[i] = event.Index
	}
	return result
}

func mustDetect(t *testing.T, detector *Detector, samples []float64) []Event {
	t.Helper()
	events, err := detector.Detect(samples)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	return events
}

func TestDetectThreePeaks(t *testing.T) {
	samples := []float64{
		0.0, 0.5, 1.0, 0.5, 0.0,
		0.0, 0.3, 0.7, 0.3, 0.0,
		0.0, 0.4, 0.9, 0.4, 0.0,
	}
	events := mustDetect(t, newTestDetector(t, nil), samples)
	if got := indices(events); !slices.Equal(got, []int{2, 7, 12}) {
		t.Fatalf("peaks at %v, want [2 7 12]", got)
	}
	if events[0].Value != 1.0 || events[1].Value != 0.7 || events[2].Value != 0.9 {
		t.Errorf("peak values = %v, %v, %v", events[0].Value, events[1].Value, events[2].Value)
	}
	if events[0].Interval != 2 || events[1].Interval != 5 || events[2].Interval != 5 {
		t.Errorf("intervals = %v, %v, %v", events[0].Interval, events[1].Interval, events[2].Interval)
	}
}

func TestProminence(t *testing.T) {
	events := mustDetect(t, newTestDetector(t, nil), []float64{0, 0.5, 1, 0.8, 0})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if math.Abs(events[0].Prominence-0.2) > 1e-12 {
		t.Errorf("prominence = %v, want 0.2", events[0].Prominence)
	}
}

func TestBoundaries(t *testing.T) {
	detector := newTestDetector(t, nil)
	tests := map[string][]float64{
		"empty":         nil,
		"single":        {1},
		"pair":          {0, 1},
		"peak first":    {1, 0, 0},
		"peak last":     {0, 0, 1},
		"increasing":    {0.1, 0.2, 0.3, 0.4, 0.5},
		"decreasing":    {0.9, 0.7, 0.5, 0.3},
		"plateau":       {0, 1, 1, 0},
		"negative peak": {-1, -0.5, -1},
		"all zero":      {0, 0, 0, 0},
	}
	for name, samples := range tests {
		if events := mustDetect(t, detector, samples); len(events) != 0 {
			t.Errorf("%s: got peaks at %v, want none", name, indices(events))
		}
	}
}

func TestRaisingThresholdOnlyRemovesPeaks(t *testing.T) {
	random := rand.New(rand.NewPCG(1, 2))
	samples := make([]float64, 2000)
	for i := range samples {
		samples[i] = random.Float64()
	}

	var previous []int
	for step := range 11 {
		threshold := float64(step) / 10
		detector := newTestDetector(t, func(c *Config) { c.WonderThreshold = threshold })
		current := indices(mustDetect(t, detector, samples))
		for _, index := range current {
			if samples[index] <= threshold {
				t.Fatalf("threshold %v: peak at %d has value %v", threshold, index, samples[index])
			}
		}
		if previous != nil {
			for _, index := range current {
				if _, found := slices.BinarySearch(previous, index); !found {
					t.Fatalf("threshold %v added a peak at %d", threshold, index)
				}
			}
		}
		previous = current
	}
	if len(previous) != 0 {
		t.Errorf("threshold 1 still reports %d peaks", len(previous))
	}
}

func TestClipThreshold(t *testing.T) {
	samples := []float64{0, 0.4, 0.3, 0.6, 0.5, 0}
	if got := indices(mustDetect(t, newTestDetector(t, nil), samples)); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("unclipped peaks = %v, want [1 3]", got)
	}
	clipped := newTestDetector(t, func(c *Config) { c.ClipThreshold = 0.5 })
	if got := indices(mustDetect(t, clipped, samples)); !slices.Equal(got, []int{3}) {
		t.Errorf("clipped peaks = %v, want [3]", got)
	}
}

func TestInvalidSamples(t *testing.T) {
	detector := newTestDetector(t, nil)
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := detector.Detect([]float64{0, 1, bad, 0})
		var sampleErr *InvalidSampleError
		if !errors.As(err, &sampleErr) || !errors.Is(err, ErrInvalidSample) {
			t.Fatalf("Detect with %v: error = %v, want *InvalidSampleError", bad, err)
		}
		if sampleErr.Index != 2 {
			t.Errorf("error index = %d, want 2", sampleErr.Index)
		}
	}
}

func TestPushRejectsWithoutAdvancing(t *testing.T) {
	detector := newTestDetector(t, nil)
	for _, sample := range []float64{0, 1} {
		if _, _, err := detector.Push(sample); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	if _, _, err := detector.Push(math.NaN()); !errors.Is(err, ErrInvalidSample) {
		t.Fatalf("Push(NaN) error = %v", err)
	}
	event, ok, err := detector.Push(0)
	if err != nil || !ok || event.Index != 1 {
		t.Errorf("Push after a rejected sample = %+v, %v, %v; want the peak at 1", event, ok, err)
	}
}

func TestStreamingMatchesBatch(t *testing.T) {
	random := rand.New(rand.NewPCG(3, 4))
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = math.Abs(math.Sin(float64(i)/7)) * (0.5 + 0.5*random.Float64())
	}

	detector := newTestDetector(t, func(c *Config) { c.WonderThreshold = 0.2 })
	batch := mustDetect(t, detector, samples)

	var streamed []Event
	for _, sample := range samples {
		event, ok, err := detector.Push(sample)
		if err != nil {
			t.Fatalf("Push failed: %v", err)
		}
		if ok {
			streamed = append(streamed, event)
		}
	}
	if !slices.Equal(batch, streamed) {
		t.Errorf("streaming found %d events, batch %d, or they differ", len(streamed), len(batch))
	}

	// Detect leaves the streaming state alone; Reset starts over.
	detector.Reset()
	again := mustDetect(t, detector, samples)
	if !slices.Equal(batch, again) {
		t.Error("a second Detect gave different events")
	}
}

func TestWonderFlag(t *testing.T) {
	samples := []float64{
		0.0, 0.1, 0.9, 0.1, 0.0,
		0.0, 0.1, 0.2, 0.1, 0.0,
		0.0, 0.1, 0.8, 0.1, 0.0,
	}
	detector := newTestDetector(t, func(c *Config) { c.SalienceThreshold = 0.5 })
	events := mustDetect(t, detector, samples)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if !events[0].Wonder {
		t.Errorf("high-energy first peak has salience %v and no wonder", events[0].Salience)
	}
	for _, event := range events {
		if event.Wonder != (event.Salience > 0.5) {
			t.Errorf("event %d: wonder %v with salience %v", event.Index, event.Wonder, event.Salience)
		}
		if event.Harmonic < 0.5 || event.Harmonic > 1 {
			t.Errorf("event %d: harmonic %v outside [0.5, 1]", event.Index, event.Harmonic)
		}
	}
	if events[1].Salience >= events[0].Salience {
		t.Errorf("weak peak salience %v >= strong peak %v", events[1].Salience, events[0].Salience)
	}
}

func TestHarmonicAlignment(t *testing.T) {
	tests := []struct {
		interval, tick, want float64
	}{
		{100, 100, 1},
		{200, 100, 1},
		{150, 100, 1},
		{50, 100, 0.75},
	}
	for _, test := range tests {
		if got := harmonicAlignment(test.interval, test.tick); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("harmonicAlignment(%v, %v) = %v, want %v", test.interval, test.tick, got, test.want)
		}
	}
}

func TestIntervalRing(t *testing.T) {
	var ring intervalRing
	for i := range intervalHistory + 5 {
		ring.push(float64(i))
	}
	if ring.count != intervalHistory {
		t.Fatalf("count = %d", ring.count)
	}
	if ring.at(0) != 5 || ring.at(intervalHistory-1) != intervalHistory+4 {
		t.Errorf("ring holds [%v .. %v], want [5 .. %d]", ring.at(0), ring.at(intervalHistory-1), intervalHistory+4)
	}

	var golden intervalRing
	for _, interval := range []float64{10, 16.18, 26.18, 42.36} {
		golden.push(interval)
	}
	if score := golden.goldenScore(); math.Abs(score-0.75) > 1e-9 {
		t.Errorf("goldenScore = %v, want 0.75", score)
	}
}

func TestDetectBuffer(t *testing.T) {
	payload := []byte{0, 50, 200, 50, 0, 10, 255, 10, 0}
	buffer, err := wave.Encode(payload, wave.DefaultFrequency)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	detector := newTestDetector(t, func(c *Config) { c.WonderThreshold = 0.5 })
	events, err := detector.DetectBuffer(buffer, Magnitude)
	if err != nil {
		t.Fatalf("DetectBuffer failed: %v", err)
	}
	// Magnitudes are byte+1, so the byte peaks at 2 and 6 are the peaks.
	if got := indices(events); !slices.Equal(got, []int{2, 6}) {
		t.Errorf("peaks at %v, want [2 6]", got)
	}
	if math.Abs(events[1].Value-1) > 1e-12 {
		t.Errorf("largest peak normalized to %v, want 1", events[1].Value)
	}

	if _, err := detector.DetectBuffer(buffer, Real); err != nil {
		t.Errorf("DetectBuffer(Real) failed: %v", err)
	}
	if _, err := detector.DetectBuffer(buffer, Component(9)); err == nil {
		t.Error("DetectBuffer accepted an unknown component")
	}
}

func TestConfigValidation(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	invalid := map[string]func(*Config){
		"threshold above one": func(c *Config) { c.WonderThreshold = 1.5 },
		"negative threshold":  func(c *Config) { c.WonderThreshold = -0.1 },
		"NaN threshold":       func(c *Config) { c.WonderThreshold = math.NaN() },
		"negative clip":       func(c *Config) { c.ClipThreshold = -1 },
		"zero tick rate":      func(c *Config) { c.GridTickRate = 0 },
		"zero smoothing":      func(c *Config) { c.Smoothing = 0 },
		"negative weight":     func(c *Config) { c.Weights.Jitter = -1 },
		"infinite salience":   func(c *Config) { c.SalienceThreshold = math.Inf(1) },
	}
	for name, modify := range invalid {
		config := DefaultConfig()
		modify(&config)
		if _, err := NewDetector(config); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: NewDetector error = %v, want ErrInvalidConfig", name, err)
		}
	}

	config := DefaultConfig()
	config.GridTickRate = -1
	config.Smoothing = 2
	err := config.Validate()
	if err == nil {
		t.Fatal("Validate accepted two problems")
	}
	if joined, ok := err.(interface{ Unwrap() []error }); !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("Validate did not report both problems: %v", err)
	}
}

func TestParseComponent(t *testing.T) {
	for _, component := range []Component{Magnitude, Real} {
		parsed, err := ParseComponent(component.String())
		if err != nil || parsed != component {
			t.Errorf("ParseComponent(%q) = %v, %v", component, parsed, err)
		}
	}
	if _, err := ParseComponent("imaginary"); err == nil {
		t.Error("ParseComponent accepted an unknown name")
	}
}
