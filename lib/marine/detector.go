// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"fmt"
	"math"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

// goldenRatio is both a harmonic ratio and the interval ratio the
// wonder factor looks for.
const goldenRatio = 1.618

// harmonicRatios are the interval ratios harmonic alignment scores
// against.
var harmonicRatios = [...]float64{1, 2, 1.5, 1.333, 1.25, goldenRatio}

// intervalHistory is how many recent peak intervals the wonder factor
// considers.
const intervalHistory = 32

// Event is one detected peak.
type Event struct {
	Index      int     `json:"index"`
	Value      float64 `json:"value"`
	Prominence float64 `json:"prominence"`

	// Interval is the distance in samples from the previous event, or
	// from the start of the stream for the first one.
	Interval        float64 `json:"interval"`
	TimingJitter    float64 `json:"timing_jitter"`
	AmplitudeJitter float64 `json:"amplitude_jitter"`
	Harmonic        float64 `json:"harmonic"`
	Salience        float64 `json:"salience"`
	Wonder          bool    `json:"wonder"`
}

// Component selects which part of a wave sample DetectBuffer analyzes.
type Component int

const (
	// Magnitude analyzes |z| of each sample.
	Magnitude Component = iota
	// Real analyzes the real part of each sample.
	Real
)

func (c Component) String() string {
	switch c {
	case Magnitude:
		return "magnitude"
	case Real:
		return "real"
	default:
		return fmt.Sprintf("component(%d)", int(c))
	}
}

// ParseComponent parses "magnitude" or "real".
func ParseComponent(name string) (Component, error) {
	switch name {
	case "magnitude", "":
		return Magnitude, nil
	case "real":
		return Real, nil
	default:
		return 0, fmt.Errorf("unknown component %q (want magnitude or real)", name)
	}
}

// Detector finds peaks in a sample stream. Push is not safe for
// concurrent use; Detect and DetectBuffer run on private state and may
// be called concurrently.
type Detector struct {
	config Config

	seen      int
	previous  float64
	current   float64
	lastEvent int
	timing    movingAverage
	amplitude movingAverage
	intervals intervalRing
}

// NewDetector returns a detector for config.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	detector := &Detector{config: config}
	detector.Reset()
	return detector, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.config }

// Reset discards streaming state so the next Push starts a new stream.
func (d *Detector) Reset() {
	d.seen = 0
	d.previous, d.current = 0, 0
	d.lastEvent = 0
	d.timing = movingAverage{alpha: d.config.Smoothing}
	d.amplitude = movingAverage{alpha: d.config.Smoothing}
	d.intervals = intervalRing{}
}

// Push feeds the next sample of the stream. Because a peak needs its
// right neighbor, an event for index n-1 can only be reported when the
// sample at index n arrives. A NaN or infinite sample returns an
// *InvalidSampleError and leaves the stream state unchanged.
func (d *Detector) Push(sample float64) (Event, bool, error) {
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return Event{}, false, &InvalidSampleError{Index: d.seen, Value: sample}
	}
	gated := sample
	if math.Abs(sample) < d.config.ClipThreshold {
		gated = 0
	}

	var event Event
	var ok bool
	if d.seen >= 2 {
		event, ok = d.evaluate(d.seen-1, d.previous, d.current, gated)
	}
	d.previous, d.current = d.current, gated
	d.seen++
	return event, ok, nil
}

// Detect analyzes samples as one complete stream and returns its
// events in index order. The detector's own streaming state is not
// touched.
func (d *Detector) Detect(samples []float64) ([]Event, error) {
	stream := &Detector{config: d.config}
	stream.Reset()

	var events []Event
	for _, sample := range samples {
		event, ok, err := stream.Push(sample)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// DetectBuffer extracts component from every sample of buffer,
// normalizes the result to [-1, 1] by its largest magnitude and runs
// Detect over it.
func (d *Detector) DetectBuffer(buffer wave.Buffer, component Component) ([]Event, error) {
	var samples []float64
	switch component {
	case Magnitude:
		samples = buffer.Magnitudes()
	case Real:
		samples = buffer.Reals()
	default:
		return nil, fmt.Errorf("unknown component %v", component)
	}
	normalized, err := Normalize(samples)
	if err != nil {
		return nil, err
	}
	return d.Detect(normalized)
}

func (d *Detector) evaluate(index int, left, center, right float64) (Event, bool) {
	if !(left < center && center > right) || center <= d.config.WonderThreshold {
		return Event{}, false
	}

	energy := math.Abs(center)
	interval := float64(index - d.lastEvent)
	expectedInterval := d.timing.update(interval)
	expectedAmplitude := d.amplitude.update(energy)
	timingJitter := math.Abs(interval - expectedInterval)
	amplitudeJitter := math.Abs(energy - expectedAmplitude)
	harmonic := harmonicAlignment(interval, d.config.GridTickRate)

	jitterScore := 1 / (1 + timingJitter + amplitudeJitter)
	wonder := energy*jitterScore + 0.5*d.intervals.goldenScore()
	weights := d.config.Weights
	salience := weights.Energy*energy +
		weights.Jitter*jitterScore +
		weights.Harmonic*harmonic +
		weights.Wonder*wonder

	d.intervals.push(interval)
	d.lastEvent = index

	return Event{
		Index:           index,
		Value:           center,
		Prominence:      math.Min(center-left, center-right),
		Interval:        interval,
		TimingJitter:    timingJitter,
		AmplitudeJitter: amplitudeJitter,
		Harmonic:        harmonic,
		Salience:        salience,
		Wonder:          salience > d.config.SalienceThreshold,
	}, true
}

// harmonicAlignment scores in [0.5, 1] how close interval/tick lands
// to a whole multiple of one of the harmonic ratios.
func harmonicAlignment(interval, tick float64) float64 {
	ratio := interval / tick
	best := 0.0
	for _, harmonic := range harmonicRatios {
		_, fraction := math.Modf(ratio / harmonic)
		best = math.Max(best, 1-math.Min(fraction, 1-fraction))
	}
	return best
}

type movingAverage struct {
	value float64
	alpha float64
}

func (m *movingAverage) update(x float64) float64 {
	m.value = m.alpha*x + (1-m.alpha)*m.value
	return m.value
}

// intervalRing holds the most recent peak intervals, oldest first.
type intervalRing struct {
	values [intervalHistory]float64
	start  int
	count  int
}

func (r *intervalRing) push(interval float64) {
	if r.count < intervalHistory {
		r.values[(r.start+r.count)%intervalHistory] = interval
		r.count++
		return
	}
	r.values[r.start] = interval
	r.start = (r.start + 1) % intervalHistory
}

func (r *intervalRing) at(i int) float64 {
	return r.values[(r.start+i)%intervalHistory]
}

// goldenScore is the fraction of consecutive interval pairs whose
// ratio is within 0.1 of the golden ratio. It needs three intervals.
func (r *intervalRing) goldenScore() float64 {
	if r.count < 3 {
		return 0
	}
	matches := 0
	for i := 1; i < r.count; i++ {
		if math.Abs(r.at(i)/r.at(i-1)-goldenRatio) < 0.1 {
			matches++
		}
	}
	return float64(matches) / float64(r.count)
}
