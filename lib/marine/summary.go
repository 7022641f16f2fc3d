// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package marine

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mood is a coarse label for a set of events.
type Mood string

const (
	MoodWondrous  Mood = "wondrous"
	MoodEnergetic Mood = "energetic"
	MoodPeaceful  Mood = "peaceful"
	MoodMusical   Mood = "musical"
	MoodFlowing   Mood = "flowing"
)

// Summary aggregates the events of one stream.
type Summary struct {
	TotalEvents     int     `json:"total_events"`
	WonderCount     int     `json:"wonder_count"`
	AverageSalience float64 `json:"average_salience"`
	MaxSalience     float64 `json:"max_salience"`
	HasRhythm       bool    `json:"has_rhythm"`
	Mood            Mood    `json:"mood"`
}

// Summarize aggregates events, which must be in index order as Detect
// returns them.
func Summarize(events []Event) Summary {
	summary := Summary{TotalEvents: len(events)}

	saliences := make([]float64, len(events))
	amplitudes := make([]float64, len(events))
	for i, event := range events {
		saliences[i] = event.Salience
		amplitudes[i] = math.Abs(event.Value)
		if event.Wonder {
			summary.WonderCount++
		}
	}

	var averageAmplitude, wonderRatio float64
	if len(events) > 0 {
		summary.AverageSalience = stat.Mean(saliences, nil)
		summary.MaxSalience = math.Max(0, floats.Max(saliences))
		averageAmplitude = stat.Mean(amplitudes, nil)
		wonderRatio = float64(summary.WonderCount) / float64(len(events))
	}
	summary.HasRhythm = hasRhythm(events)
	summary.Mood = moodOf(averageAmplitude, wonderRatio)
	return summary
}

// hasRhythm reports whether the spacing between at least four events
// is regular: the population variance of the gaps is below (0.2*mean)².
func hasRhythm(events []Event) bool {
	if len(events) < 4 {
		return false
	}
	gaps := make([]float64, len(events)-1)
	for i := range gaps {
		gaps[i] = float64(events[i+1].Index - events[i].Index)
	}
	mean, variance := stat.PopMeanVariance(gaps, nil)
	return variance < (0.2*mean)*(0.2*mean)
}

func moodOf(averageAmplitude, wonderRatio float64) Mood {
	switch {
	case wonderRatio > 0.5:
		return MoodWondrous
	case averageAmplitude > 0.8:
		return MoodEnergetic
	case averageAmplitude < 0.2:
		return MoodPeaceful
	case wonderRatio > 0.3:
		return MoodMusical
	default:
		return MoodFlowing
	}
}

func (s Summary) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "events:   %d (%d with wonder)\n", s.TotalEvents, s.WonderCount)
	fmt.Fprintf(&builder, "salience: %.3f avg, %.3f max\n", s.AverageSalience, s.MaxSalience)
	fmt.Fprintf(&builder, "rhythm:   %t\n", s.HasRhythm)
	fmt.Fprintf(&builder, "mood:     %s\n", s.Mood)
	return builder.String()
}
