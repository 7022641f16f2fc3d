// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package marine finds salient peaks in real-valued sample streams.
//
// The detector makes a single pass over its input, holding only the
// two previous samples, two exponential moving averages and a ring of
// the last 32 peak intervals, so [Detector.Push] does constant work per
// sample and streams of any length can be analyzed incrementally.
//
// A sample at index i is a candidate peak when it is a strict local
// maximum (x[i-1] < x[i] > x[i+1]) and exceeds Config.WonderThreshold.
// Inputs are expected in [0, 1]; use [Normalize] first, or
// [Detector.DetectBuffer] which normalizes for you. The first and last
// samples of a stream have only one neighbor and are never reported.
//
// Every candidate becomes an [Event] scored by:
//
//	S = w_e*E + w_j*J + w_h*H + w_w*W
//
// where E is the peak's magnitude, J = 1/(1 + timing jitter +
// amplitude jitter) against the moving averages, H is how closely the
// interval since the previous peak lands on a harmonic ratio of
// Config.GridTickRate, and W combines E*J with how often recent
// intervals follow the golden ratio. Events with S above
// Config.SalienceThreshold carry the wonder flag.
//
// Raising WonderThreshold only ever removes events: candidacy depends
// on the samples and the threshold alone, never on the scoring state.
package marine
