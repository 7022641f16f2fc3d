// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wave implements the byte-to-wave codec used by the wave
// store. Each payload byte becomes one complex sample whose amplitude
// carries the byte value and whose phase is a function of the byte's
// position scaled by a base frequency.
//
// # Mapping
//
// For the byte b at position i and base frequency f:
//
//	x = (i+1) * f
//	y = x * Phi                 (golden ratio)
//	u = y - floor(y)            in [0, 1)
//	t = 2u - 1                  in [-1, 1)
//	c = (1 - t*t) / (1 + t*t)
//	s = (2*t) / (1 + t*t)
//	a = b + 1                   in [1, 256]
//	sample = (a*c, a*s)
//
// (c, s) is the rational parametrization of the unit circle, so the
// sample magnitude equals a up to a few ulps. Only the IEEE-754 basic
// operations are used and every intermediate is forced to float64,
// which forbids fused multiply-add: the encoded buffer is bit-for-bit
// reproducible across platforms. The Phi factor keeps frequencies that
// differ by an integer from producing the same phases.
//
// # Quantization
//
// Decode takes q = RoundToEven(sqrt(re*re + im*im)) (round half to
// even), recovers b = q - 1, and then re-encodes b at the same position
// and frequency. The stored sample must equal the re-encoded sample
// bit-for-bit; anything else is reported as ErrCorruptBuffer. This is
// what makes decoding with the wrong frequency, or decoding a buffer
// with any flipped bit, fail instead of returning altered bytes.
//
// # Binary form
//
// A Buffer serializes to 16 bytes per sample: the real part then the
// imaginary part, each as its IEEE-754 bit pattern in little-endian
// order. Signatures are computed over this form.
package wave
