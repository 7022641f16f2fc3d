// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wave

import (
	"fmt"
	"math"
)

// MaxFrequency is the largest accepted base frequency. The bound keeps
// (i+1)*f*Phi well inside the float64 integer range for every position
// a MaxPayloadSize payload can reach, so phases keep a useful
// fractional part.
const MaxFrequency = 1e6

// MaxPayloadSize is the largest payload Encode accepts (64 MiB). The
// encoded buffer is SampleSize times larger.
const MaxPayloadSize = 64 << 20

// ValidateFrequency reports whether f is usable as a base frequency.
func ValidateFrequency(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > MaxFrequency {
		return fmt.Errorf("%w: got %v, want 0 < f <= %v", ErrInvalidFrequency, f, float64(MaxFrequency))
	}
	return nil
}

// Encode converts payload into a wave buffer at base frequency f. The
// result has exactly one sample per payload byte. An empty payload
// encodes to an empty buffer.
func Encode(payload []byte, f float64) (Buffer, error) {
	if err := ValidateFrequency(f); err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, maximum is %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buffer := make(Buffer, len(payload))
	for i, b := range payload {
		buffer[i] = encodeSample(b, i, f)
	}
	return buffer, nil
}

// Decode recovers the payload from a wave buffer encoded at base
// frequency f. Every sample must be exactly the sample Encode would
// produce for some byte at that position; otherwise Decode returns a
// *CorruptBufferError naming the first offending sample.
func Decode(buffer Buffer, f float64) ([]byte, error) {
	if err := ValidateFrequency(f); err != nil {
		return nil, err
	}

	payload := make([]byte, len(buffer))
	for i, sample := range buffer {
		b, err := decodeSample(sample, i, f)
		if err != nil {
			return nil, err
		}
		payload[i] = b
	}
	return payload, nil
}

// DecodeBytes parses the binary form of a buffer and decodes it. The
// buffer must hold exactly payloadLength samples.
func DecodeBytes(data []byte, f float64, payloadLength int) ([]byte, error) {
	if payloadLength < 0 || len(data) != payloadLength*SampleSize {
		return nil, &CorruptBufferError{
			Index:  -1,
			Reason: fmt.Sprintf("buffer is %d bytes, declared payload length %d needs %d", len(data), payloadLength, payloadLength*SampleSize),
		}
	}
	buffer, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return Decode(buffer, f)
}

// encodeSample maps one byte at position i to its sample. Each
// intermediate is converted to float64 explicitly: the conversions stop
// the compiler from fusing a multiply into the following add, which
// would change rounding on FMA-capable architectures.
func encodeSample(b byte, i int, f float64) complex128 {
	x := float64(float64(i+1) * f)
	y := float64(x * math.Phi)
	u := y - math.Floor(y)
	t := float64(2*u) - 1
	t2 := float64(t * t)
	d := 1 + t2
	c := (1 - t2) / d
	s := float64(2*t) / d
	a := float64(b) + 1
	return complex(float64(a*c), float64(a*s))
}

func decodeSample(sample complex128, i int, f float64) (byte, error) {
	re, im := real(sample), imag(sample)
	if math.IsNaN(re) || math.IsNaN(im) || math.IsInf(re, 0) || math.IsInf(im, 0) {
		return 0, &CorruptBufferError{Index: i, Reason: "non-finite sample"}
	}

	magnitude := math.Sqrt(float64(re*re) + float64(im*im))
	quantized := math.RoundToEven(magnitude)
	if quantized < 1 || quantized > 256 {
		return 0, &CorruptBufferError{
			Index:  i,
			Reason: fmt.Sprintf("amplitude %g outside byte range", magnitude),
		}
	}

	b := byte(quantized - 1)
	expected := encodeSample(b, i, f)
	if math.Float64bits(re) != math.Float64bits(real(expected)) ||
		math.Float64bits(im) != math.Float64bits(imag(expected)) {
		return 0, &CorruptBufferError{
			Index:  i,
			Reason: "sample does not match its re-encoding (wrong frequency or altered data)",
		}
	}
	return b, nil
}
