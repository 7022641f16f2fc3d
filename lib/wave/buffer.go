// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wave

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
)

// SampleSize is the serialized size of one sample in bytes.
const SampleSize = 16

// Buffer is an encoded wave: one complex sample per payload byte. A
// Buffer is not modified after Encode returns it.
type Buffer []complex128

// Bytes returns the binary form of the buffer.
func (b Buffer) Bytes() []byte {
	return b.AppendBinary(make([]byte, 0, len(b)*SampleSize))
}

// AppendBinary appends the binary form of the buffer to dst.
func (b Buffer) AppendBinary(dst []byte) []byte {
	for _, sample := range b {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(real(sample)))
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(imag(sample)))
	}
	return dst
}

// ParseBytes reads a buffer from its binary form. It checks only the
// framing; sample validity is Decode's job.
func ParseBytes(data []byte) (Buffer, error) {
	if len(data)%SampleSize != 0 {
		return nil, &CorruptBufferError{
			Index:  -1,
			Reason: fmt.Sprintf("length %d is not a multiple of %d", len(data), SampleSize),
		}
	}

	buffer := make(Buffer, len(data)/SampleSize)
	for i := range buffer {
		offset := i * SampleSize
		re := math.Float64frombits(binary.LittleEndian.Uint64(data[offset : offset+8]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(data[offset+8 : offset+16]))
		buffer[i] = complex(re, im)
	}
	return buffer, nil
}

// Magnitudes returns |sample| for every sample.
func (b Buffer) Magnitudes() []float64 {
	result := make([]float64, len(b))
	for i, sample := range b {
		result[i] = cmplx.Abs(sample)
	}
	return result
}

// Reals returns the real component of every sample.
func (b Buffer) Reals() []float64 {
	result := make([]float64, len(b))
	for i, sample := range b {
		result[i] = real(sample)
	}
	return result
}
