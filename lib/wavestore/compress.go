// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how the wave bytes of a log entry are
// stored. Tags are written into entry headers; the values are format
// constants.
type CompressionTag uint8

const (
	// CompressionNone stores the serialized wave buffer as is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 stores an LZ4 block.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd stores a zstd frame at the default level.
	CompressionZstd CompressionTag = 2

	// CompressionBG8LZ4 transposes the buffer in 8-byte groups before
	// LZ4. Samples are float64 pairs, so grouping gathers the sign and
	// exponent bytes, which repeat heavily across a wave, into long
	// runs.
	CompressionBG8LZ4 CompressionTag = 3
)

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionBG8LZ4:
		return "bg8_lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (tag CompressionTag) MarshalText() ([]byte, error) {
	return []byte(tag.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tag *CompressionTag) UnmarshalText(text []byte) error {
	parsed, err := ParseCompressionTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

func (tag CompressionTag) valid() bool {
	return tag <= CompressionBG8LZ4
}

// ParseCompressionTag parses a compression tag from its name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "bg8_lz4":
		return CompressionBG8LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd or bg8_lz4)", name)
	}
}

// errIncompressible reports that compressing did not make the data
// smaller. The store then writes CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// compressWave compresses data with the requested algorithm and returns
// the bytes to store and the tag that describes them. Incompressible
// data comes back unchanged under CompressionNone.
func compressWave(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	var compressed []byte
	var err error
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	case CompressionBG8LZ4:
		compressed, err = compressLZ4(bg8Transpose(data))
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// decompressWave reverses compressWave. The result must be exactly
// uncompressedSize bytes.
func decompressWave(stored []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != uncompressedSize {
			return nil, fmt.Errorf("stored wave is %d bytes, want %d", len(stored), uncompressedSize)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(stored, uncompressedSize)
	case CompressionBG8LZ4:
		transposed, err := decompressLZ4(stored, uncompressedSize)
		if err != nil {
			return nil, err
		}
		return bg8Untranspose(transposed), nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errIncompressible
	}
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for data it cannot shrink.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("wavestore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxStoredWave)))
	if err != nil {
		panic("wavestore: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), uncompressedSize)
	}
	return result, nil
}

// bg8Transpose gathers byte k of every 8-byte group into the k-th
// plane. Trailing bytes that do not fill a group are copied as is.
func bg8Transpose(data []byte) []byte {
	groups := len(data) / 8
	output := make([]byte, len(data))
	for i := range groups {
		for k := range 8 {
			output[k*groups+i] = data[i*8+k]
		}
	}
	copy(output[groups*8:], data[groups*8:])
	return output
}

func bg8Untranspose(data []byte) []byte {
	groups := len(data) / 8
	output := make([]byte, len(data))
	for i := range groups {
		for k := range 8 {
			output[i*8+k] = data[k*groups+i]
		}
	}
	copy(output[groups*8:], data[groups*8:])
	return output
}
