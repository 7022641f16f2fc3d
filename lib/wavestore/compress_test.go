// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

func TestCompressWaveRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte{0, 0, 0, 0, 0, 0, 0xF0, 0x3F}, 4096)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd, CompressionBG8LZ4} {
		t.Run(tag.String(), func(t *testing.T) {
			stored, used, err := compressWave(compressible, tag)
			if err != nil {
				t.Fatalf("compressWave failed: %v", err)
			}
			if used != tag {
				t.Errorf("compressWave used %s, want %s", used, tag)
			}
			if tag != CompressionNone && len(stored) >= len(compressible) {
				t.Errorf("%s did not shrink repetitive data: %d bytes", tag, len(stored))
			}
			restored, err := decompressWave(stored, used, len(compressible))
			if err != nil {
				t.Fatalf("decompressWave failed: %v", err)
			}
			if !bytes.Equal(restored, compressible) {
				t.Error("round trip changed the data")
			}
		})
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	random := rand.New(rand.NewPCG(7, 11))
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(random.Uint32())
	}
	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd, CompressionBG8LZ4} {
		stored, used, err := compressWave(data, tag)
		if err != nil {
			t.Fatalf("compressWave(%s) failed: %v", tag, err)
		}
		if used != CompressionNone || !bytes.Equal(stored, data) {
			t.Errorf("%s on random data: stored %d bytes under %s, want uncompressed", tag, len(stored), used)
		}
	}

	stored, used, err := compressWave(nil, CompressionLZ4)
	if err != nil || used != CompressionNone || len(stored) != 0 {
		t.Errorf("empty wave: %d bytes under %s, %v", len(stored), used, err)
	}
}

func TestDecompressWaveRejectsWrongSize(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 64)
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		stored, used, err := compressWave(data, tag)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := decompressWave(stored, used, len(data)+16); err == nil {
			t.Errorf("%s: decompressWave accepted a wrong uncompressed size", used)
		}
	}
	if _, err := decompressWave([]byte{0xFF, 0xFF, 0xFF}, CompressionZstd, 16); err == nil {
		t.Error("decompressWave accepted garbage zstd input")
	}
}

func TestBG8TransposeInverts(t *testing.T) {
	for _, size := range []int{0, 1, 7, 8, 9, 64, 1001} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 31)
		}
		if got := bg8Untranspose(bg8Transpose(data)); !bytes.Equal(got, data) {
			t.Errorf("size %d: untranspose(transpose(x)) != x", size)
		}
	}

	transposed := bg8Transpose([]byte{1, 2, 3, 4, 5, 6, 7, 8, 11, 12, 13, 14, 15, 16, 17, 18})
	want := []byte{1, 11, 2, 12, 3, 13, 4, 14, 5, 15, 6, 16, 7, 17, 8, 18}
	if !bytes.Equal(transposed, want) {
		t.Errorf("transpose = %v, want %v", transposed, want)
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd, CompressionBG8LZ4} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %v, %v", tag, parsed, err)
		}
	}
	if parsed, err := ParseCompressionTag(""); err != nil || parsed != CompressionNone {
		t.Errorf("empty name = %v, %v; want none", parsed, err)
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("ParseCompressionTag accepted an unknown name")
	}
}
