// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

// Log entry body layout. All integers little-endian.
const (
	entryVersion = 1

	entryVersionOffset     = 0
	entryKindOffset        = 1
	entryCompressionOffset = 2
	entryFlagsOffset       = 3
	entrySignatureOffset   = 4
	entryPayloadLenOffset  = 36
	entryMetadataLenOffset = 44
	entryWaveLenOffset     = 48
	entryTimestampOffset   = 56
	entryCRCOffset         = 64

	// entryHeaderSize is the fixed part of every entry; metadata and
	// then the stored wave bytes follow it.
	entryHeaderSize = 68

	entryFlagMetadata = 1 << 0
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// EntryKind distinguishes stored waves from deletion markers.
type EntryKind uint8

const (
	// KindWave is a stored wave buffer with optional metadata.
	KindWave EntryKind = 1

	// KindTombstone marks a previously stored signature as deleted.
	KindTombstone EntryKind = 2
)

func (k EntryKind) String() string {
	switch k {
	case KindWave:
		return "wave"
	case KindTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// entry is a decoded log entry body. Metadata and Wave alias the body
// they were parsed from.
type entry struct {
	Kind          EntryKind
	Compression   CompressionTag
	Signature     Signature
	PayloadLength int64
	StoredAt      time.Time

	// Metadata is nil when the entry carries none, and non-nil (possibly
	// empty) when metadata was supplied.
	Metadata []byte

	// Wave holds the stored wave bytes, compressed per Compression.
	Wave []byte
}

// encodeEntry serializes e into a log entry body.
func encodeEntry(e entry) []byte {
	body := make([]byte, entryHeaderSize, entryHeaderSize+len(e.Metadata)+len(e.Wave))
	body[entryVersionOffset] = entryVersion
	body[entryKindOffset] = byte(e.Kind)
	body[entryCompressionOffset] = byte(e.Compression)
	if e.Metadata != nil {
		body[entryFlagsOffset] = entryFlagMetadata
	}
	copy(body[entrySignatureOffset:entryPayloadLenOffset], e.Signature[:])
	binary.LittleEndian.PutUint64(body[entryPayloadLenOffset:], uint64(e.PayloadLength))
	binary.LittleEndian.PutUint32(body[entryMetadataLenOffset:], uint32(len(e.Metadata)))
	binary.LittleEndian.PutUint64(body[entryWaveLenOffset:], uint64(len(e.Wave)))
	binary.LittleEndian.PutUint64(body[entryTimestampOffset:], uint64(e.StoredAt.UnixNano()))
	binary.LittleEndian.PutUint32(body[entryCRCOffset:], crc32.Checksum(body[:entryCRCOffset], crc32cTable))

	body = append(body, e.Metadata...)
	body = append(body, e.Wave...)
	return body
}

// parseEntry validates a log entry body's internal length fields and
// header checksum, and returns the decoded entry. It does not verify
// the signature; that requires the uncompressed wave bytes.
func parseEntry(body []byte) (entry, error) {
	if len(body) < entryHeaderSize {
		return entry{}, fmt.Errorf("entry is %d bytes, shorter than the %d-byte header", len(body), entryHeaderSize)
	}

	stored := binary.LittleEndian.Uint32(body[entryCRCOffset:])
	if computed := crc32.Checksum(body[:entryCRCOffset], crc32cTable); stored != computed {
		return entry{}, fmt.Errorf("header checksum %08x, computed %08x", stored, computed)
	}
	if version := body[entryVersionOffset]; version != entryVersion {
		return entry{}, fmt.Errorf("entry format version %d, this build reads %d", version, entryVersion)
	}

	e := entry{
		Kind:        EntryKind(body[entryKindOffset]),
		Compression: CompressionTag(body[entryCompressionOffset]),
	}
	if e.Kind != KindWave && e.Kind != KindTombstone {
		return entry{}, fmt.Errorf("unknown entry kind %d", body[entryKindOffset])
	}
	if !e.Compression.valid() {
		return entry{}, fmt.Errorf("unknown compression tag %d", body[entryCompressionOffset])
	}
	flags := body[entryFlagsOffset]
	if flags&^entryFlagMetadata != 0 {
		return entry{}, fmt.Errorf("unknown entry flags %#02x", flags)
	}
	copy(e.Signature[:], body[entrySignatureOffset:entryPayloadLenOffset])

	payloadLength := binary.LittleEndian.Uint64(body[entryPayloadLenOffset:])
	metadataLength := uint64(binary.LittleEndian.Uint32(body[entryMetadataLenOffset:]))
	waveLength := binary.LittleEndian.Uint64(body[entryWaveLenOffset:])
	e.StoredAt = time.Unix(0, int64(binary.LittleEndian.Uint64(body[entryTimestampOffset:])))

	if payloadLength > wave.MaxPayloadSize {
		return entry{}, fmt.Errorf("payload length %d exceeds the maximum %d", payloadLength, wave.MaxPayloadSize)
	}
	bodyLength := uint64(len(body) - entryHeaderSize)
	if metadataLength > bodyLength || waveLength != bodyLength-metadataLength {
		return entry{}, fmt.Errorf("length fields (metadata %d, wave %d) do not add up to a %d-byte body",
			metadataLength, waveLength, len(body))
	}
	e.PayloadLength = int64(payloadLength)

	switch e.Kind {
	case KindWave:
		if e.Compression == CompressionNone && waveLength != payloadLength*wave.SampleSize {
			return entry{}, fmt.Errorf("wave is %d bytes, payload length %d needs %d",
				waveLength, payloadLength, payloadLength*wave.SampleSize)
		}
		if flags&entryFlagMetadata == 0 && metadataLength != 0 {
			return entry{}, fmt.Errorf("%d metadata bytes without the metadata flag", metadataLength)
		}
	case KindTombstone:
		if metadataLength != 0 || waveLength != 0 || flags != 0 || e.Compression != CompressionNone {
			return entry{}, fmt.Errorf("tombstone carries data")
		}
	}

	if flags&entryFlagMetadata != 0 {
		e.Metadata = body[entryHeaderSize : entryHeaderSize+metadataLength : entryHeaderSize+metadataLength]
	}
	e.Wave = body[entryHeaderSize+metadataLength:]
	return e, nil
}
