// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/bureau-foundation/wavefs/lib/wavelog"
)

// Side index file format. The side index is a replay log of index
// changes so that Open does not have to read every entry body. It is
// never authoritative: anything it cannot vouch for is re-read from
// the wave log.
const (
	sideIndexMagic   = "BWSI"
	sideIndexVersion = 1

	// magic(4) + version(4) + crc(4).
	sideIndexHeaderSize = 12

	// signature(32) + offset(8) + length(8) + payloadLength(8) +
	// kind(1) + flags(1) + reserved(2) + crc(4).
	sideIndexRecordSize = 64

	sideRecordFlagMetadata = 1 << 0
)

// sideRecord is one decoded side index record.
type sideRecord struct {
	Kind      EntryKind
	Signature Signature
	Location  Location
}

func encodeSideRecord(record sideRecord) [sideIndexRecordSize]byte {
	var buffer [sideIndexRecordSize]byte
	copy(buffer[0:32], record.Signature[:])
	binary.LittleEndian.PutUint64(buffer[32:40], uint64(record.Location.Offset))
	binary.LittleEndian.PutUint64(buffer[40:48], uint64(record.Location.Length))
	binary.LittleEndian.PutUint64(buffer[48:56], uint64(record.Location.PayloadLength))
	buffer[56] = byte(record.Kind)
	if record.Location.HasMetadata {
		buffer[57] = sideRecordFlagMetadata
	}
	binary.LittleEndian.PutUint32(buffer[60:64], crc32.Checksum(buffer[0:60], crc32cTable))
	return buffer
}

func decodeSideRecord(buffer []byte) (sideRecord, error) {
	if stored, computed := binary.LittleEndian.Uint32(buffer[60:64]), crc32.Checksum(buffer[0:60], crc32cTable); stored != computed {
		return sideRecord{}, fmt.Errorf("record checksum %08x, computed %08x", stored, computed)
	}
	var record sideRecord
	copy(record.Signature[:], buffer[0:32])
	record.Location = Location{
		Offset:        int64(binary.LittleEndian.Uint64(buffer[32:40])),
		Length:        int64(binary.LittleEndian.Uint64(buffer[40:48])),
		PayloadLength: int64(binary.LittleEndian.Uint64(buffer[48:56])),
		HasMetadata:   buffer[57]&sideRecordFlagMetadata != 0,
	}
	record.Kind = EntryKind(buffer[56])
	if record.Kind != KindWave && record.Kind != KindTombstone {
		return sideRecord{}, fmt.Errorf("unknown record kind %d", buffer[56])
	}
	return record, nil
}

func encodeSideIndexHeader() [sideIndexHeaderSize]byte {
	var header [sideIndexHeaderSize]byte
	copy(header[0:4], sideIndexMagic)
	binary.LittleEndian.PutUint32(header[4:8], sideIndexVersion)
	binary.LittleEndian.PutUint32(header[8:12], crc32.Checksum(header[0:8], crc32cTable))
	return header
}

// sideIndex is an open side index file. Records are appended after
// each committed log entry and the file is rewritten compactly on
// close.
type sideIndex struct {
	mu   sync.Mutex
	path string
	file *os.File
	size int64
}

// sideReplay is the state recovered from a side index.
type sideReplay struct {
	index *Index

	// watermark is the log offset up to which index is current.
	watermark int64

	// tail is the newest record, nil for an empty side index.
	tail *sideRecord
}

// loadSideIndex replays the side index at path into a fresh Index.
// Records are checked for checksum, offset monotonicity and bounds
// against the committed log end; the last record must name a frame
// whose entry carries the same signature and kind. Replay stops
// quietly at a torn trailing record, which is cut off so that later
// appends line up.
//
// A missing file yields an empty index current up to the log start.
// Any other inconsistency is an error and the caller rebuilds from the
// log instead.
func loadSideIndex(path string, log *wavelog.Log) (*sideIndex, sideReplay, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		side, err := createSideIndex(path, nil, nil)
		if err != nil {
			return nil, sideReplay{}, err
		}
		return side, sideReplay{index: NewIndex(), watermark: wavelog.HeaderSize}, nil
	}
	if err != nil {
		return nil, sideReplay{}, fmt.Errorf("opening side index %s: %w", path, err)
	}

	side := &sideIndex{path: path, file: file}
	replay, err := side.replay(log)
	if err != nil {
		file.Close()
		return nil, sideReplay{}, err
	}
	return side, replay, nil
}

func (side *sideIndex) replay(log *wavelog.Log) (sideReplay, error) {
	var header [sideIndexHeaderSize]byte
	if _, err := io.ReadFull(side.file, header[:]); err != nil {
		return sideReplay{}, fmt.Errorf("reading side index header: %w", err)
	}
	if header != encodeSideIndexHeader() {
		return sideReplay{}, fmt.Errorf("side index header is not %s version %d", sideIndexMagic, sideIndexVersion)
	}

	index := NewIndex()
	watermark := int64(wavelog.HeaderSize)
	logEnd := log.Size()
	var last *sideRecord
	var buffer [sideIndexRecordSize]byte
	validSize := int64(sideIndexHeaderSize)

	for {
		if _, err := io.ReadFull(side.file, buffer[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return sideReplay{}, fmt.Errorf("reading side index record: %w", err)
		}
		record, err := decodeSideRecord(buffer[:])
		if err != nil {
			// Torn or damaged trailing record: everything before it
			// stands.
			break
		}

		location := record.Location
		if location.Offset < watermark {
			return sideReplay{}, fmt.Errorf("side index record at log offset %d precedes offset %d", location.Offset, watermark)
		}
		if location.Length < wavelog.FrameHeaderSize+entryHeaderSize || location.Offset+location.Length > logEnd {
			return sideReplay{}, fmt.Errorf("side index record [%d, +%d) is outside the committed log (end %d)",
				location.Offset, location.Length, logEnd)
		}

		switch record.Kind {
		case KindWave:
			_ = index.Insert(record.Signature, location)
		case KindTombstone:
			index.Remove(record.Signature)
		}
		watermark = location.Offset + location.Length
		last = &record
		validSize += sideIndexRecordSize
	}

	if last != nil {
		frame, err := log.ReadFrame(last.Location.Offset)
		if err != nil {
			return sideReplay{}, fmt.Errorf("side index tail does not match the log: %w", err)
		}
		parsed, err := parseEntry(frame.Body)
		if err != nil || parsed.Signature != last.Signature || parsed.Kind != last.Kind || frame.Length != last.Location.Length {
			return sideReplay{}, fmt.Errorf("side index tail does not match the log entry at offset %d", last.Location.Offset)
		}
	}

	if err := side.file.Truncate(validSize); err != nil {
		return sideReplay{}, fmt.Errorf("truncating side index: %w", err)
	}
	side.size = validSize
	return sideReplay{index: index, watermark: watermark, tail: last}, nil
}

// createSideIndex writes a new side index at path holding records for
// the given live locations, replacing any existing file atomically.
// tail, when set, is the newest log entry; it is recorded even if it is
// a tombstone or no longer live, so that the next open knows the index
// is current up to the end of the log.
func createSideIndex(path string, entries map[Signature]Location, tail *sideRecord) (*sideIndex, error) {
	records := make([]sideRecord, 0, len(entries)+1)
	for signature, location := range entries {
		if tail != nil && location.Offset >= tail.Location.Offset {
			continue
		}
		records = append(records, sideRecord{Kind: KindWave, Signature: signature, Location: location})
	}
	if tail != nil {
		records = append(records, *tail)
	}
	slices.SortFunc(records, func(a, b sideRecord) int {
		switch {
		case a.Location.Offset < b.Location.Offset:
			return -1
		case a.Location.Offset > b.Location.Offset:
			return 1
		}
		return 0
	})

	buffer := make([]byte, 0, sideIndexHeaderSize+len(records)*sideIndexRecordSize)
	header := encodeSideIndexHeader()
	buffer = append(buffer, header[:]...)
	for _, record := range records {
		encoded := encodeSideRecord(record)
		buffer = append(buffer, encoded[:]...)
	}

	temporaryPath := path + ".tmp"
	if err := writeFileSync(temporaryPath, buffer); err != nil {
		return nil, fmt.Errorf("writing side index: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return nil, fmt.Errorf("installing side index: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("reopening side index: %w", err)
	}
	return &sideIndex{path: path, file: file, size: int64(len(buffer))}, nil
}

// append records one committed log entry.
func (side *sideIndex) append(record sideRecord) error {
	side.mu.Lock()
	defer side.mu.Unlock()
	if side.file == nil {
		return fmt.Errorf("side index %s is not open", side.path)
	}
	encoded := encodeSideRecord(record)
	if _, err := side.file.WriteAt(encoded[:], side.size); err != nil {
		return fmt.Errorf("appending side index record: %w", err)
	}
	side.size += sideIndexRecordSize
	return nil
}

// compact replaces the side index with one record per live entry plus
// the tail record.
func (side *sideIndex) compact(entries map[Signature]Location, tail *sideRecord) error {
	side.mu.Lock()
	defer side.mu.Unlock()
	if side.file != nil {
		side.file.Close()
	}

	compacted, err := createSideIndex(side.path, entries, tail)
	if err != nil {
		side.file = nil
		return err
	}
	side.file = compacted.file
	side.size = compacted.size
	return nil
}

// invalidate empties the side index file so that the next open
// rebuilds from the log, and stops further appends. Used when an
// append fails and the file may now be missing a record.
func (side *sideIndex) invalidate() {
	side.mu.Lock()
	defer side.mu.Unlock()
	if side.file == nil {
		return
	}
	side.file.Truncate(0)
	side.file.Close()
	side.file = nil
}

func (side *sideIndex) close() error {
	side.mu.Lock()
	defer side.mu.Unlock()
	if side.file == nil {
		return nil
	}
	err := side.file.Close()
	side.file = nil
	return err
}

// writeFileSync writes data to a new file at path and fsyncs it.
func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}
