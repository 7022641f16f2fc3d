// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavelog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

const (
	logMagic   = "BWAVELOG"
	logVersion = 1

	// HeaderSize is the size of the file header. The first frame
	// starts at this offset.
	HeaderSize = 16

	// FrameHeaderSize is the size of the length field plus its CRC.
	FrameHeaderSize = 8

	// MaxBodySize bounds a single frame body. It comfortably holds a
	// maximum-size wave buffer plus metadata.
	MaxBodySize = 1<<31 - 1
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Options configures Open.
type Options struct {
	// NoSync skips the fsync after each append. Acknowledged appends
	// can then be lost on power failure; use only for tests and bulk
	// imports that are re-run on failure.
	NoSync bool

	// RepairCorruption makes Open truncate the log at a damaged frame
	// header that has committed frames after it. Without it Open fails
	// with a *FrameError for that offset. A damaged header with nothing
	// valid after it is a torn tail and is truncated either way.
	RepairCorruption bool

	// Logger receives recovery events (torn tail truncation). Nil
	// disables logging below error level.
	Logger *slog.Logger
}

// Frame is one complete frame read from the log.
type Frame struct {
	// Offset is the position of the frame's length field.
	Offset int64

	// Length is the total frame size, header included.
	Length int64

	Body []byte
}

// Next returns the offset of the frame that follows this one.
func (f Frame) Next() int64 { return f.Offset + f.Length }

// Log is an open append-only log. Appends are serialized; reads may
// run concurrently with each other and with an append.
type Log struct {
	path   string
	file   *os.File
	noSync bool
	repair bool
	logger *slog.Logger

	// mu serializes Append, Truncate and Close.
	mu sync.Mutex

	// end is the committed end: every byte in [HeaderSize, end) belongs
	// to a complete, acknowledged frame.
	end    atomic.Int64
	closed atomic.Bool
}

// Open opens the log at path, creating it with a fresh header if it
// does not exist or is empty. An existing file is scanned frame by
// frame; a torn final frame is truncated away and logged. A damaged
// frame header followed by committed frames fails Open with a
// *FrameError unless Options.RepairCorruption is set.
func Open(path string, options Options) (*Log, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}

	log := &Log{
		path:   path,
		file:   file,
		noSync: options.NoSync,
		repair: options.RepairCorruption,
		logger: logger,
	}
	if err := log.recover(); err != nil {
		file.Close()
		return nil, err
	}
	return log, nil
}

// recover validates the header (writing one for a new file) and finds
// the committed end.
func (l *Log) recover() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	size := info.Size()
	header := encodeHeader()

	if size < HeaderSize {
		// A crash during creation can leave a prefix of the header.
		// Anything else this short is not our file.
		existing := make([]byte, size)
		if _, err := l.file.ReadAt(existing, 0); err != nil && err != io.EOF {
			return fmt.Errorf("reading header of %s: %w", l.path, err)
		}
		if !bytes.HasPrefix(header, existing) {
			return fmt.Errorf("%w: %s is %d bytes and does not start with a log header", ErrVersionMismatch, l.path, size)
		}
		if _, err := l.file.WriteAt(header, 0); err != nil {
			return fmt.Errorf("writing header of %s: %w", l.path, err)
		}
		if err := l.sync(); err != nil {
			return err
		}
		l.end.Store(HeaderSize)
		return nil
	}

	existing := make([]byte, HeaderSize)
	if _, err := l.file.ReadAt(existing, 0); err != nil {
		return fmt.Errorf("reading header of %s: %w", l.path, err)
	}
	if err := checkHeader(existing); err != nil {
		return fmt.Errorf("%s: %w", l.path, err)
	}

	end, damaged, err := l.scanCommittedEnd(size)
	if err != nil {
		return err
	}
	if damaged {
		follows, err := l.frameFollows(end, size)
		if err != nil {
			return err
		}
		if follows {
			if !l.repair {
				return &FrameError{Offset: end, Reason: "length checksum mismatch with committed frames after it"}
			}
			l.logger.Warn("truncating log at damaged frame header",
				"path", l.path,
				"offset", end,
				"discarded_bytes", size-end,
			)
			return l.truncateRecovered(end)
		}
	}
	if end < size {
		l.logger.Warn("truncating torn log tail",
			"path", l.path,
			"offset", end,
			"bytes", size-end,
		)
		return l.truncateRecovered(end)
	}
	l.end.Store(end)
	return nil
}

// truncateRecovered cuts the file at end and makes end the committed
// end.
func (l *Log) truncateRecovered(end int64) error {
	if err := l.file.Truncate(end); err != nil {
		return fmt.Errorf("truncating %s at %d: %w", l.path, end, err)
	}
	if err := l.sync(); err != nil {
		return err
	}
	l.end.Store(end)
	return nil
}

// scanCommittedEnd walks frame headers from the start of the log and
// returns the end of the last frame that is entirely present. damaged
// is set when the walk stopped at a header whose checksum failed.
func (l *Log) scanCommittedEnd(size int64) (int64, bool, error) {
	offset := int64(HeaderSize)
	var frameHeader [FrameHeaderSize]byte
	for offset+FrameHeaderSize <= size {
		if _, err := l.file.ReadAt(frameHeader[:], offset); err != nil {
			return 0, false, fmt.Errorf("scanning %s at offset %d: %w", l.path, offset, err)
		}
		bodyLength, ok := decodeFrameHeader(frameHeader[:])
		if !ok {
			return offset, true, nil
		}
		next := offset + FrameHeaderSize + bodyLength
		if next > size {
			break
		}
		offset = next
	}
	return offset, false, nil
}

// frameFollows reports whether a complete frame with a valid length
// checksum starts anywhere in (offset, size) and is followed by either
// the end of the file or another valid frame header. A torn append
// leaves nothing like that behind it.
func (l *Log) frameFollows(offset, size int64) (bool, error) {
	const window = 1 << 20
	buffer := make([]byte, window+FrameHeaderSize-1)
	var following [FrameHeaderSize]byte
	for start := offset + 1; start+FrameHeaderSize <= size; start += window {
		chunk := buffer[:min(int64(len(buffer)), size-start)]
		if _, err := l.file.ReadAt(chunk, start); err != nil {
			return false, fmt.Errorf("scanning %s at offset %d: %w", l.path, start, err)
		}
		for i := 0; i < window && i+FrameHeaderSize <= len(chunk); i++ {
			bodyLength, ok := decodeFrameHeader(chunk[i : i+FrameHeaderSize])
			if !ok {
				continue
			}
			next := start + int64(i) + FrameHeaderSize + bodyLength
			if next == size {
				return true, nil
			}
			if next+FrameHeaderSize > size {
				continue
			}
			if _, err := l.file.ReadAt(following[:], next); err != nil {
				return false, fmt.Errorf("scanning %s at offset %d: %w", l.path, next, err)
			}
			if _, ok := decodeFrameHeader(following[:]); ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// Append writes body as a new frame and returns the frame's offset.
// The frame is durable (unless NoSync) and visible to readers when
// Append returns. On failure the committed end does not move.
func (l *Log) Append(body []byte) (int64, error) {
	if len(body) > MaxBodySize {
		return 0, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return 0, ErrClosed
	}

	offset := l.end.Load()
	frame := make([]byte, FrameHeaderSize, FrameHeaderSize+len(body))
	encodeFrameHeader(frame, uint32(len(body)))
	frame = append(frame, body...)

	if _, err := l.file.WriteAt(frame, offset); err != nil {
		l.discardTail(offset)
		return 0, fmt.Errorf("appending %d bytes at offset %d: %w", len(frame), offset, err)
	}
	if err := l.sync(); err != nil {
		l.discardTail(offset)
		return 0, err
	}

	l.end.Store(offset + int64(len(frame)))
	return offset, nil
}

// discardTail removes a partially written frame. Failure is only
// logged: the bytes sit past the committed end and the next Open
// truncates them anyway.
func (l *Log) discardTail(end int64) {
	if err := l.file.Truncate(end); err != nil {
		l.logger.Error("discarding partial append failed",
			"path", l.path,
			"offset", end,
			"error", err,
		)
	}
}

// Read returns length bytes starting at offset. The range must lie
// within the committed region.
func (l *Log) Read(offset, length int64) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	end := l.end.Load()
	if offset < HeaderSize || length < 0 || offset > end || length > end-offset {
		return nil, &OutOfRangeError{Offset: offset, Length: length, End: end}
	}

	data := make([]byte, length)
	if _, err := l.file.ReadAt(data, offset); err != nil {
		if l.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
	}
	return data, nil
}

// ReadFrame reads the complete frame starting at offset.
func (l *Log) ReadFrame(offset int64) (Frame, error) {
	frameHeader, err := l.Read(offset, FrameHeaderSize)
	if err != nil {
		return Frame{}, err
	}
	bodyLength, ok := decodeFrameHeader(frameHeader)
	if !ok {
		return Frame{}, &FrameError{Offset: offset, Reason: "length checksum mismatch"}
	}
	body, err := l.Read(offset+FrameHeaderSize, bodyLength)
	if err != nil {
		if errors.Is(err, ErrOutOfRange) {
			return Frame{}, &FrameError{
				Offset: offset,
				Reason: fmt.Sprintf("body of %d bytes runs past the committed end", bodyLength),
			}
		}
		return Frame{}, err
	}
	return Frame{Offset: offset, Length: FrameHeaderSize + bodyLength, Body: body}, nil
}

// Scan calls fn for every frame from offset from to the committed end
// as of the call. from must be a frame boundary; HeaderSize starts at
// the first frame. Scan stops at the first error from fn or from
// reading, and returns it.
func (l *Log) Scan(from int64, fn func(Frame) error) error {
	end := l.end.Load()
	for offset := from; offset < end; {
		frame, err := l.ReadFrame(offset)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
		offset = frame.Next()
	}
	return nil
}

// Truncate discards every frame at or after offset. offset must be a
// frame boundary inside the committed region (or equal to its end).
func (l *Log) Truncate(offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return ErrClosed
	}

	end := l.end.Load()
	if offset < HeaderSize || offset > end {
		return &OutOfRangeError{Offset: offset, End: end}
	}
	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncating %s at %d: %w", l.path, offset, err)
	}
	if err := l.sync(); err != nil {
		return err
	}
	l.end.Store(offset)
	l.logger.Info("log truncated", "path", l.path, "offset", offset, "bytes", end-offset)
	return nil
}

// Size returns the committed end of the log.
func (l *Log) Size() int64 { return l.end.Load() }

// Path returns the file path the log was opened from.
func (l *Log) Path() string { return l.path }

// Close syncs and closes the file. Further operations return
// ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Swap(true) {
		return nil
	}
	syncErr := l.sync()
	closeErr := l.file.Close()
	return errors.Join(syncErr, closeErr)
}

func (l *Log) sync() error {
	if l.noSync {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", l.path, err)
	}
	return nil
}

func encodeHeader() []byte {
	header := make([]byte, HeaderSize)
	copy(header[0:8], logMagic)
	binary.LittleEndian.PutUint32(header[8:12], logVersion)
	binary.LittleEndian.PutUint32(header[12:16], crc32.Checksum(header[0:12], crc32cTable))
	return header
}

func checkHeader(header []byte) error {
	if magic := string(header[0:8]); magic != logMagic {
		return fmt.Errorf("%w: magic %q, want %q", ErrVersionMismatch, magic, logMagic)
	}
	if crc := binary.LittleEndian.Uint32(header[12:16]); crc != crc32.Checksum(header[0:12], crc32cTable) {
		return fmt.Errorf("%w: header checksum mismatch", ErrVersionMismatch)
	}
	if version := binary.LittleEndian.Uint32(header[8:12]); version != logVersion {
		return fmt.Errorf("%w: version %d, this build reads %d", ErrVersionMismatch, version, logVersion)
	}
	return nil
}

func encodeFrameHeader(dst []byte, bodyLength uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], bodyLength)
	binary.LittleEndian.PutUint32(dst[4:8], crc32.Checksum(dst[0:4], crc32cTable))
}

// decodeFrameHeader returns the body length, or false if the length
// checksum does not match.
func decodeFrameHeader(src []byte) (int64, bool) {
	if binary.LittleEndian.Uint32(src[4:8]) != crc32.Checksum(src[0:4], crc32cTable) {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint32(src[0:4])), true
}
