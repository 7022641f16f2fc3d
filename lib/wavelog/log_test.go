// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavelog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wave.log")
	log, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log, path
}

func reopen(t *testing.T, log *Log, path string) *Log {
	t.Helper()
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })
	return reopened
}

func collectBodies(t *testing.T, log *Log) [][]byte {
	t.Helper()
	var bodies [][]byte
	err := log.Scan(HeaderSize, func(frame Frame) error {
		bodies = append(bodies, frame.Body)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return bodies
}

func TestOpenCreatesHeader(t *testing.T) {
	log, path := newTestLog(t)
	if log.Size() != HeaderSize {
		t.Errorf("Size() = %d, want %d", log.Size(), HeaderSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize || string(data[:8]) != "BWAVELOG" {
		t.Errorf("unexpected header bytes %x", data)
	}
}

func TestAppendAndReadFrame(t *testing.T) {
	log, _ := newTestLog(t)

	bodies := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xAB}, 4096)}
	var offsets []int64
	for _, body := range bodies {
		offset, err := log.Append(body)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		offsets = append(offsets, offset)
	}

	if offsets[0] != HeaderSize {
		t.Errorf("first frame at %d, want %d", offsets[0], HeaderSize)
	}
	for i := 1; i < len(offsets); i++ {
		want := offsets[i-1] + FrameHeaderSize + int64(len(bodies[i-1]))
		if offsets[i] != want {
			t.Errorf("frame %d at %d, want %d", i, offsets[i], want)
		}
	}

	for i, offset := range offsets {
		frame, err := log.ReadFrame(offset)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", offset, err)
		}
		if !bytes.Equal(frame.Body, bodies[i]) {
			t.Errorf("frame %d body mismatch", i)
		}
		if frame.Length != FrameHeaderSize+int64(len(bodies[i])) {
			t.Errorf("frame %d length = %d", i, frame.Length)
		}
	}

	raw, err := log.Read(offsets[0]+FrameHeaderSize, 5)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(raw) != "first" {
		t.Errorf("Read = %q, want %q", raw, "first")
	}
}

func TestReopenPreservesFrames(t *testing.T) {
	log, path := newTestLog(t)
	for i := range 10 {
		if _, err := log.Append([]byte(fmt.Sprintf("frame-%d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	size := log.Size()

	log = reopen(t, log, path)
	if log.Size() != size {
		t.Errorf("Size() after reopen = %d, want %d", log.Size(), size)
	}
	bodies := collectBodies(t, log)
	if len(bodies) != 10 {
		t.Fatalf("got %d frames after reopen, want 10", len(bodies))
	}
	for i, body := range bodies {
		if string(body) != fmt.Sprintf("frame-%d", i) {
			t.Errorf("frame %d = %q", i, body)
		}
	}
}

func TestOpenTruncatesTornTail(t *testing.T) {
	tests := []struct {
		name string
		tail func() []byte
	}{
		{"partial length field", func() []byte { return []byte{0x10, 0x00, 0x00} }},
		{"header without body", func() []byte {
			frame := make([]byte, FrameHeaderSize)
			encodeFrameHeader(frame, 100)
			return frame
		}},
		{"half a body", func() []byte {
			frame := make([]byte, FrameHeaderSize)
			encodeFrameHeader(frame, 100)
			return append(frame, bytes.Repeat([]byte{1}, 50)...)
		}},
		{"garbage length", func() []byte { return bytes.Repeat([]byte{0xFF}, 32) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			log, path := newTestLog(t)
			for i := range 3 {
				if _, err := log.Append([]byte(fmt.Sprintf("entry %d", i))); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			committed := log.Size()
			if err := log.Close(); err != nil {
				t.Fatal(err)
			}

			file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := file.Write(test.tail()); err != nil {
				t.Fatal(err)
			}
			file.Close()

			reopened, err := Open(path, Options{NoSync: true})
			if err != nil {
				t.Fatalf("Open after torn write failed: %v", err)
			}
			defer reopened.Close()

			if reopened.Size() != committed {
				t.Errorf("committed end = %d, want %d", reopened.Size(), committed)
			}
			if bodies := collectBodies(t, reopened); len(bodies) != 3 {
				t.Errorf("got %d frames, want 3", len(bodies))
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() != committed {
				t.Errorf("file size = %d, want torn bytes removed (%d)", info.Size(), committed)
			}

			offset, err := reopened.Append([]byte("after recovery"))
			if err != nil {
				t.Fatalf("Append after recovery failed: %v", err)
			}
			if offset != committed {
				t.Errorf("new frame at %d, want %d", offset, committed)
			}
		})
	}
}

// appendFrames writes count frames and returns their offsets.
func appendFrames(t *testing.T, log *Log, count int) []int64 {
	t.Helper()
	var offsets []int64
	for i := range count {
		offset, err := log.Append([]byte(fmt.Sprintf("entry %d", i)))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		offsets = append(offsets, offset)
	}
	return offsets
}

func flipFileByte(t *testing.T, path string, offset int64) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	buffer := make([]byte, 1)
	if _, err := file.ReadAt(buffer, offset); err != nil {
		t.Fatal(err)
	}
	buffer[0] ^= 0xFF
	if _, err := file.WriteAt(buffer, offset); err != nil {
		t.Fatal(err)
	}
}

func TestOpenRejectsDamagedFrameHeader(t *testing.T) {
	log, path := newTestLog(t)
	offsets := appendFrames(t, log, 4)
	size := log.Size()
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	flipFileByte(t, path, offsets[1])

	_, err := Open(path, Options{NoSync: true})
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || !errors.Is(err, ErrCorruptFrame) {
		t.Fatalf("Open error = %v, want *FrameError", err)
	}
	if frameErr.Offset != offsets[1] {
		t.Errorf("damaged offset = %d, want %d", frameErr.Offset, offsets[1])
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != size {
		t.Fatalf("file size = %d after a failed Open, want %d untouched", info.Size(), size)
	}

	repaired, err := Open(path, Options{NoSync: true, RepairCorruption: true})
	if err != nil {
		t.Fatalf("Open with repair failed: %v", err)
	}
	defer repaired.Close()
	if repaired.Size() != offsets[1] {
		t.Errorf("committed end = %d, want %d", repaired.Size(), offsets[1])
	}
	if bodies := collectBodies(t, repaired); len(bodies) != 1 {
		t.Errorf("got %d frames after repair, want 1", len(bodies))
	}
}

func TestOpenTruncatesDamagedFinalHeader(t *testing.T) {
	log, path := newTestLog(t)
	offsets := appendFrames(t, log, 3)
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	flipFileByte(t, path, offsets[2]+5)

	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != offsets[2] {
		t.Errorf("committed end = %d, want %d", reopened.Size(), offsets[2])
	}
}

func TestOpenCompletesPartialHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wave.log")
	if err := os.WriteFile(path, []byte("BWAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	log, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer log.Close()
	if log.Size() != HeaderSize {
		t.Errorf("Size() = %d, want %d", log.Size(), HeaderSize)
	}
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	badVersion := make([]byte, HeaderSize)
	copy(badVersion, logMagic)
	binary.LittleEndian.PutUint32(badVersion[8:12], 99)
	binary.LittleEndian.PutUint32(badVersion[12:16], crc32.Checksum(badVersion[:12], crc32cTable))

	badChecksum := encodeHeader()
	badChecksum[15] ^= 0xFF

	tests := map[string][]byte{
		"wrong magic":   []byte("NOTAWAVELOGFILE!"),
		"short foreign": []byte("hello"),
		"wrong version": badVersion,
		"bad checksum":  badChecksum,
	}
	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wave.log")
			if err := os.WriteFile(path, contents, 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Open(path, Options{NoSync: true})
			if !errors.Is(err, ErrVersionMismatch) {
				t.Errorf("Open error = %v, want ErrVersionMismatch", err)
			}
		})
	}
}

func TestReadOutOfRange(t *testing.T) {
	log, _ := newTestLog(t)
	offset, err := log.Append([]byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	end := log.Size()

	cases := []struct{ offset, length int64 }{
		{0, 4},
		{end, 1},
		{offset, end - offset + 1},
		{end + 100, 0},
		{offset, -1},
	}
	for _, c := range cases {
		_, err := log.Read(c.offset, c.length)
		var rangeErr *OutOfRangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("Read(%d, %d) error = %v, want *OutOfRangeError", c.offset, c.length, err)
			continue
		}
		if !errors.Is(err, ErrOutOfRange) || rangeErr.End != end {
			t.Errorf("Read(%d, %d): %v", c.offset, c.length, err)
		}
	}

	if _, err := log.ReadFrame(end); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadFrame at end: error = %v, want ErrOutOfRange", err)
	}
}

func TestReadFrameRejectsMisalignedOffset(t *testing.T) {
	log, _ := newTestLog(t)
	offset, err := log.Append(bytes.Repeat([]byte{0x5A}, 64))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := log.ReadFrame(offset + 3); !errors.Is(err, ErrCorruptFrame) {
		t.Errorf("ReadFrame inside a body: error = %v, want ErrCorruptFrame", err)
	}
}

func TestTruncate(t *testing.T) {
	log, path := newTestLog(t)
	var offsets []int64
	for i := range 5 {
		offset, err := log.Append([]byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		offsets = append(offsets, offset)
	}

	if err := log.Truncate(offsets[3]); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if log.Size() != offsets[3] {
		t.Errorf("Size() = %d, want %d", log.Size(), offsets[3])
	}

	log = reopen(t, log, path)
	if bodies := collectBodies(t, log); len(bodies) != 3 {
		t.Errorf("got %d frames after truncate, want 3", len(bodies))
	}

	if err := log.Truncate(log.Size() + 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Truncate past end: error = %v, want ErrOutOfRange", err)
	}
}

func TestScanStopsOnCallbackError(t *testing.T) {
	log, _ := newTestLog(t)
	for i := range 4 {
		if _, err := log.Append([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	stop := errors.New("stop")
	seen := 0
	err := log.Scan(HeaderSize, func(Frame) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Scan error = %v, want callback error", err)
	}
	if seen != 2 {
		t.Errorf("callback ran %d times, want 2", seen)
	}
}

func TestClosedLog(t *testing.T) {
	log, _ := newTestLog(t)
	offset, err := log.Append([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if _, err := log.Append([]byte("y")); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close: %v", err)
	}
	if _, err := log.ReadFrame(offset); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFrame after Close: %v", err)
	}
	if err := log.Truncate(HeaderSize); !errors.Is(err, ErrClosed) {
		t.Errorf("Truncate after Close: %v", err)
	}
}

func TestConcurrentAppendAndRead(t *testing.T) {
	log, _ := newTestLog(t)

	const writers = 4
	const perWriter = 50
	var wg sync.WaitGroup
	offsets := make(chan int64, writers*perWriter)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				body := []byte(fmt.Sprintf("w%d-%d", w, i))
				offset, err := log.Append(body)
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
				frame, err := log.ReadFrame(offset)
				if err != nil {
					t.Errorf("ReadFrame failed: %v", err)
					return
				}
				if !bytes.Equal(frame.Body, body) {
					t.Errorf("read back %q, want %q", frame.Body, body)
				}
				offsets <- offset
			}
		}()
	}
	wg.Wait()
	close(offsets)

	seen := make(map[int64]bool)
	for offset := range offsets {
		if seen[offset] {
			t.Fatalf("offset %d handed out twice", offset)
		}
		seen[offset] = true
	}
	if bodies := collectBodies(t, log); len(bodies) != writers*perWriter {
		t.Errorf("got %d frames, want %d", len(bodies), writers*perWriter)
	}
}
