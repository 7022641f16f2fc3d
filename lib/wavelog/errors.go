// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavelog

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch is returned by Open when the file header has
	// the wrong magic, an unknown version, or a bad header checksum.
	ErrVersionMismatch = errors.New("wavelog: unrecognized log format or version")

	// ErrOutOfRange matches every *OutOfRangeError.
	ErrOutOfRange = errors.New("wavelog: read outside committed region")

	// ErrCorruptFrame matches every *FrameError.
	ErrCorruptFrame = errors.New("wavelog: corrupt frame")

	// ErrBodyTooLarge is returned by Append for bodies above MaxBodySize.
	ErrBodyTooLarge = errors.New("wavelog: frame body too large")

	// ErrClosed is returned by every operation on a closed Log.
	ErrClosed = errors.New("wavelog: log is closed")
)

// OutOfRangeError reports a read that does not lie entirely within the
// committed region [HeaderSize, End).
type OutOfRangeError struct {
	Offset int64
	Length int64
	End    int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("wavelog: read of %d bytes at offset %d outside committed region [%d, %d)",
		e.Length, e.Offset, HeaderSize, e.End)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// FrameError reports a frame whose framing does not check out: from
// ReadFrame inside the committed region, or from Open for a damaged
// frame header in the middle of the log.
type FrameError struct {
	Offset int64
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("wavelog: corrupt frame at offset %d: %s", e.Offset, e.Reason)
}

func (e *FrameError) Is(target error) bool { return target == ErrCorruptFrame }
