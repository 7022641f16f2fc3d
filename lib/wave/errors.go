// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wave

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrequency is returned by Encode and Decode when the base
	// frequency is not a finite number in (0, MaxFrequency].
	ErrInvalidFrequency = errors.New("wave: invalid base frequency")

	// ErrPayloadTooLarge is returned by Encode for payloads above
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("wave: payload too large")

	// ErrCorruptBuffer matches every *CorruptBufferError.
	ErrCorruptBuffer = errors.New("wave: corrupt buffer")
)

// CorruptBufferError reports a buffer that cannot be decoded exactly.
// Index is the first bad sample, or -1 when the buffer as a whole is
// malformed (wrong length).
type CorruptBufferError struct {
	Index  int
	Reason string
}

func (e *CorruptBufferError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("wave: corrupt buffer: %s", e.Reason)
	}
	return fmt.Sprintf("wave: corrupt buffer at sample %d: %s", e.Index, e.Reason)
}

// Is makes errors.Is(err, ErrCorruptBuffer) true for any
// *CorruptBufferError.
func (e *CorruptBufferError) Is(target error) bool {
	return target == ErrCorruptBuffer
}
