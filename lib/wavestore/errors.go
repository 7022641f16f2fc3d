// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports a signature or name that is not in the store.
	ErrNotFound = errors.New("wavestore: not found")

	// ErrCorrupt reports a stored entry that failed validation,
	// signature re-verification, decompression or decoding on read.
	ErrCorrupt = errors.New("wavestore: corrupt entry")

	// ErrDuplicateSignature is returned by Index.Insert for a signature
	// that is already indexed. Store treats it as a dedup hit.
	ErrDuplicateSignature = errors.New("wavestore: duplicate signature")

	// ErrIndexCorrupt matches every *IndexCorruptError.
	ErrIndexCorrupt = errors.New("wavestore: log contains an invalid entry")

	// ErrVersionMismatch reports a store, log or descriptor written by
	// an incompatible format version.
	ErrVersionMismatch = errors.New("wavestore: format version mismatch")

	// ErrLocked reports that another process holds the store lock.
	ErrLocked = errors.New("wavestore: store is locked by another process")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("wavestore: store is closed")

	// ErrAmbiguous reports a short signature reference that matches
	// more than one stored wave.
	ErrAmbiguous = errors.New("wavestore: ambiguous signature prefix")
)

// IndexCorruptError reports the first log entry that failed validation
// while rebuilding the index.
type IndexCorruptError struct {
	Offset int64
	Reason string
}

func (e *IndexCorruptError) Error() string {
	return fmt.Sprintf("wavestore: invalid log entry at offset %d: %s", e.Offset, e.Reason)
}

func (e *IndexCorruptError) Is(target error) bool { return target == ErrIndexCorrupt }

// EntryError carries the context of a failed operation on one stored
// entry. It matches both its Kind sentinel (ErrNotFound, ErrCorrupt,
// ...) and its underlying cause.
type EntryError struct {
	Op        string
	Signature Signature

	// Offset is the log offset of the entry, or -1 if the failure
	// happened before the entry was located.
	Offset int64

	Kind error
	Err  error
}

func (e *EntryError) Error() string {
	var builder strings.Builder
	builder.WriteString("wavestore: ")
	builder.WriteString(e.Op)
	builder.WriteString(" ")
	builder.WriteString(e.Signature.Short())
	if e.Offset >= 0 {
		fmt.Fprintf(&builder, " at offset %d", e.Offset)
	}
	if e.Kind != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimPrefix(e.Kind.Error(), "wavestore: "))
	}
	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}
	return builder.String()
}

func (e *EntryError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func notFound(op string, signature Signature) error {
	return &EntryError{Op: op, Signature: signature, Offset: -1, Kind: ErrNotFound}
}

func corrupt(op string, signature Signature, offset int64, cause error) error {
	return &EntryError{Op: op, Signature: signature, Offset: offset, Kind: ErrCorrupt, Err: cause}
}
