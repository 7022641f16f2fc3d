// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/wavefs/lib/wavelog"
)

// Location is where a live wave entry sits in the log.
type Location struct {
	// Offset is the frame offset in the log.
	Offset int64

	// Length is the full frame length, header included.
	Length int64

	// PayloadLength is the length of the original payload in bytes.
	PayloadLength int64

	// HasMetadata records whether the entry carries metadata.
	HasMetadata bool
}

// Index maps signatures of live waves to their log locations. It is
// safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[Signature]Location
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[Signature]Location)}
}

// Insert adds a signature. It returns ErrDuplicateSignature, leaving
// the existing location in place, if the signature is already indexed.
func (idx *Index) Insert(signature Signature, location Location) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.entries[signature]; exists {
		return ErrDuplicateSignature
	}
	idx.entries[signature] = location
	return nil
}

// Lookup returns the location of signature.
func (idx *Index) Lookup(signature Signature) (Location, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	location, ok := idx.entries[signature]
	return location, ok
}

// Remove drops signature and reports whether it was present.
func (idx *Index) Remove(signature Signature) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.entries[signature]
	delete(idx.entries, signature)
	return ok
}

// Len returns the number of indexed signatures.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Signatures returns a sorted snapshot of every indexed signature.
func (idx *Index) Signatures() []Signature {
	idx.mu.RLock()
	signatures := make([]Signature, 0, len(idx.entries))
	for signature := range idx.entries {
		signatures = append(signatures, signature)
	}
	idx.mu.RUnlock()

	slices.SortFunc(signatures, Signature.Compare)
	return signatures
}

// snapshot copies the index contents.
func (idx *Index) snapshot() map[Signature]Location {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	copied := make(map[Signature]Location, len(idx.entries))
	for signature, location := range idx.entries {
		copied[signature] = location
	}
	return copied
}

// RebuildIndex scans the whole log and indexes every live wave entry.
// Tombstones remove the entries they name.
//
// If an entry fails validation, RebuildIndex returns the index built
// from everything before it together with an *IndexCorruptError whose
// Offset is the bad frame. Truncating the log at that offset and
// reopening yields a consistent store.
func RebuildIndex(log *wavelog.Log) (*Index, error) {
	index := NewIndex()
	_, err := replayLog(log, index, wavelog.HeaderSize, nil)
	return index, err
}

// replayEvent reports one applied log entry to a replay observer.
type replayEvent struct {
	Kind      EntryKind
	Signature Signature
	Location  Location
	StoredAt  time.Time
}

// replayLog applies every entry from offset from to the log's
// committed end and returns the offset it stopped at. observe, if not
// nil, sees each applied entry.
func replayLog(log *wavelog.Log, index *Index, from int64, observe func(replayEvent)) (int64, error) {
	position := from
	err := log.Scan(from, func(frame wavelog.Frame) error {
		parsed, err := parseEntry(frame.Body)
		if err != nil {
			return &IndexCorruptError{Offset: frame.Offset, Reason: err.Error()}
		}

		event := replayEvent{
			Kind:      parsed.Kind,
			Signature: parsed.Signature,
			StoredAt:  parsed.StoredAt,
			Location: Location{
				Offset:        frame.Offset,
				Length:        frame.Length,
				PayloadLength: parsed.PayloadLength,
				HasMetadata:   parsed.Metadata != nil,
			},
		}
		switch parsed.Kind {
		case KindWave:
			// A second live copy of the same signature is never
			// written by Store; keeping the first is harmless.
			_ = index.Insert(parsed.Signature, event.Location)
		case KindTombstone:
			index.Remove(parsed.Signature)
		}
		if observe != nil {
			observe(event)
		}
		position = frame.Next()
		return nil
	})
	if err != nil {
		var corrupt *IndexCorruptError
		if errors.As(err, &corrupt) {
			return position, err
		}
		if errors.Is(err, wavelog.ErrCorruptFrame) {
			return position, &IndexCorruptError{Offset: position, Reason: err.Error()}
		}
		return position, fmt.Errorf("scanning log from offset %d: %w", from, err)
	}
	return position, nil
}
