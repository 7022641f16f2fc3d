// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/wavefs/lib/codec"
)

// MaxNameLength is the maximum byte length of a name.
const MaxNameLength = 512

// NameRecord binds a mutable, path-like name to a stored wave. The
// frequency the wave was stored at travels with the name, since the
// log does not record it.
type NameRecord struct {
	Name      string    `json:"name"`
	Target    Signature `json:"target"`
	Frequency float64   `json:"frequency"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NameIndex keeps name records in memory, backed by one CBOR file per
// name:
//
//	<root>/<hash[:2]>/<hash[2:4]>/<hash>.cbor
//
// where hash is the keyed BLAKE3 hash of the name. Each file holds the
// full record, name included, so the map is rebuilt from a directory
// walk on open.
type NameIndex struct {
	root    string
	mu      sync.RWMutex
	entries map[string]NameRecord
}

// ValidateName checks that name can be used as a path under the FUSE
// mount: non-empty slash-separated components, none of them "." or
// "..", and no NUL bytes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name is %d bytes, maximum is %d", len(name), MaxNameLength)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name %q contains a NUL byte", name)
	}
	for _, component := range strings.Split(name, "/") {
		switch component {
		case "":
			return fmt.Errorf("name %q has an empty path component", name)
		case ".", "..":
			return fmt.Errorf("name %q contains %q", name, component)
		}
	}
	return nil
}

func openNameIndex(root string) (*NameIndex, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating names directory %s: %w", root, err)
	}
	names := &NameIndex{root: root, entries: make(map[string]NameRecord)}
	if err := names.scanAll(); err != nil {
		return nil, fmt.Errorf("scanning names: %w", err)
	}
	return names, nil
}

// Get returns the record for name.
func (n *NameIndex) Get(name string) (NameRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	record, ok := n.entries[name]
	return record, ok
}

// set writes record, keeping the original CreatedAt if the name
// already exists.
func (n *NameIndex) set(record NameRecord, now time.Time) (NameRecord, error) {
	if err := ValidateName(record.Name); err != nil {
		return NameRecord{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	record.CreatedAt = now
	if existing, ok := n.entries[record.Name]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	record.UpdatedAt = now

	if err := n.writeFile(record); err != nil {
		return NameRecord{}, err
	}
	n.entries[record.Name] = record
	return record, nil
}

// remove deletes name. It reports whether the name existed.
func (n *NameIndex) remove(name string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.entries[name]; !ok {
		return false, nil
	}
	if err := os.Remove(n.namePath(name)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("removing name %q: %w", name, err)
	}
	delete(n.entries, name)
	return true, nil
}

// removeTarget deletes every name that points at signature and returns
// the removed names.
func (n *NameIndex) removeTarget(signature Signature) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var removed []string
	for name, record := range n.entries {
		if record.Target != signature {
			continue
		}
		if err := os.Remove(n.namePath(name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing name %q: %w", name, err)
		}
		delete(n.entries, name)
		removed = append(removed, name)
	}
	slices.Sort(removed)
	return removed, nil
}

// List returns every record whose name starts with prefix, sorted by
// name. An empty prefix lists everything.
func (n *NameIndex) List(prefix string) []NameRecord {
	n.mu.RLock()
	var records []NameRecord
	for name, record := range n.entries {
		if strings.HasPrefix(name, prefix) {
			records = append(records, record)
		}
	}
	n.mu.RUnlock()

	slices.SortFunc(records, func(a, b NameRecord) int { return strings.Compare(a.Name, b.Name) })
	return records
}

// Len returns the number of names.
func (n *NameIndex) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entries)
}

func (n *NameIndex) scanAll() error {
	return filepath.WalkDir(n.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cbor") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading name file %s: %w", path, err)
		}
		var record NameRecord
		if err := codec.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decoding name file %s: %w", path, err)
		}
		// A file whose name does not hash to its own path was not
		// written by this index.
		if record.Name == "" || n.namePath(record.Name) != path {
			return nil
		}
		n.entries[record.Name] = record
		return nil
	})
}

// writeFile atomically replaces the file for record.
func (n *NameIndex) writeFile(record NameRecord) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding name %q: %w", record.Name, err)
	}

	finalPath := n.namePath(record.Name)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating name shard directory: %w", err)
	}

	temporary, err := os.CreateTemp(n.root, "name-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp name file: %w", err)
	}
	temporaryPath := temporary.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(temporaryPath)
		}
	}()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing name data: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing temp name file: %w", err)
	}
	if err := os.Rename(temporaryPath, finalPath); err != nil {
		return fmt.Errorf("renaming name file to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

func (n *NameIndex) namePath(name string) string {
	digest := hashName(name)
	hexString := hex.EncodeToString(digest[:])
	return filepath.Join(n.root, hexString[:2], hexString[2:4], hexString+".cbor")
}
