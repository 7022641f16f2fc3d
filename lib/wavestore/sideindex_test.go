// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/wavefs/lib/wavelog"
)

// populate stores count payloads and deletes every third one.
func populate(t *testing.T, store *Store, count int) []Signature {
	t.Helper()
	var live []Signature
	for i := range count {
		signature := mustStore(t, store, []byte(fmt.Sprintf("side %d", i)), nil, golden)
		if i%3 == 2 {
			if err := store.Delete(signature); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			continue
		}
		live = append(live, signature)
	}
	slices.SortFunc(live, Signature.Compare)
	return live
}

func TestSideIndexMatchesRebuild(t *testing.T) {
	store, root := newTestStore(t, Options{})
	live := populate(t, store, 15)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	log, err := wavelog.Open(filepath.Join(root, logFileName), wavelog.Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := RebuildIndex(log)
	if err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	side, replay, err := loadSideIndex(filepath.Join(root, sideIndexFileName), log)
	if err != nil {
		t.Fatalf("loadSideIndex failed: %v", err)
	}
	side.close()

	if !slices.Equal(replay.index.Signatures(), rebuilt.Signatures()) {
		t.Error("side index and rebuilt index hold different signatures")
	}
	for _, signature := range live {
		fromSide, _ := replay.index.Lookup(signature)
		fromLog, _ := rebuilt.Lookup(signature)
		if fromSide != fromLog {
			t.Errorf("%s: side index location %+v, log location %+v", signature.Short(), fromSide, fromLog)
		}
	}
	if replay.watermark != log.Size() {
		t.Errorf("watermark = %d, want log end %d", replay.watermark, log.Size())
	}
	log.Close()

	store = openTestStore(t, root, Options{})
	if got := slices.Collect(store.List()); !slices.Equal(got, live) {
		t.Errorf("reopened store lists %d entries, want %d", len(got), len(live))
	}
}

func TestStaleSideIndexCatchesUp(t *testing.T) {
	store, root := newTestStore(t, Options{})
	populate(t, store, 4)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	sidePath := filepath.Join(root, sideIndexFileName)
	stale, err := os.ReadFile(sidePath)
	if err != nil {
		t.Fatal(err)
	}

	store = openTestStore(t, root, Options{})
	added := mustStore(t, store, []byte("written after the snapshot"), nil, golden)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	// As if the process died before the side index caught up.
	if err := os.WriteFile(sidePath, stale, 0o644); err != nil {
		t.Fatal(err)
	}

	store = openTestStore(t, root, Options{})
	if got := mustRetrieve(t, store, added, golden); string(got) != "written after the snapshot" {
		t.Errorf("caught-up entry = %q", got)
	}
	if n := len(slices.Collect(store.List())); n != 4 {
		t.Errorf("store lists %d entries, want 4", n)
	}
}

func TestDamagedSideIndexIsRebuilt(t *testing.T) {
	damage := map[string]func(t *testing.T, path string){
		"garbage": func(t *testing.T, path string) {
			if err := os.WriteFile(path, []byte("not a side index at all"), 0o644); err != nil {
				t.Fatal(err)
			}
		},
		"empty": func(t *testing.T, path string) {
			if err := os.Truncate(path, 0); err != nil {
				t.Fatal(err)
			}
		},
		"record offset": func(t *testing.T, path string) {
			// Corrupt the offset of the first record and fix its
			// checksum, so only the bounds checks can catch it.
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			record, err := decodeSideRecord(data[sideIndexHeaderSize : sideIndexHeaderSize+sideIndexRecordSize])
			if err != nil {
				t.Fatal(err)
			}
			record.Location.Offset += 1 << 30
			encoded := encodeSideRecord(record)
			copy(data[sideIndexHeaderSize:], encoded[:])
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}
		},
		"foreign tail": func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			last := len(data) - sideIndexRecordSize
			record, err := decodeSideRecord(data[last:])
			if err != nil {
				t.Fatal(err)
			}
			record.Signature = Sign([]byte("someone else"), nil)
			encoded := encodeSideRecord(record)
			copy(data[last:], encoded[:])
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}
		},
	}

	for name, apply := range damage {
		t.Run(name, func(t *testing.T) {
			store, root := newTestStore(t, Options{})
			live := populate(t, store, 9)
			if err := store.Close(); err != nil {
				t.Fatal(err)
			}
			apply(t, filepath.Join(root, sideIndexFileName))

			store = openTestStore(t, root, Options{})
			if got := slices.Collect(store.List()); !slices.Equal(got, live) {
				t.Errorf("rebuilt store lists %d entries, want %d", len(got), len(live))
			}
			for _, signature := range live {
				mustRetrieve(t, store, signature, golden)
			}
		})
	}
}

func TestTornSideIndexRecord(t *testing.T) {
	store, root := newTestStore(t, Options{})
	live := populate(t, store, 6)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	sidePath := filepath.Join(root, sideIndexFileName)
	file, err := os.OpenFile(sidePath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.Write(make([]byte, sideIndexRecordSize/2)); err != nil {
		t.Fatal(err)
	}
	file.Close()

	store = openTestStore(t, root, Options{})
	if got := slices.Collect(store.List()); !slices.Equal(got, live) {
		t.Errorf("store lists %d entries, want %d", len(got), len(live))
	}
	mustStore(t, store, []byte("appended after a torn record"), nil, golden)
	store = reopenTestStore(t, store, Options{})
	if n := len(slices.Collect(store.List())); n != len(live)+1 {
		t.Errorf("store lists %d entries, want %d", n, len(live)+1)
	}
}
