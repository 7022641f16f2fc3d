// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/wavefs/lib/clock"
)

func TestValidateName(t *testing.T) {
	valid := []string{"a", "docs/readme.txt", "deep/er/path", "with space", "ünïcode"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	invalid := []string{"", "/leading", "trailing/", "double//slash", ".", "a/../b", "a/./b", "nul\x00byte", strings.Repeat("x", MaxNameLength+1)}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) accepted an invalid name", name)
		}
	}
}

func TestNamesPersist(t *testing.T) {
	fake := clock.Fake(testEpoch)
	store, _ := newTestStore(t, Options{Clock: fake})
	first := mustStore(t, store, []byte("first"), nil, golden)
	second := mustStore(t, store, []byte("second version"), nil, 2.0)

	record, err := store.SetName("docs/readme", first, golden)
	if err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if record.Size != 5 || !record.CreatedAt.Equal(testEpoch) {
		t.Errorf("record = %+v", record)
	}

	fake.Advance(time.Hour)
	record, err = store.SetName("docs/readme", second, 2.0)
	if err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if !record.CreatedAt.Equal(testEpoch) || !record.UpdatedAt.Equal(testEpoch.Add(time.Hour)) {
		t.Errorf("rebinding changed CreatedAt or missed UpdatedAt: %+v", record)
	}
	if _, err := store.SetName("docs/other", first, golden); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if _, err := store.SetName("top", first, golden); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}

	store = reopenTestStore(t, store, Options{})
	got, ok := store.Names().Get("docs/readme")
	if !ok || got.Target != second || got.Frequency != 2.0 {
		t.Fatalf("Get after reopen = %+v, %v", got, ok)
	}
	if payload := mustRetrieve(t, store, got.Target, got.Frequency); string(payload) != "second version" {
		t.Errorf("payload via name = %q", payload)
	}

	listed := store.Names().List("docs/")
	if len(listed) != 2 || listed[0].Name != "docs/other" || listed[1].Name != "docs/readme" {
		t.Errorf("List(docs/) = %+v", listed)
	}
	if n := len(store.Names().List("")); n != 3 {
		t.Errorf("List() has %d names, want 3", n)
	}
}

func TestSetNameRequiresStoredWave(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	if _, err := store.SetName("dangling", Sign([]byte("nothing"), nil), golden); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetName to unknown signature: %v", err)
	}
	signature := mustStore(t, store, []byte("x"), nil, golden)
	if _, err := store.SetName("bad/../name", signature, golden); err == nil {
		t.Error("SetName accepted an invalid name")
	}
	if _, err := store.SetName("ok", signature, 0); err == nil {
		t.Error("SetName accepted frequency 0")
	}
}

func TestRemoveName(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	signature := mustStore(t, store, []byte("x"), nil, golden)
	if _, err := store.SetName("gone", signature, golden); err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveName("gone"); err != nil {
		t.Fatalf("RemoveName failed: %v", err)
	}
	if err := store.RemoveName("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveName: %v", err)
	}
	mustRetrieve(t, store, signature, golden)
}

func TestDeleteRemovesNames(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	doomed := mustStore(t, store, []byte("doomed"), nil, golden)
	kept := mustStore(t, store, []byte("kept"), nil, golden)
	for _, name := range []string{"a", "b/c"} {
		if _, err := store.SetName(name, doomed, golden); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.SetName("survivor", kept, golden); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(doomed); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	store = reopenTestStore(t, store, Options{})
	names := store.Names().List("")
	if len(names) != 1 || names[0].Name != "survivor" {
		t.Errorf("names after Delete = %+v", names)
	}
	if store.Stats().Names != 1 {
		t.Errorf("Stats().Names = %d", store.Stats().Names)
	}
}

func TestNameIndexIgnoresStrayFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "names")
	names, err := openNameIndex(root)
	if err != nil {
		t.Fatalf("openNameIndex failed: %v", err)
	}
	if _, err := names.set(NameRecord{Name: "real", Target: Sign([]byte("r"), nil), Frequency: golden}, testEpoch); err != nil {
		t.Fatal(err)
	}
	// A valid record filed under the wrong hash path.
	data, err := os.ReadFile(names.namePath("real"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "misfiled.cbor"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	reopened, err := openNameIndex(root)
	if err != nil {
		t.Fatalf("openNameIndex failed: %v", err)
	}
	if reopened.Len() != 1 {
		t.Errorf("reopened index has %d names, want 1", reopened.Len())
	}
}
