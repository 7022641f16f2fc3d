// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/bureau-foundation/wavefs/lib/config"
)

func TestEmitJSON(t *testing.T) {
	var output bytes.Buffer
	var params JSONOutput

	done, err := params.EmitJSON(&output, map[string]int{"entries": 3})
	if done || err != nil || output.Len() != 0 {
		t.Fatalf("EmitJSON without --json = (%v, %v), wrote %q", done, err, output.String())
	}

	params.OutputJSON = true
	done, err = params.EmitJSON(&output, map[string]int{"entries": 3})
	if !done || err != nil {
		t.Fatalf("EmitJSON failed: (%v, %v)", done, err)
	}
	if output.String() != "{\n  \"entries\": 3\n}\n" {
		t.Errorf("output = %q", output.String())
	}
}

func TestWriteJSONNilSlice(t *testing.T) {
	var output bytes.Buffer
	var entries []string
	if err := WriteJSON(&output, entries); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if output.String() != "[]\n" {
		t.Errorf("output = %q, want []", output.String())
	}
}

func TestNewLogger(t *testing.T) {
	var output bytes.Buffer

	logger, err := NewLogger(&output, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "signature", "abc")
	if bytes.Contains(output.Bytes(), []byte("hidden")) {
		t.Error("info record passed a warn-level logger")
	}
	if !bytes.Contains(output.Bytes(), []byte(`"signature":"abc"`)) {
		t.Errorf("output = %q, want a JSON record", output.String())
	}

	// A buffer is not a terminal, so an empty format means JSON.
	output.Reset()
	logger, err = NewLogger(&output, config.LogConfig{Level: "info"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hello")
	if !bytes.HasPrefix(output.Bytes(), []byte("{")) {
		t.Errorf("output = %q, want JSON", output.String())
	}

	if _, err := NewLogger(io.Discard, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("NewLogger accepted an unknown level")
	}
	if _, err := NewLogger(io.Discard, config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("NewLogger accepted an unknown format")
	}
}
