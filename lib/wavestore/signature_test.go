// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"strings"
	"testing"
)

func TestSignDistinguishesMetadata(t *testing.T) {
	wave := []byte("wave bytes")
	absent := Sign(wave, nil)
	empty := Sign(wave, []byte{})
	if absent == empty {
		t.Error("nil and empty metadata produce the same signature")
	}
	if Sign(wave, nil) != absent {
		t.Error("Sign is not deterministic")
	}
	// Moving a byte across the wave/metadata boundary must change the
	// signature.
	if Sign([]byte("ab"), []byte("c")) == Sign([]byte("a"), []byte("bc")) {
		t.Error("boundary between wave and metadata is not committed")
	}
}

func TestSignatureText(t *testing.T) {
	signature := Sign([]byte("text"), nil)

	text := signature.String()
	if len(text) != 64 {
		t.Fatalf("String() has %d characters, want 64", len(text))
	}
	parsed, err := ParseSignature(text)
	if err != nil {
		t.Fatalf("ParseSignature failed: %v", err)
	}
	if parsed != signature {
		t.Error("ParseSignature(String()) does not round-trip")
	}

	short := signature.Short()
	if !strings.HasPrefix(short, SignaturePrefix) || len(short) != len(SignaturePrefix)+12 {
		t.Errorf("Short() = %q", short)
	}
	if !strings.HasPrefix(text, strings.TrimPrefix(short, SignaturePrefix)) {
		t.Errorf("Short() %q is not a prefix of %q", short, text)
	}

	var unmarshaled Signature
	if err := unmarshaled.UnmarshalText([]byte(text)); err != nil || unmarshaled != signature {
		t.Errorf("UnmarshalText = %s, %v", unmarshaled.Short(), err)
	}
}

func TestParseSignatureRejects(t *testing.T) {
	for _, text := range []string{
		"",
		"abcd",
		strings.Repeat("g", 64),
		strings.Repeat("a", 66),
	} {
		if _, err := ParseSignature(text); err == nil {
			t.Errorf("ParseSignature(%q) succeeded", text)
		}
	}
}

func TestParseSignaturePrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"wav-0123ab", "0123ab", true},
		{"ABCDEF", "abcdef", true},
		{"wav-", "", false},
		{"", "", false},
		{"wav-0123zz", "", false},
		{strings.Repeat("0", 65), "", false},
	}
	for _, test := range tests {
		got, err := parseSignaturePrefix(test.input)
		if (err == nil) != test.ok || got != test.want {
			t.Errorf("parseSignaturePrefix(%q) = %q, %v", test.input, got, err)
		}
	}
}

func TestSignatureCompare(t *testing.T) {
	var low, high Signature
	high[0] = 1
	if low.Compare(high) >= 0 || high.Compare(low) <= 0 || low.Compare(low) != 0 {
		t.Error("Compare does not order by bytes")
	}
	if !low.IsZero() || high.IsZero() {
		t.Error("IsZero is wrong")
	}
}
