// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Signature is the 32-byte BLAKE3 keyed digest that addresses a stored
// wave.
type Signature [32]byte

// domainKey is a 32-byte BLAKE3 key. The bytes are the ASCII domain
// name zero-padded to 32 so they stay readable in hex dumps.
type domainKey [32]byte

// Changing either key invalidates every signature or name path in
// existing stores.
var (
	signatureDomainKey = domainKey{
		'b', 'u', 'r', 'e', 'a', 'u', '.', 'w', 'a', 'v', 'e', 'f', 's', '.',
		's', 'i', 'g', 'n', 'a', 't', 'u', 'r', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nameDomainKey = domainKey{
		'b', 'u', 'r', 'e', 'a', 'u', '.', 'w', 'a', 'v', 'e', 'f', 's', '.',
		'n', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// SignaturePrefix starts every short signature reference.
const SignaturePrefix = "wav-"

// Sign computes the signature of a serialized wave buffer and optional
// metadata. A nil metadata slice means "no metadata"; a non-nil empty
// slice is present-but-empty and signs differently.
//
// The hashed message is
//
//	u64le(len(wave)) || wave || u8(present) || u64le(len(meta)) || meta
//
// so no two distinct (wave, metadata) pairs share a message.
func Sign(waveBytes, metadata []byte) Signature {
	hasher := newKeyedHasher(signatureDomainKey)

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(waveBytes)))
	hasher.Write(scratch[:])
	hasher.Write(waveBytes)

	if metadata == nil {
		hasher.Write([]byte{0})
	} else {
		hasher.Write([]byte{1})
	}
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(metadata)))
	hasher.Write(scratch[:])
	hasher.Write(metadata)

	var signature Signature
	copy(signature[:], hasher.Sum(nil))
	return signature
}

// String returns the 64-character lowercase hex form.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Short returns the short reference: "wav-" and the first 12 hex
// characters. Short references are for display and prefix lookup;
// they are not unique.
func (s Signature) Short() string {
	return SignaturePrefix + hex.EncodeToString(s[:6])
}

// IsZero reports whether s is the zero signature.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Compare orders signatures by their bytes.
func (s Signature) Compare(other Signature) int {
	return bytes.Compare(s[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSignature parses the 64-character hex form.
func ParseSignature(text string) (Signature, error) {
	var signature Signature
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return signature, fmt.Errorf("parsing signature: %w", err)
	}
	if len(decoded) != len(signature) {
		return signature, fmt.Errorf("signature is %d bytes, want %d", len(decoded), len(signature))
	}
	copy(signature[:], decoded)
	return signature, nil
}

// parseSignaturePrefix accepts a short reference or a bare hex prefix
// and returns the lowercase hex prefix to match against.
func parseSignaturePrefix(text string) (string, error) {
	prefix := strings.ToLower(strings.TrimPrefix(text, SignaturePrefix))
	if prefix == "" {
		return "", fmt.Errorf("empty signature prefix")
	}
	if len(prefix) > 2*len(Signature{}) {
		return "", fmt.Errorf("signature prefix %q is longer than a signature", text)
	}
	for _, r := range prefix {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", fmt.Errorf("signature prefix %q is not hexadecimal", text)
		}
	}
	return prefix, nil
}

func hashName(name string) [32]byte {
	hasher := newKeyedHasher(nameDomainKey)
	hasher.Write([]byte(name))
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func newKeyedHasher(key domainKey) *blake3.Hasher {
	// NewKeyed only fails for keys that are not 32 bytes.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("wavestore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
