// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for wavefs on-disk
// state: the store descriptor and the name records under names/.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same record always produces identical bytes, so a rewritten name
// file only changes on disk when its contents change.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only ever stored carry `cbor` struct tags. Types that
// are also printed by the CLI as JSON carry `json` tags, which
// fxamacker/cbor reads as a fallback. A field never carries both.
package codec
