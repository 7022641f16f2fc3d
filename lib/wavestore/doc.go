// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wavestore is a content-addressed store of wave-encoded
// payloads. A payload is encoded into a wave buffer (see lib/wave),
// signed, and appended to a single log file (see lib/wavelog). It is
// retrieved by signature and base frequency; the frequency is not
// stored, so decoding at the wrong one fails instead of returning
// wrong bytes.
//
// # Layout
//
//	<root>/wave.log          append-only log, one entry per frame
//	<root>/index.wsi         side index, replayed on open
//	<root>/descriptor.cbor   format version, base frequency, compression
//	<root>/names/            one CBOR record per name
//	<root>/LOCK              exclusive flock held while open
//
// # Entries
//
// Each log frame holds one entry: a 68-byte header (version, kind,
// compression, flags, signature, payload length, metadata length,
// stored wave length, timestamp, header CRC32C) followed by the
// metadata bytes and then the stored wave bytes. Deletion appends a
// tombstone entry; nothing in the log is rewritten.
//
// This layout is the on-disk contract. The version byte leads every
// entry and any change to field order, widths, or the metadata/wave
// ordering bumps both it and FormatVersion in store.json. Readers
// reject entries whose version they do not know.
//
// The header CRC guards the length fields. The body is guarded by the
// signature: Retrieve decompresses the wave, recomputes the signature
// over wave and metadata, and decodes with an exact re-encode check.
// Any failure is ErrCorrupt, never a silent repair.
//
// # Signatures
//
// A signature is a keyed BLAKE3 hash over the uncompressed wave bytes
// and the metadata, so the same payload stored with different metadata
// or a different frequency gets a different signature, and changing
// the store's compression does not change any signature.
//
// # Index recovery
//
// The in-memory index maps live signatures to log locations. On open
// it is restored from index.wsi, then any entries past the side
// index's last record are read from the log. If the side index is
// missing or disagrees with the log, the index is rebuilt from the
// whole log ([RebuildIndex]). An entry that fails validation during
// that scan fails Open with ErrIndexCorrupt unless
// Options.RepairCorruption is set, in which case the log is truncated
// at that entry.
package wavestore
