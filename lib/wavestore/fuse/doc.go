// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes a wave store as a FUSE filesystem.
//
// The mount has two top-level directories:
//
//   - names/ is the hierarchical view of named waves. Names containing
//     forward slashes are presented as directory trees, and each leaf
//     reads back the payload decoded at the frequency recorded with
//     the name.
//
//   - signatures/ lists every live wave by its full hex signature.
//     Lookup also accepts a "wav-" short reference or an unambiguous
//     hex prefix. Files here decode at the store's base frequency.
//
// A file's size is the payload length from the index, so stat does
// not decode anything. The payload is decoded on Open and served from
// memory; the store's payload cache absorbs repeated opens. A payload
// that fails to decode (wrong frequency, tampered entry) fails Open
// with EIO and is logged.
//
// Files under names/ are writable unless Options.ReadOnly is set.
// Writes are buffered in memory per open file; each flush (close,
// fsync) stores the buffer as a new wave at the name's frequency, or
// the base frequency for a new name, and repoints the name. The
// previous wave stays in the store. Unlink removes only the name.
// Directories exist as long as a name lives below them; mkdir makes
// an empty one visible until the kernel forgets it. signatures/ is
// always read-only.
package fuse
