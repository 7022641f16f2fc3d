// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wavelog is a single-file, append-only log of length-prefixed
// frames. It knows nothing about what the frames contain; the wave
// store puts one log entry in each frame.
//
// # File format
//
// The file starts with a 16-byte header:
//
//	magic "BWAVELOG" (8) | version u32 | CRC32C of the first 12 bytes u32
//
// followed by frames laid end to end:
//
//	body length u32 | CRC32C of the 4 length bytes u32 | body
//
// All integers are little-endian. A frame is identified by the byte
// offset of its length field.
//
// # Durability
//
// [Log.Append] writes a frame at the committed end, fsyncs, and only
// then advances the committed end. A crash mid-append leaves a torn
// frame past the committed end. [Open] finds the end of the last
// complete frame and truncates anything after it. Nothing that was
// acknowledged is lost; nothing that was not acknowledged is visible.
//
// A frame header whose checksum fails is only treated as torn when
// no complete, valid frame follows it. Otherwise the log was damaged
// in place, and Open reports the offset instead of discarding the
// frames after it, unless Options.RepairCorruption asks for the
// truncation.
//
// The length CRC only guards the framing. Body integrity belongs to
// whoever interprets the body.
package wavelog
