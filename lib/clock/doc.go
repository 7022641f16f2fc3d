// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so that timestamps written
// into log entries, name records, and the store descriptor can be
// pinned in tests.
//
// Production code injects [Real]; tests inject [Fake] and move time
// with [FakeClock.Advance] or [FakeClock.Set].
package clock
