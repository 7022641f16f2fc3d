// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the wavefs
// binary: a tree of [Command] values dispatched by name, flags bound
// from tagged params structs, typo suggestions for unknown commands
// and flags, and helpers for JSON output and exit codes.
package cli
