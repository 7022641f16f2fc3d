// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads wavefs configuration.
//
// Configuration comes from a single file named by the WAVEFS_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). YAML is the native format; files ending in .json or
// .jsonc are stripped of comments and trailing commas first and then
// read by the same decoder, since YAML is a superset of JSON.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production forces durable writes:
// no_sync is cleared and logs default to JSON.
//
// After loading, ${VAR} and ${VAR:-default} patterns in store.root are
// expanded. No other environment variables override
// config values.
package config
