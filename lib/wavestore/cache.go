// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey includes the frequency so that a cached payload is never
// returned for a decode that would fail at a different frequency.
type cacheKey struct {
	signature Signature
	frequency uint64
}

func newCacheKey(signature Signature, f float64) cacheKey {
	return cacheKey{signature: signature, frequency: math.Float64bits(f)}
}

// payloadCache is an LRU of decoded payloads. A nil *payloadCache is a
// valid, always-empty cache.
type payloadCache struct {
	entries *lru.Cache[cacheKey, []byte]
}

func newPayloadCache(size int) (*payloadCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &payloadCache{entries: entries}, nil
}

func (c *payloadCache) get(key cacheKey) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *payloadCache) add(key cacheKey, payload []byte) {
	if c == nil {
		return
	}
	c.entries.Add(key, payload)
}

// forget drops every cached decode of signature.
func (c *payloadCache) forget(signature Signature) {
	if c == nil {
		return
	}
	for _, key := range c.entries.Keys() {
		if key.signature == signature {
			c.entries.Remove(key)
		}
	}
}

func (c *payloadCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
