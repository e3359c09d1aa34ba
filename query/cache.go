// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package query

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

type cacheKey [blake2b.Size256]byte

func keyOf(blob []byte, version int16) cacheKey {
	h, _ := blake2b.New256(nil)
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], uint16(version))
	h.Write(v[:])
	h.Write(blob)
	var k cacheKey
	h.Sum(k[:0])
	return k
}

// Cache memoizes prepared plans by the digest
// of their serialized form and version.
// Plans that fail to decode are not cached.
type Cache struct {
	eng *Engine
	lru *lru.Cache[cacheKey, *Prepared]
}

func newCache(e *Engine, size int) (*Cache, error) {
	c := &Cache{eng: e}
	l, err := lru.NewWithEvict[cacheKey, *Prepared](size, func(cacheKey, *Prepared) {
		e.metrics.cachedPlans.Dec()
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating plan cache")
	}
	c.lru = l
	return c, nil
}

// Prepare returns the cached plan for blob
// or decodes and caches it.
func (c *Cache) Prepare(blob []byte, version int16) (*Prepared, error) {
	k := keyOf(blob, version)
	if p, ok := c.lru.Get(k); ok {
		c.eng.metrics.cacheLookups.WithLabelValues("hit").Inc()
		return p, nil
	}
	c.eng.metrics.cacheLookups.WithLabelValues("miss").Inc()
	p, err := c.eng.prepare(blob, version)
	if err != nil {
		return nil, err
	}
	// concurrent misses may decode the same
	// plan; the first one stored wins
	if prev, ok, _ := c.lru.PeekOrAdd(k, p); ok {
		return prev, nil
	}
	c.eng.metrics.cachedPlans.Inc()
	return p, nil
}

// Len returns the number of cached plans.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached plan.
func (c *Cache) Purge() { c.lru.Purge() }
