// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cache provides an in-memory cache that coalesces concurrent fills.
package cache

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNotExist is returned when a key does not exist in the cache.
var ErrNotExist = errors.New("does not exist")

// Coalescing caches values by key. Concurrent GetOrSet calls for the same
// key share a single fetch. Failed fetches are not cached.
type Coalescing[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]*entry[V]
}

type entry[V any] struct {
	get func() (V, error)
}

func (c *Coalescing[K, V]) valueOrClear(key K, e *entry[V]) (V, error) {
	val, err := e.get()
	if err != nil {
		c.mu.Lock()
		if c.data[key] == e {
			delete(c.data, key)
		}
		c.mu.Unlock()
	}
	return val, err
}

// Get returns the value for the given key.
func (c *Coalescing[K, V]) Get(key K) (V, error) {
	c.mu.Lock()
	e, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		var zero V
		return zero, ErrNotExist
	}
	return c.valueOrClear(key, e)
}

// Set replaces the value for the given key with the result of fetch.
func (c *Coalescing[K, V]) Set(key K, fetch func() (V, error)) error {
	e := &entry[V]{sync.OnceValues(fetch)}
	c.mu.Lock()
	if c.data == nil {
		c.data = make(map[K]*entry[V])
	}
	c.data[key] = e
	c.mu.Unlock()
	_, err := c.valueOrClear(key, e)
	return err
}

// GetOrSet returns the value for the given key, or fills it using fetch.
func (c *Coalescing[K, V]) GetOrSet(key K, fetch func() (V, error)) (V, error) {
	c.mu.Lock()
	if c.data == nil {
		c.data = make(map[K]*entry[V])
	}
	e, ok := c.data[key]
	if !ok {
		e = &entry[V]{sync.OnceValues(fetch)}
		c.data[key] = e
	}
	c.mu.Unlock()
	return c.valueOrClear(key, e)
}

// Del deletes the value for the given key.
func (c *Coalescing[K, V]) Del(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Coalescing[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}
