// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides a small in-memory TTL cache with request
// coalescing, used to keep dashboard queries off the storage layer.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a TTL cache. Concurrent Get calls for the same missing key
// are coalesced into a single fill via singleflight, so a dashboard
// refresh storm computes each series once.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

type entry[T any] struct {
	value     T
	createdAt time.Time
}

// New creates a cache whose entries expire ttl after creation.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. For tests.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the fresh cached value for key, or runs fill to produce
// and cache one. Expired entries are dropped on access; fill errors are
// returned uncached.
func (c *Cache[T]) Get(key string, fill func() (T, error)) (T, error) {
	if value, ok := c.lookup(key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent filler may have completed while this call waited
		// on the flight group.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := fill()
		if err != nil {
			return value, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Set stores value under key, resetting its TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, createdAt: c.now()}
}

// Invalidate drops key if present.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// lookup returns a live entry and prunes the dead ones it trips over.
func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}
