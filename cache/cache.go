// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache memoizes verified validation results and makes sure that
// concurrent requests for equivalent addresses share a single upstream fetch.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jcodagnone/addrcheck/address"
)

const (
	// DefaultMaxSize is the entry capacity used when Options.MaxSize is zero.
	DefaultMaxSize = 1000

	// DefaultTTL is the entry lifetime used when Options.TTL is zero.
	DefaultTTL = time.Hour
)

// Options configures a Cache.
type Options struct {
	// MaxSize is the number of entries kept before evicting the least
	// recently used one.
	MaxSize int

	// TTL is how long an entry lives after insertion, regardless of access.
	TTL time.Duration

	Logger *slog.Logger
}

// Fetcher computes the result for a cache miss.
type Fetcher func(ctx context.Context) (address.ValidationResult, error)

// Stats is a snapshot of the cache counters.
type Stats struct {
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Coalesced uint64 `json:"coalesced"`
}

// call is an in-flight fetch shared by every caller asking for its key.
type call struct {
	done chan struct{}
	res  address.ValidationResult
	err  error
}

// Cache maps normalized addresses to verified results. Unverifiable results
// are never stored since they are worth retrying.
type Cache struct {
	// mu makes the entry lookup and the pending registration one step.
	mu      sync.Mutex
	entries *expirable.LRU[string, address.ValidationResult]
	pending map[string]*call
	logger  *slog.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Cache{
		entries: expirable.NewLRU[string, address.ValidationResult](opts.MaxSize, nil, opts.TTL),
		pending: make(map[string]*call),
		logger:  opts.Logger,
	}
}

// Get returns the live entry for addr, if any.
func (c *Cache) Get(addr string) (address.ValidationResult, bool) {
	key := address.NormalizeKey(addr)

	res, ok := c.entries.Get(key)
	if ok {
		c.logger.Debug("cache hit", "address", addr, "key", key)
	}

	return res, ok
}

// Set stores res for addr unless it is unverifiable.
func (c *Cache) Set(addr string, res address.ValidationResult) {
	if res.Status == address.StatusUnverifiable {
		return
	}

	c.entries.Add(address.NormalizeKey(addr), res)
}

// GetOrFetch returns the cached result for addr. On a miss it runs fetch,
// unless a fetch for the same normalized key is already in flight, in which
// case it waits for that one instead.
//
// Fetch errors are returned as is to every waiter; the key can be fetched
// again right away. The fetch runs detached from ctx cancellation so that a
// caller giving up does not fail the others sharing it.
func (c *Cache) GetOrFetch(ctx context.Context, addr string, fetch Fetcher) (address.ValidationResult, error) {
	key := address.NormalizeKey(addr)

	c.mu.Lock()

	if res, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		c.hits.Add(1)
		c.logger.DebugContext(ctx, "cache hit", "address", addr, "key", key)

		return res, nil
	}

	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		c.coalesced.Add(1)
		c.logger.DebugContext(ctx, "request coalescing, waiting for pending fetch", "address", addr, "key", key)

		return wait(ctx, p)
	}

	p := &call{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()
	c.misses.Add(1)

	go c.run(context.WithoutCancel(ctx), key, p, fetch)

	return wait(ctx, p)
}

// run executes fetch and settles p. The entry is stored and the pending
// record dropped before any waiter is released. Nothing is stored when the
// cache was cleared while fetch ran.
func (c *Cache) run(ctx context.Context, key string, p *call, fetch Fetcher) {
	defer func() {
		if r := recover(); r != nil {
			p.err = fmt.Errorf("fetching %q: panic: %v", key, r)
		}

		c.mu.Lock()

		// a Clear since the fetch started makes p stale
		if c.pending[key] == p {
			if p.err == nil && p.res.Status != address.StatusUnverifiable {
				c.entries.Add(key, p.res)
			}

			delete(c.pending, key)
		}

		c.mu.Unlock()
		close(p.done)
	}()

	p.res, p.err = fetch(ctx)
}

func wait(ctx context.Context, p *call) (address.ValidationResult, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return address.ValidationResult{}, ctx.Err()
	}
}

// Clear drops every entry and forgets in-flight fetches. Fetches already
// running still complete for their current waiters, but their results are
// not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
	c.pending = make(map[string]*call)
}

// Size is the number of stored entries. Expired entries count until the
// background sweep removes them.
func (c *Cache) Size() int {
	return c.entries.Len()
}

// Pending is the number of fetches in flight.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:      c.Size(),
		Pending:   c.Pending(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
	}
}
