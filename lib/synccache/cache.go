// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package synccache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("synccache: cache closed")

// Options configures a Cache.
type Options struct {
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Cache deduplicates store subscriptions by ref. It is safe for
// concurrent use.
type Cache[T any] struct {
	store  docstore.Store
	decode Decoder[T]
	logger *slog.Logger

	// mu guards entries, every entry's refs and handle, and closed.
	// Store subscriptions are opened and closed while holding it, so
	// for any ref at most one store subscription exists at a time.
	mu      sync.Mutex
	entries map[string]*entry[T]
	closed  bool
}

// New returns a cache over store decoding snapshots with decode.
func New[T any](store docstore.Store, decode Decoder[T], options Options) *Cache[T] {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache[T]{
		store:   store,
		decode:  decode,
		logger:  logger,
		entries: make(map[string]*entry[T]),
	}
}

// Subscribe registers onChange for ref. If the entry already has a
// state, onChange receives it shortly after Subscribe returns.
func (c *Cache[T]) Subscribe(ref docref.Ref, onChange func(State[T])) (*Subscription[T], error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if onChange == nil {
		var problems docref.ValidationError
		problems.Add("onChange", "must not be nil")
		return nil, problems.Err()
	}
	key := ref.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	e := c.entries[key]
	if e == nil {
		e = newEntry(c, key, ref)
		handle, err := c.store.Subscribe(ref, e.receive)
		if err != nil {
			e.stop()
			return nil, fmt.Errorf("synccache: subscribing to %s: %w", ref, err)
		}
		e.handle = handle
		c.entries[key] = e
		go e.run()
		c.logger.Debug("store subscription opened", "ref", ref.String())
	}
	e.refs++
	l := e.addListener(onChange)
	return &Subscription[T]{cache: c, entry: e, listener: l}, nil
}

func (c *Cache[T]) release(e *entry[T], l *listener[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	e.removeListener(l)
	e.refs--
	if e.refs > 0 {
		return
	}
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	if e.handle != nil {
		e.handle.Close()
	}
	e.stop()
	c.logger.Debug("store subscription closed", "ref", e.ref.String())
}

// Close closes every store subscription. Existing Subscriptions stop
// receiving updates and their Unsubscribe becomes a no-op.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for key, e := range c.entries {
		if e.handle != nil {
			e.handle.Close()
		}
		e.stop()
		delete(c.entries, key)
	}
}

// Stats describes the cache's current contents.
type Stats struct {
	Entries   int
	Listeners int
}

// Stats reports how many store subscriptions are open and how many
// listeners share them.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		stats.Listeners += e.refs
	}
	return stats
}

// Subscription is one listener's registration.
type Subscription[T any] struct {
	cache    *Cache[T]
	entry    *entry[T]
	listener *listener[T]
	once     sync.Once
}

// Unsubscribe stops delivery to this listener. Calling it again does
// nothing. It may be called from inside the listener.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.listener.removed.Store(true)
		s.cache.release(s.entry, s.listener)
	})
}

// State returns the entry's current state.
func (s *Subscription[T]) State() State[T] {
	return s.entry.current()
}
