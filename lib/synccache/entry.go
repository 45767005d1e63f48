// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package synccache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// entry is the shared state of one ref.
type entry[T any] struct {
	cache *Cache[T]
	key   string
	ref   docref.Ref

	// Guarded by cache.mu.
	refs   int
	handle docstore.Handle

	mu        sync.Mutex
	state     State[T]
	listeners []*listener[T]
	pending   []delivery[T]
	stopped   bool

	wake chan struct{}
	done chan struct{}
}

type listener[T any] struct {
	onChange func(State[T])
	removed  atomic.Bool
}

// delivery is one state destined for a fixed set of listeners. The set
// is captured when the delivery is queued, so a listener added later
// only ever sees the state through its own replay.
type delivery[T any] struct {
	state   State[T]
	targets []*listener[T]
}

func newEntry[T any](c *Cache[T], key string, ref docref.Ref) *entry[T] {
	return &entry[T]{
		cache: c,
		key:   key,
		ref:   ref,
		state: State[T]{Status: StatusLoading},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (e *entry[T]) current() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *entry[T]) addListener(onChange func(State[T])) *listener[T] {
	l := &listener[T]{onChange: onChange}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	replay := e.state.Status != StatusLoading
	if replay {
		e.pending = append(e.pending, delivery[T]{state: e.state, targets: []*listener[T]{l}})
	}
	e.mu.Unlock()
	if replay {
		e.signal()
	}
	return l
}

func (e *entry[T]) removeListener(l *listener[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = slices.DeleteFunc(e.listeners, func(other *listener[T]) bool { return other == l })
}

// receive is the store listener for this entry.
func (e *entry[T]) receive(snapshot docstore.Snapshot, err error) {
	var next State[T]
	if err == nil {
		data, decodeErr := e.cache.decode(snapshot)
		if decodeErr != nil {
			err = fmt.Errorf("synccache: decoding %s: %w", e.ref, decodeErr)
		} else {
			next = State[T]{Status: StatusReady, Value: &Snapshot[T]{Data: data, Exists: snapshot.Exists}}
		}
	}
	if err != nil {
		if errors.Is(err, docstore.ErrConnectivity) {
			e.cache.logger.Debug("store connectivity interrupted", "ref", e.ref.String(), "error", err)
			return
		}
		next = State[T]{Status: StatusError, Err: err}
	}

	e.mu.Lock()
	if e.stopped || e.state.Status == StatusError {
		e.mu.Unlock()
		return
	}
	e.state = next
	e.pending = append(e.pending, delivery[T]{state: next, targets: slices.Clone(e.listeners)})
	e.mu.Unlock()

	if next.Status == StatusError {
		e.cache.logger.Warn("subscription failed", "ref", e.ref.String(), "error", next.Err)
	}
	e.signal()
}

func (e *entry[T]) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// stop ends delivery. Pending states are discarded.
func (e *entry[T]) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.pending = nil
	close(e.done)
}

func (e *entry[T]) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		for {
			e.mu.Lock()
			if e.stopped || len(e.pending) == 0 {
				e.mu.Unlock()
				break
			}
			batch := e.pending
			e.pending = nil
			e.mu.Unlock()

			for _, d := range batch {
				for _, l := range d.targets {
					if !l.removed.Load() {
						l.onChange(d.state)
					}
				}
			}
		}
	}
}
