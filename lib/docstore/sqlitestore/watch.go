// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// watcher is one subscription. Its goroutine re-evaluates the ref each
// time it is signalled and calls the listener when the result differs
// from the last delivered one.
type watcher struct {
	store    *Store
	ref      docref.Ref
	listener docstore.Listener

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	delivered bool
	signature string
}

// Subscribe starts watching ref. The first snapshot is delivered from
// the watcher goroutine after Subscribe returns.
func (s *Store) Subscribe(ref docref.Ref, listener docstore.Listener) (docstore.Handle, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		var problems docref.ValidationError
		problems.Add("listener", "must not be nil")
		return nil, problems.Err()
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	w := &watcher{
		store:    s,
		ref:      ref,
		listener: listener,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	set := s.watchers[ref.Collection]
	if set == nil {
		set = make(map[*watcher]struct{})
		s.watchers[ref.Collection] = set
	}
	set[w] = struct{}{}
	s.mu.Unlock()

	w.signal()
	go w.run()
	return w, nil
}

// notify wakes every watcher of the given collections.
func (s *Store) notify(collections map[string]struct{}) {
	if len(collections) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for collection := range collections {
		for w := range s.watchers[collection] {
			w.signal()
		}
	}
}

func (s *Store) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.watchers[w.ref.Collection]
	delete(set, w)
	if len(set) == 0 {
		delete(s.watchers, w.ref.Collection)
	}
}

func (w *watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close stops the watcher without waiting for a running callback.
func (w *watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.store.removeWatcher(w)
	})
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		snapshot, err := w.store.evaluate(w.ref)
		if w.stopped() {
			return
		}
		if err != nil {
			if errors.Is(err, docstore.ErrPermissionDenied) {
				w.listener(docstore.Snapshot{}, err)
				w.Close()
				return
			}
			if errors.Is(err, docstore.ErrClosed) {
				return
			}
			w.store.logger.Warn("subscription evaluation failed",
				"ref", w.ref.String(),
				"error", err,
			)
			continue
		}

		signature := snapshotSignature(snapshot)
		if w.delivered && signature == w.signature {
			continue
		}
		w.delivered = true
		w.signature = signature
		w.listener(snapshot, nil)
	}
}

func (s *Store) evaluate(ref docref.Ref) (docstore.Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := s.checkRead(ref.Collection); err != nil {
		return docstore.Snapshot{}, err
	}
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		if s.closed.Load() {
			return docstore.Snapshot{}, docstore.ErrClosed
		}
		return docstore.Snapshot{}, err
	}
	defer s.pool.Put(conn)

	if ref.IsDocument() {
		document, found, err := s.loadDocument(conn, ref.Collection, ref.ID)
		if err != nil {
			return docstore.Snapshot{}, err
		}
		if !found {
			return docstore.Snapshot{Ref: ref}, nil
		}
		return docstore.Snapshot{Ref: ref, Exists: true, Documents: []docstore.Document{document}}, nil
	}

	documents, err := s.loadCollection(conn, ref.Collection)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Documents: docstore.Evaluate(ref, documents)}, nil
}

// snapshotSignature identifies the observable content of a snapshot:
// presence plus the ordered ids and digests of its documents.
func snapshotSignature(snapshot docstore.Snapshot) string {
	var builder strings.Builder
	if snapshot.Exists {
		builder.WriteByte('+')
	} else {
		builder.WriteByte('-')
	}
	for _, document := range snapshot.Documents {
		builder.WriteString(document.ID)
		builder.WriteByte(':')
		builder.WriteString(document.Digest.String())
		builder.WriteByte(';')
	}
	return builder.String()
}
