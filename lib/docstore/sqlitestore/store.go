// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	body        BLOB    NOT NULL,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	digest      BLOB    NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
) WITHOUT ROWID;
`

// Config configures Open. Path, Clock and Logger are required.
type Config struct {
	Path     string
	PoolSize int

	// Compression applies to bodies of at least CompressionThreshold
	// bytes.
	Compression          Compression
	CompressionThreshold int

	// MaxTransactionAttempts defaults to 25.
	MaxTransactionAttempts int

	DeniedCollections []string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is a docstore.Store and docstore.Committer backed by SQLite.
type Store struct {
	pool        *sqlitepool.Pool
	clock       clock.Clock
	logger      *slog.Logger
	compression Compression
	threshold   int
	maxAttempts int
	closed      atomic.Bool

	mu       sync.Mutex
	denied   map[string]bool
	watchers map[string]map[*watcher]struct{}
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Committer = (*Store)(nil)
)

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, errors.New("sqlitestore: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("sqlitestore: Logger is required")
	}
	maxAttempts := cfg.MaxTransactionAttempts
	if maxAttempts <= 0 {
		maxAttempts = 25
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}

	store := &Store{
		pool:        pool,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		compression: cfg.Compression,
		threshold:   cfg.CompressionThreshold,
		maxAttempts: maxAttempts,
		denied:      make(map[string]bool),
		watchers:    make(map[string]map[*watcher]struct{}),
	}
	for _, collection := range cfg.DeniedCollections {
		store.denied[collection] = true
	}
	return store, nil
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	var open []*watcher
	for _, set := range s.watchers {
		for w := range set {
			open = append(open, w)
		}
	}
	s.mu.Unlock()
	for _, w := range open {
		w.Close()
	}
	return s.pool.Close()
}

// Deny makes reads of collection fail with ErrPermissionDenied and
// terminates its open subscriptions with that error.
func (s *Store) Deny(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[collection] = true
	for w := range s.watchers[collection] {
		w.signal()
	}
	s.logger.Info("collection access denied", "collection", collection)
}

// Allow lifts a Deny. Subscriptions already terminated stay closed.
func (s *Store) Allow(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.denied, collection)
}

func (s *Store) checkRead(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied[collection] {
		return fmt.Errorf("reading %s: %w", collection, docstore.ErrPermissionDenied)
	}
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return docstore.ErrClosed
	}
	return nil
}

// ReadDocument returns the current state of a document.
func (s *Store) ReadDocument(ctx context.Context, ref docref.Ref) (docstore.Snapshot, error) {
	if err := validateDocumentRef(ref); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := s.checkOpen(); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := s.checkRead(ref.Collection); err != nil {
		return docstore.Snapshot{}, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	defer s.pool.Put(conn)

	document, found, err := s.loadDocument(conn, ref.Collection, ref.ID)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if !found {
		return docstore.Snapshot{}, fmt.Errorf("%s: %w", ref, docstore.ErrNotFound)
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Documents: []docstore.Document{document}}, nil
}

// Write creates, replaces or merges into a document.
func (s *Store) Write(ctx context.Context, ref docref.Ref, fields docstore.Fields, options docstore.WriteOptions) error {
	return s.Commit(ctx, nil, []docstore.Mutation{{Ref: ref, Fields: fields, Merge: options.Merge}})
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, ref docref.Ref) error {
	return s.Commit(ctx, nil, []docstore.Mutation{{Ref: ref, Delete: true}})
}

// Commit applies mutations atomically once every precondition holds.
func (s *Store) Commit(ctx context.Context, preconditions []docstore.Precondition, mutations []docstore.Mutation) error {
	for _, precondition := range preconditions {
		if err := validateDocumentRef(precondition.Ref); err != nil {
			return err
		}
	}
	for _, mutation := range mutations {
		if err := validateDocumentRef(mutation.Ref); err != nil {
			return err
		}
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.transact(ctx, func(conn *sqlite.Conn, changed map[string]struct{}) error {
		for _, precondition := range preconditions {
			digest, found, err := s.loadDigest(conn, precondition.Ref.Collection, precondition.Ref.ID)
			if err != nil {
				return err
			}
			if found != precondition.Exists || (found && digest != precondition.Digest) {
				return fmt.Errorf("%s changed since it was read: %w", precondition.Ref, docstore.ErrPreconditionFailed)
			}
		}
		for _, mutation := range mutations {
			modified, err := s.applyMutation(conn, mutation)
			if err != nil {
				return err
			}
			if modified {
				changed[mutation.Ref.Collection] = struct{}{}
			}
		}
		return nil
	})
}

// RunTransaction runs fn inside one serializable SQLite transaction.
// fn is re-run if the write lock cannot be taken.
func (s *Store) RunTransaction(ctx context.Context, fn func(docstore.Transaction) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.transact(ctx, func(conn *sqlite.Conn, changed map[string]struct{}) error {
		return fn(&transaction{store: s, conn: conn, changed: changed})
	})
}

// transact runs fn under sqlitepool.Immediate and notifies watchers of
// the collections fn reported as changed once the commit succeeds.
func (s *Store) transact(ctx context.Context, fn func(conn *sqlite.Conn, changed map[string]struct{}) error) error {
	var changed map[string]struct{}
	err := s.pool.Immediate(ctx, s.maxAttempts, func(conn *sqlite.Conn) error {
		changed = make(map[string]struct{})
		return fn(conn, changed)
	})
	if errors.Is(err, sqlitepool.ErrBusy) {
		return fmt.Errorf("%w: %v", docstore.ErrTransactionConflict, err)
	}
	if err != nil {
		return err
	}
	s.notify(changed)
	return nil
}

func (s *Store) applyMutation(conn *sqlite.Conn, mutation docstore.Mutation) (bool, error) {
	ref := mutation.Ref
	if mutation.Delete {
		return s.deleteDocument(conn, ref.Collection, ref.ID)
	}
	fields := mutation.Fields
	if mutation.Merge {
		existing, found, err := s.loadDocument(conn, ref.Collection, ref.ID)
		if err != nil {
			return false, err
		}
		if found {
			fields = docstore.Merge(existing.Fields, mutation.Fields)
		}
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	return s.putDocument(conn, ref.Collection, ref.ID, fields)
}

type transaction struct {
	store   *Store
	conn    *sqlite.Conn
	changed map[string]struct{}
}

func (t *transaction) Get(ref docref.Ref) (docstore.Snapshot, error) {
	if err := validateDocumentRef(ref); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := t.store.checkRead(ref.Collection); err != nil {
		return docstore.Snapshot{}, err
	}
	document, found, err := t.store.loadDocument(t.conn, ref.Collection, ref.ID)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if !found {
		return docstore.Snapshot{Ref: ref}, nil
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Documents: []docstore.Document{document}}, nil
}

func (t *transaction) Set(ref docref.Ref, fields docstore.Fields, options docstore.WriteOptions) error {
	return t.apply(docstore.Mutation{Ref: ref, Fields: fields, Merge: options.Merge})
}

func (t *transaction) Delete(ref docref.Ref) error {
	return t.apply(docstore.Mutation{Ref: ref, Delete: true})
}

func (t *transaction) apply(mutation docstore.Mutation) error {
	if err := validateDocumentRef(mutation.Ref); err != nil {
		return err
	}
	modified, err := t.store.applyMutation(t.conn, mutation)
	if err != nil {
		return err
	}
	if modified {
		t.changed[mutation.Ref.Collection] = struct{}{}
	}
	return nil
}

func validateDocumentRef(ref docref.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if !ref.IsDocument() {
		var problems docref.ValidationError
		problems.Add("id", "a document id is required")
		return problems.Err()
	}
	return nil
}
