// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jhsmart/docsync/lib/docref"
)

// Store is the remote document store.
type Store interface {
	// ReadDocument returns the current snapshot of a document ref.
	// An absent document yields ErrNotFound.
	ReadDocument(ctx context.Context, ref docref.Ref) (Snapshot, error)

	// Subscribe registers listener for every change to ref, starting
	// with the current state. See the package documentation for the
	// callback contract.
	Subscribe(ref docref.Ref, listener Listener) (Handle, error)

	// RunTransaction runs fn atomically. fn may run more than once
	// and must confine its effects to the Transaction.
	RunTransaction(ctx context.Context, fn func(Transaction) error) error

	// Write creates or replaces a document, or merges into it.
	Write(ctx context.Context, ref docref.Ref, fields Fields, options WriteOptions) error

	// Delete removes a document. Deleting an absent document succeeds.
	Delete(ctx context.Context, ref docref.Ref) error
}

// Transaction is the view of the store inside RunTransaction. Reads
// observe earlier writes of the same transaction.
type Transaction interface {
	Get(ref docref.Ref) (Snapshot, error)
	Set(ref docref.Ref, fields Fields, options WriteOptions) error
	Delete(ref docref.Ref) error
}

// Committer applies a batch of mutations atomically, provided every
// precondition still holds. A stale precondition fails the whole batch
// with ErrPreconditionFailed.
type Committer interface {
	Commit(ctx context.Context, preconditions []Precondition, mutations []Mutation) error
}

// Handle cancels a subscription.
type Handle interface {
	Close()
}

// Listener receives subscription updates. Exactly one of snapshot and
// err is meaningful.
type Listener func(snapshot Snapshot, err error)

// WriteOptions modifies Write and Transaction.Set.
type WriteOptions struct {
	// Merge folds fields into the existing document instead of
	// replacing it. Nested maps merge recursively.
	Merge bool `json:"merge,omitempty"`
}

// Document is one stored document.
type Document struct {
	ID        string    `json:"id"`
	Fields    Fields    `json:"fields"`
	Digest    Digest    `json:"digest"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the state of a ref at one point in time. For a document
// ref, Exists reports presence and Documents holds at most one entry.
// Query snapshots always exist and hold the matching documents in
// query order.
type Snapshot struct {
	Ref       docref.Ref `json:"ref"`
	Exists    bool       `json:"exists"`
	Documents []Document `json:"documents,omitempty"`
}

// Document returns the single document of a document snapshot.
func (s Snapshot) Document() (Document, bool) {
	if !s.Exists || len(s.Documents) == 0 {
		return Document{}, false
	}
	return s.Documents[0], true
}

// Mutation is one write in a Commit batch.
type Mutation struct {
	Ref    docref.Ref `json:"ref"`
	Fields Fields     `json:"fields,omitempty"`
	Merge  bool       `json:"merge,omitempty"`
	Delete bool       `json:"delete,omitempty"`
}

// Precondition asserts the state of a document at commit time. Exists
// false asserts absence. Otherwise Digest must match the stored
// document.
type Precondition struct {
	Ref    docref.Ref `json:"ref"`
	Exists bool       `json:"exists"`
	Digest Digest     `json:"digest,omitempty"`
}

// Digest is the BLAKE3 hash of a document's encoded fields.
type Digest [32]byte

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// MarshalText encodes d as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes hex produced by MarshalText.
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Digest{}
		return nil
	}
	if hex.DecodedLen(len(text)) != len(d) {
		return fmt.Errorf("docstore: digest has %d hex characters, want %d", len(text), 2*len(d))
	}
	_, err := hex.Decode(d[:], text)
	return err
}

// Get returns the first snapshot a subscription to ref delivers. It
// serves one-shot query reads on top of Subscribe.
func Get(ctx context.Context, store Store, ref docref.Ref) (Snapshot, error) {
	type result struct {
		snapshot Snapshot
		err      error
	}
	results := make(chan result, 1)
	handle, err := store.Subscribe(ref, func(snapshot Snapshot, err error) {
		select {
		case results <- result{snapshot, err}:
		default:
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	defer handle.Close()

	select {
	case r := <-results:
		return r.snapshot, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
