// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// RunTransaction implements docstore.Store with optimistic
// concurrency. fn runs against a view that reads through the socket
// and buffers writes; the writes are then committed on the condition
// that nothing fn read has changed. When that condition fails fn runs
// again, up to the configured attempt limit.
func (c *Client) RunTransaction(ctx context.Context, fn func(docstore.Transaction) error) error {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		tx := &transaction{ctx: ctx, client: c, views: make(map[string]*view)}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}
		if len(tx.mutations) == 0 {
			return nil
		}
		err := c.Commit(ctx, tx.preconditions, tx.mutations)
		if !errors.Is(err, docstore.ErrPreconditionFailed) {
			return err
		}
		c.logger.Debug("transaction lost a race, running again", "attempt", attempt)
	}
	return fmt.Errorf("storesocket: giving up after %d attempts: %w", c.maxAttempts, docstore.ErrTransactionConflict)
}

// view is the transaction's idea of one document: what was read,
// updated by the writes buffered since.
type view struct {
	exists bool
	fields docstore.Fields
}

type transaction struct {
	ctx    context.Context
	client *Client

	views         map[string]*view
	preconditions []docstore.Precondition
	mutations     []docstore.Mutation

	// err is the first write failure. fn may ignore the error a Set
	// returned; the transaction still fails.
	err error
}

func (tx *transaction) Get(ref docref.Ref) (docstore.Snapshot, error) {
	v, err := tx.load(ref)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if !v.exists {
		return docstore.Snapshot{Ref: ref}, nil
	}
	return docstore.Snapshot{
		Ref:       ref,
		Exists:    true,
		Documents: []docstore.Document{{ID: ref.ID, Fields: v.fields.Clone()}},
	}, nil
}

// load returns the view of ref, reading it from the server the first
// time and recording what was seen as a precondition.
func (tx *transaction) load(ref docref.Ref) (*view, error) {
	if err := documentRef(ref); err != nil {
		return nil, err
	}
	key := ref.Key()
	if v, seen := tx.views[key]; seen {
		return v, nil
	}

	snapshot, err := tx.client.ReadDocument(tx.ctx, ref)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		tx.preconditions = append(tx.preconditions, docstore.Precondition{Ref: ref, Exists: false})
		v := &view{}
		tx.views[key] = v
		return v, nil
	case err != nil:
		return nil, err
	}

	document, exists := snapshot.Document()
	if !exists {
		tx.preconditions = append(tx.preconditions, docstore.Precondition{Ref: ref, Exists: false})
		v := &view{}
		tx.views[key] = v
		return v, nil
	}
	tx.preconditions = append(tx.preconditions, docstore.Precondition{Ref: ref, Exists: true, Digest: document.Digest})
	v := &view{exists: true, fields: document.Fields}
	tx.views[key] = v
	return v, nil
}

func (tx *transaction) Set(ref docref.Ref, fields docstore.Fields, options docstore.WriteOptions) error {
	if err := tx.write(ref, fields, options.Merge, false); err != nil {
		tx.fail(err)
		return err
	}
	return nil
}

func (tx *transaction) Delete(ref docref.Ref) error {
	if err := tx.write(ref, nil, false, true); err != nil {
		tx.fail(err)
		return err
	}
	return nil
}

func (tx *transaction) write(ref docref.Ref, fields docstore.Fields, merge, remove bool) error {
	if err := documentRef(ref); err != nil {
		return err
	}
	key := ref.Key()
	v, seen := tx.views[key]
	switch {
	case seen:
	case merge:
		// A merge into an unread document needs its current fields
		// for later reads in this transaction.
		loaded, err := tx.load(ref)
		if err != nil {
			return err
		}
		v = loaded
	default:
		v = &view{}
		tx.views[key] = v
	}

	switch {
	case remove:
		v.exists, v.fields = false, nil
	case merge && v.exists:
		v.fields = docstore.Merge(v.fields, fields)
	default:
		v.exists, v.fields = true, fields.Clone()
	}
	tx.mutations = append(tx.mutations, docstore.Mutation{Ref: ref, Fields: fields.Clone(), Merge: merge, Delete: remove})
	return nil
}

func (tx *transaction) fail(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

func documentRef(ref docref.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if !ref.IsDocument() {
		var problems docref.ValidationError
		problems.Add("ref", "transactions operate on document refs")
		return problems.Err()
	}
	return nil
}
