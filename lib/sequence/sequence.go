// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sequence issues unique, increasing numbers from counter
// documents.
//
// Each counter is a document in Config.Collection, named by the
// counter, holding its last issued value in Config.Field. Allocate
// reads and advances the counter inside one store transaction, so
// concurrent allocators, in this process or others sharing the store,
// never receive the same value. The store is responsible for retrying
// a transaction that lost a race.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// Config configures an Allocator. Store and Logger are required.
type Config struct {
	Store  docstore.Store
	Logger *slog.Logger

	// Collection holds the counter documents. Defaults to "counters".
	Collection string

	// Field is the integer field of the last issued value. Defaults
	// to "current_number".
	Field string

	// Prefix and Width shape formatted ids. Defaults to "SR-" and 5.
	Prefix string
	Width  int
}

// Result is one allocated value.
type Result struct {
	FormattedID string `json:"formatted_id"`
	RawValue    int64  `json:"raw_value"`
}

// ErrCorruptCounter means a counter document holds a value that is not
// a non-negative integer.
var ErrCorruptCounter = errors.New("sequence: corrupt counter")

// Allocator is safe for concurrent use.
type Allocator struct {
	store      docstore.Store
	logger     *slog.Logger
	collection string
	field      string
	prefix     string
	width      int
}

// New returns an Allocator.
func New(cfg Config) (*Allocator, error) {
	if cfg.Store == nil {
		return nil, errors.New("sequence: Store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("sequence: Logger is required")
	}
	a := &Allocator{
		store:      cfg.Store,
		logger:     cfg.Logger,
		collection: cfg.Collection,
		field:      cfg.Field,
		prefix:     cfg.Prefix,
		width:      cfg.Width,
	}
	if a.collection == "" {
		a.collection = "counters"
	}
	if a.field == "" {
		a.field = "current_number"
	}
	if a.prefix == "" {
		a.prefix = "SR-"
	}
	if a.width <= 0 {
		a.width = 5
	}
	if err := docref.Collection(a.collection).Validate(); err != nil {
		return nil, fmt.Errorf("sequence: %w", err)
	}
	return a, nil
}

// Format renders raw with the allocator's prefix, zero-padded to the
// configured width. Wider values are not truncated.
func (a *Allocator) Format(raw int64) string {
	return Format(a.prefix, a.width, raw)
}

// Format renders raw as prefix followed by raw zero-padded to width.
func Format(prefix string, width int, raw int64) string {
	return fmt.Sprintf("%s%0*d", prefix, width, raw)
}

func (a *Allocator) counterRef(name string) (docref.Ref, error) {
	ref := docref.Doc(a.collection, name)
	if name == "" {
		var problems docref.ValidationError
		problems.Add("counter", "must not be empty")
		return ref, problems.Err()
	}
	if err := ref.Validate(); err != nil {
		return ref, err
	}
	return ref, nil
}

// Allocate advances the counter name by one and returns the new value.
// An absent counter starts at zero, so its first allocation is 1.
func (a *Allocator) Allocate(ctx context.Context, name string) (Result, error) {
	ref, err := a.counterRef(name)
	if err != nil {
		return Result{}, err
	}

	var next int64
	err = a.store.RunTransaction(ctx, func(tx docstore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := a.valueOf(snapshot)
		if err != nil {
			return err
		}
		if current == math.MaxInt64 {
			return fmt.Errorf("%w: %s is exhausted", ErrCorruptCounter, ref)
		}
		next = current + 1
		return tx.Set(ref, docstore.Fields{a.field: next}, docstore.WriteOptions{Merge: true})
	})
	if err != nil {
		return Result{}, fmt.Errorf("sequence: allocating from %s: %w", ref, err)
	}

	result := Result{FormattedID: a.Format(next), RawValue: next}
	a.logger.Debug("sequence allocated", "counter", name, "value", next, "id", result.FormattedID)
	return result, nil
}

// Current returns the last value issued by counter name, zero if none
// has been.
func (a *Allocator) Current(ctx context.Context, name string) (int64, error) {
	ref, err := a.counterRef(name)
	if err != nil {
		return 0, err
	}
	snapshot, err := a.store.ReadDocument(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequence: reading %s: %w", ref, err)
	}
	return a.valueOf(snapshot)
}

func (a *Allocator) valueOf(snapshot docstore.Snapshot) (int64, error) {
	document, exists := snapshot.Document()
	if !exists {
		return 0, nil
	}
	value, present, err := document.Fields.Int64(a.field)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorruptCounter, err)
	}
	if !present {
		return 0, nil
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: %s/%s holds %d", ErrCorruptCounter, snapshot.Ref.Collection, snapshot.Ref.ID, value)
	}
	return value, nil
}
