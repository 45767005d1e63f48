// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// ErrClosed is returned by enqueue operations after Close.
var ErrClosed = errors.New("mutation: queue closed")

// Config configures a Queue. Store, Clock and Logger are required.
type Config struct {
	Store  docstore.Store
	Clock  clock.Clock
	Logger *slog.Logger

	// IDs issues ids for EnqueueCreate. Defaults to a generator on
	// Clock.
	IDs *docref.IDGenerator

	// OnError is called from the worker goroutine for every dropped
	// write. It must not block for long.
	OnError func(Failure)

	// MaxAttempts defaults to 3.
	MaxAttempts int

	// RetryDelay defaults to 500ms. Attempt n waits n*RetryDelay.
	RetryDelay time.Duration

	// WriteTimeout bounds each store call. Defaults to 30s.
	WriteTimeout time.Duration

	// ErrorBuffer is the capacity of the Errors channel. Defaults to 64.
	ErrorBuffer int
}

// Pending is a write waiting to be applied.
type Pending struct {
	Target     docref.Ref
	Payload    docstore.Fields
	Merge      bool
	Delete     bool
	EnqueuedAt time.Time

	// Attempts counts store calls made so far.
	Attempts int
}

func (p Pending) kind() string {
	switch {
	case p.Delete:
		return "delete"
	case p.Merge:
		return "merge"
	}
	return "set"
}

// Failure describes a write that was dropped.
type Failure struct {
	Mutation Pending
	Attempts int
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("mutation: %s %s failed after %d attempt(s): %v", f.Mutation.kind(), f.Mutation.Target, f.Attempts, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Option modifies an EnqueueWrite.
type Option func(*Pending)

// WithMerge folds the payload into the existing document instead of
// replacing it.
func WithMerge() Option {
	return func(p *Pending) { p.Merge = true }
}

// Queue is safe for concurrent use.
type Queue struct {
	store        docstore.Store
	clock        clock.Clock
	logger       *slog.Logger
	ids          *docref.IDGenerator
	onError      func(Failure)
	maxAttempts  int
	retryDelay   time.Duration
	writeTimeout time.Duration
	errors       chan Failure

	// ctx is cancelled when Close gives up waiting, aborting retries.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	streams map[string]*stream
	pending int
	drained chan struct{}
	closed  bool
}

// stream holds the outstanding writes of one document. A stream is in
// the map exactly while its worker goroutine runs.
type stream struct {
	key   string
	items []Pending
}

// New returns a running queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Store == nil {
		return nil, errors.New("mutation: Store is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("mutation: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("mutation: Logger is required")
	}
	q := &Queue{
		store:        cfg.Store,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		ids:          cfg.IDs,
		onError:      cfg.OnError,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		writeTimeout: cfg.WriteTimeout,
		streams:      make(map[string]*stream),
		drained:      make(chan struct{}),
	}
	if q.ids == nil {
		q.ids = docref.NewIDGenerator(cfg.Clock)
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = 3
	}
	if q.retryDelay <= 0 {
		q.retryDelay = 500 * time.Millisecond
	}
	if q.writeTimeout <= 0 {
		q.writeTimeout = 30 * time.Second
	}
	buffer := cfg.ErrorBuffer
	if buffer <= 0 {
		buffer = 64
	}
	q.errors = make(chan Failure, buffer)
	close(q.drained)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q, nil
}

// EnqueueWrite schedules a set (or, with Merge, a merge) of payload
// into the document target.
func (q *Queue) EnqueueWrite(target docref.Ref, payload docstore.Fields, options ...Option) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	if payload == nil {
		var problems docref.ValidationError
		problems.Add("payload", "must not be nil")
		return problems.Err()
	}
	p := Pending{Target: target, Payload: payload.Clone()}
	for _, option := range options {
		option(&p)
	}
	return q.enqueue(p)
}

// EnqueueDelete schedules removal of the document target.
func (q *Queue) EnqueueDelete(target docref.Ref) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	return q.enqueue(Pending{Target: target, Delete: true})
}

// EnqueueCreate schedules a new document in collection under a fresh
// id, which is also written into the payload's "id" field. It returns
// the new document's ref.
func (q *Queue) EnqueueCreate(collection string, payload docstore.Fields) (docref.Ref, error) {
	id, err := q.ids.New()
	if err != nil {
		return docref.Ref{}, err
	}
	target := docref.Doc(collection, id)
	if err := target.Validate(); err != nil {
		return docref.Ref{}, err
	}
	fields := payload.Clone()
	if fields == nil {
		fields = docstore.Fields{}
	}
	fields["id"] = id
	if err := q.enqueue(Pending{Target: target, Payload: fields}); err != nil {
		return docref.Ref{}, err
	}
	return target, nil
}

func validateTarget(target docref.Ref) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if !target.IsDocument() {
		var problems docref.ValidationError
		problems.Add("target", "writes need a document ref")
		return problems.Err()
	}
	return nil
}

func (q *Queue) enqueue(p Pending) error {
	p.EnqueuedAt = q.clock.Now()
	key := p.Target.Key()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.pending == 0 {
		q.drained = make(chan struct{})
	}
	q.pending++

	if s, running := q.streams[key]; running {
		s.items = append(s.items, p)
		return nil
	}
	s := &stream{key: key, items: []Pending{p}}
	q.streams[key] = s
	go q.drain(s)
	return nil
}

// drain applies a stream's writes one at a time until it is empty.
func (q *Queue) drain(s *stream) {
	for {
		q.mu.Lock()
		if len(s.items) == 0 {
			delete(q.streams, s.key)
			q.mu.Unlock()
			return
		}
		p := s.items[0]
		s.items[0] = Pending{}
		s.items = s.items[1:]
		q.mu.Unlock()

		q.apply(p)

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			close(q.drained)
		}
		q.mu.Unlock()
	}
}

func (q *Queue) apply(p Pending) {
	for attempt := 1; ; attempt++ {
		p.Attempts = attempt
		err := q.attempt(p)
		if err == nil {
			q.logger.Debug("mutation applied",
				"kind", p.kind(),
				"target", p.Target.String(),
				"attempts", attempt,
				"latency", q.clock.Now().Sub(p.EnqueuedAt),
			)
			return
		}
		if !docstore.Retryable(err) || attempt >= q.maxAttempts {
			q.report(Failure{Mutation: p, Attempts: attempt, Err: err})
			return
		}

		delay := time.Duration(attempt) * q.retryDelay
		q.logger.Info("mutation will be retried",
			"kind", p.kind(),
			"target", p.Target.String(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-q.clock.After(delay):
		case <-q.ctx.Done():
			q.report(Failure{Mutation: p, Attempts: attempt, Err: fmt.Errorf("%w: %w", ErrClosed, err)})
			return
		}
	}
}

func (q *Queue) attempt(p Pending) error {
	ctx, cancel := context.WithTimeout(q.ctx, q.writeTimeout)
	defer cancel()
	if p.Delete {
		return q.store.Delete(ctx, p.Target)
	}
	return q.store.Write(ctx, p.Target, p.Payload, docstore.WriteOptions{Merge: p.Merge})
}

func (q *Queue) report(failure Failure) {
	q.logger.Error("mutation dropped",
		"kind", failure.Mutation.kind(),
		"target", failure.Mutation.Target.String(),
		"attempts", failure.Attempts,
		"error", failure.Err,
	)
	if q.onError != nil {
		q.onError(failure)
	}
	select {
	case q.errors <- failure:
	default:
		q.logger.Warn("mutation error channel full, failure not queued",
			"target", failure.Mutation.Target.String(),
		)
	}
}

// Errors delivers dropped writes. The channel is never closed.
func (q *Queue) Errors() <-chan Failure {
	return q.errors
}

// Pending reports how many writes are enqueued or in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Flush waits until every write enqueued so far has been applied or
// dropped.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting writes and waits for outstanding ones. If ctx
// ends first, retries in progress are abandoned and reported as
// failures.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	err := q.Flush(ctx)
	q.cancel()
	return err
}
