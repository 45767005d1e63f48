// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package mutation applies document writes in the background.
//
// Enqueue calls return as soon as the write is recorded. Writes to the
// same document reach the store in the order they were enqueued;
// writes to different documents proceed independently, each document
// getting a worker goroutine only while it has writes outstanding.
//
// A write failing with docstore.ErrConnectivity is retried after
// RetryDelay, growing linearly, up to MaxAttempts. Any other failure,
// or running out of attempts, drops the write and reports a
// [Failure]: it is logged, passed to OnError, and offered on the
// Errors channel. A failed write does not hold back later writes to
// the same document.
//
//	queue, err := mutation.New(mutation.Config{Store: store, Clock: clock.Real(), Logger: logger})
//	queue.EnqueueWrite(docref.Doc("contacts", id), docstore.Fields{"status": "Resolved"}, mutation.WithMerge())
//	defer queue.Close(ctx)
package mutation
