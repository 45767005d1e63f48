// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore implements docstore.Store on a local SQLite
// database.
//
// Documents live in one table keyed by (collection, id). Bodies are
// deterministic CBOR, optionally compressed with LZ4 or zstd above a
// size threshold, and carry a BLAKE3 digest of the uncompressed body.
// A write whose digest matches the stored one changes nothing and
// wakes no subscriber.
//
// Every write path runs in a BEGIN IMMEDIATE transaction, so
// transactions are serializable: concurrent RunTransaction calls
// queue on the SQLite write lock and are retried on SQLITE_BUSY, up to
// MaxTransactionAttempts, before failing with
// docstore.ErrTransactionConflict.
//
// Subscriptions are re-evaluated after each commit that touches their
// collection. Each subscription has its own goroutine, which delivers
// the initial snapshot and then one snapshot per observable change.
//
// Collections listed as denied reject reads and subscriptions with
// docstore.ErrPermissionDenied while still accepting writes, the
// shape of a public submission form whose entries only staff may
// read. Deny applies the same rule at runtime and terminates open
// subscriptions on the collection.
package sqlitestore
