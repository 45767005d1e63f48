// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package docstore defines the document store contract that the
// subscription cache, mutation queue and sequence allocator are built
// on, together with the pieces every implementation shares: the error
// taxonomy, field-map helpers and query evaluation.
//
// Two implementations exist. sqlitestore keeps documents in a local
// SQLite database and is what the docsync-store daemon serves.
// storesocket.Client talks to that daemon over a Unix socket and is
// what the docsync CLI uses.
//
// # Listener contract
//
// Store.Subscribe never invokes its listener synchronously, and
// Handle.Close neither invokes the listener nor waits for an
// in-flight invocation. Callers may therefore open and close
// subscriptions while holding their own locks. Callbacks for one
// subscription are serialized. A listener receiving an error whose
// errors.Is matches ErrPermissionDenied will receive nothing further.
package docstore
