// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package storesocket serves a document store over a Unix socket and
// provides a [Client] that implements docstore.Store against it.
//
// The protocol is CBOR, one request per connection. A request is a map
// carrying an "action" field plus action-specific fields; the server
// answers with a single [Response] and closes the connection. The
// actions are:
//
//   - read: {ref} -> Snapshot, or code not_found
//   - write: {ref, fields, merge}
//   - delete: {ref}
//   - commit: {preconditions, mutations}, or code precondition_failed
//   - subscribe: {ref}, a stream of [Frame] values
//
// A subscribe connection stays open. The server sends a snapshot frame
// with the current state and another after every change, a heartbeat
// frame every heartbeat interval while idle, and at most one error
// frame, after which it closes the stream. Snapshot frames carry the
// whole result, so a slow reader only ever sees the latest one.
//
// Remote transactions are optimistic. Client.RunTransaction reads
// through the socket, remembering the digest (or absence) of every
// document read, buffers writes, and commits them with those digests
// as preconditions. A commit that loses a race is answered with
// precondition_failed and the whole transaction function runs again.
package storesocket
