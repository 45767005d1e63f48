// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite connection pooling
// with the pragmas the document store relies on.
//
// Every connection runs in WAL mode with synchronous=NORMAL and a busy
// timeout, so readers never block the single writer and writers queue
// for the lock instead of failing at once. Immediate wraps the
// BEGIN IMMEDIATE / commit / rollback sequence and retries when the
// lock still cannot be taken:
//
//	err := pool.Immediate(ctx, 5, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "UPDATE ...", nil)
//	})
//
// The package does not hide SQL. Callers use sqlitex.Execute directly.
package sqlitepool
