// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jhsmart/docsync/lib/sqlitepool"
)

const counterSchema = `CREATE TABLE IF NOT EXISTS counter (id INTEGER PRIMARY KEY, value INTEGER NOT NULL);`

func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  4,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func schema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, counterSchema, nil)
}

func readCounter(t *testing.T, pool *sqlitepool.Pool) int64 {
	t.Helper()
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)
	var value int64
	err = sqlitex.Execute(conn, "SELECT value FROM counter WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	return value
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open with empty path succeeded")
	}
}

func TestJournalModeIsWAL(t *testing.T) {
	pool := openTestPool(t, nil)
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestImmediateCommitsAndRollsBack(t *testing.T) {
	pool := openTestPool(t, schema)
	ctx := context.Background()

	err := pool.Immediate(ctx, 3, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO counter (id, value) VALUES (1, 10)", nil)
	})
	if err != nil {
		t.Fatalf("Immediate insert: %v", err)
	}

	failure := errors.New("abandon")
	err = pool.Immediate(ctx, 3, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "UPDATE counter SET value = 99 WHERE id = 1", nil); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Immediate error = %v, want %v", err, failure)
	}
	if value := readCounter(t, pool); value != 10 {
		t.Errorf("value after rollback = %d, want 10", value)
	}
}

func TestImmediateSerializesWriters(t *testing.T) {
	pool := openTestPool(t, schema)
	ctx := context.Background()
	if err := pool.Immediate(ctx, 1, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO counter (id, value) VALUES (1, 0)", nil)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 16
	var waitGroup sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			errs <- pool.Immediate(ctx, 5, func(conn *sqlite.Conn) error {
				var current int64
				err := sqlitex.Execute(conn, "SELECT value FROM counter WHERE id = 1", &sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						current = stmt.ColumnInt64(0)
						return nil
					},
				})
				if err != nil {
					return err
				}
				return sqlitex.Execute(conn, "UPDATE counter SET value = ? WHERE id = 1", &sqlitex.ExecOptions{
					Args: []any{current + 1},
				})
			})
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("writer failed: %v", err)
		}
	}
	if value := readCounter(t, pool); value != writers {
		t.Errorf("counter = %d, want %d", value, writers)
	}
}

func TestIsBusy(t *testing.T) {
	if sqlitepool.IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
	if sqlitepool.IsBusy(errors.New("plain")) {
		t.Error("IsBusy(plain error) = true")
	}
}
