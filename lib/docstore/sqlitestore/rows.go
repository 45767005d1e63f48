// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"fmt"
	"time"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docstore"
)

const documentColumns = "id, body, compression, size, digest, updated_at"

func (s *Store) loadDocument(conn *sqlite.Conn, collection, id string) (docstore.Document, bool, error) {
	var document docstore.Document
	var found bool
	err := sqlitex.Execute(conn,
		"SELECT "+documentColumns+" FROM documents WHERE collection = ? AND id = ?",
		&sqlitex.ExecOptions{
			Args: []any{collection, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				document, err = scanDocument(stmt)
				found = err == nil
				return err
			},
		})
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("sqlitestore: loading %s/%s: %w", collection, id, err)
	}
	return document, found, nil
}

func (s *Store) loadCollection(conn *sqlite.Conn, collection string) ([]docstore.Document, error) {
	var documents []docstore.Document
	err := sqlitex.Execute(conn,
		"SELECT "+documentColumns+" FROM documents WHERE collection = ? ORDER BY id",
		&sqlitex.ExecOptions{
			Args: []any{collection},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				document, err := scanDocument(stmt)
				if err != nil {
					return err
				}
				documents = append(documents, document)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: loading collection %s: %w", collection, err)
	}
	return documents, nil
}

func (s *Store) loadDigest(conn *sqlite.Conn, collection, id string) (docstore.Digest, bool, error) {
	var digest docstore.Digest
	var found bool
	err := sqlitex.Execute(conn,
		"SELECT digest FROM documents WHERE collection = ? AND id = ?",
		&sqlitex.ExecOptions{
			Args: []any{collection, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stmt.ColumnBytes(0, digest[:])
				found = true
				return nil
			},
		})
	if err != nil {
		return docstore.Digest{}, false, fmt.Errorf("sqlitestore: loading digest of %s/%s: %w", collection, id, err)
	}
	return digest, found, nil
}

func scanDocument(stmt *sqlite.Stmt) (docstore.Document, error) {
	id := stmt.ColumnText(0)
	stored := make([]byte, stmt.ColumnLen(1))
	stmt.ColumnBytes(1, stored)
	tag := Compression(stmt.ColumnInt64(2))
	size := int(stmt.ColumnInt64(3))

	document := docstore.Document{
		ID:        id,
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(5)).UTC(),
	}
	stmt.ColumnBytes(4, document.Digest[:])

	body, err := decompress(stored, tag, size)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("document %s: %w", id, err)
	}
	if err := codec.Unmarshal(body, &document.Fields); err != nil {
		return docstore.Document{}, fmt.Errorf("document %s: decoding body: %w", id, err)
	}
	if document.Fields == nil {
		document.Fields = docstore.Fields{}
	}
	return document, nil
}

// putDocument stores fields unless the stored body already has the
// same digest. It reports whether anything changed.
func (s *Store) putDocument(conn *sqlite.Conn, collection, id string, fields docstore.Fields) (bool, error) {
	body, err := codec.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: encoding %s/%s: %w", collection, id, err)
	}
	digest := docstore.Digest(blake3.Sum256(body))

	existing, found, err := s.loadDigest(conn, collection, id)
	if err != nil {
		return false, err
	}
	if found && existing == digest {
		return false, nil
	}

	stored, tag := body, CompressionNone
	if s.compression != CompressionNone && len(body) >= s.threshold {
		stored, tag, err = compress(body, s.compression)
		if err != nil {
			return false, err
		}
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO documents (collection, id, body, compression, size, digest, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			body = excluded.body,
			compression = excluded.compression,
			size = excluded.size,
			digest = excluded.digest,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{collection, id, stored, int64(tag), int64(len(body)), digest[:], s.clock.Now().UnixNano()},
		})
	if err != nil {
		return false, fmt.Errorf("sqlitestore: writing %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *Store) deleteDocument(conn *sqlite.Conn, collection, id string) (bool, error) {
	err := sqlitex.Execute(conn, "DELETE FROM documents WHERE collection = ? AND id = ?",
		&sqlitex.ExecOptions{Args: []any{collection, id}})
	if err != nil {
		return false, fmt.Errorf("sqlitestore: deleting %s/%s: %w", collection, id, err)
	}
	return conn.Changes() > 0, nil
}
