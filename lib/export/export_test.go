// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package export_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/docstore/sqlitestore"
	"github.com/jhsmart/docsync/lib/export"
	"github.com/jhsmart/docsync/lib/sealed"
)

func seededStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(sqlitestore.Config{
		Path:   filepath.Join(t.TempDir(), "docsync.db"),
		Clock:  clock.Fake(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)),
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	documents := []struct {
		ref    docref.Ref
		fields docstore.Fields
	}{
		{docref.Doc("contacts", "c1"), docstore.Fields{"name": "Asha", "submissionDate": "2026-06-01T09:30:00.000Z"}},
		{docref.Doc("contacts", "c2"), docstore.Fields{"name": "Ravi", "submissionDate": "2026-06-02T10:00:00.000Z"}},
		{docref.Doc("leads", "l1"), docstore.Fields{"name": "Meera", "service": "Apps"}},
	}
	for _, document := range documents {
		if err := store.Write(ctx, document.ref, document.fields, docstore.WriteOptions{}); err != nil {
			t.Fatalf("Write %s: %v", document.ref, err)
		}
	}
	return store
}

func TestWriteAndRead(t *testing.T) {
	store := seededStore(t)
	refs := []docref.Ref{
		docref.Collection("contacts").OrderBy("submissionDate", docref.Descending),
		docref.Collection("leads"),
	}

	var buffer bytes.Buffer
	count, err := export.Write(context.Background(), store, refs, &buffer)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	records, err := export.Read(&buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var order []string
	for _, record := range records {
		order = append(order, record.Collection+"/"+record.ID)
	}
	want := []string{"contacts/c2", "contacts/c1", "leads/l1"}
	if len(order) != len(want) {
		t.Fatalf("records = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("record %d = %s, want %s", i, order[i], want[i])
		}
	}
	if records[2].Fields.String("service") != "Apps" {
		t.Errorf("lead fields = %v", records[2].Fields)
	}
	if records[0].UpdatedAt.IsZero() {
		t.Error("UpdatedAt not exported")
	}
}

func TestSealedExport(t *testing.T) {
	store := seededStore(t)
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	var ciphertext bytes.Buffer
	writer, err := sealed.NewWriter(&ciphertext, []string{keypair.PublicKey}, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := export.Write(context.Background(), store, []docref.Ref{docref.Collection("contacts")}, writer); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), []byte("Asha")) {
		t.Fatal("sealed export contains plaintext")
	}

	identities, err := sealed.ParseIdentities(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("ParseIdentities: %v", err)
	}
	plaintext, err := sealed.NewReader(&ciphertext, identities...)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	records, err := export.Read(plaintext)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("decrypted %d records, want 2", len(records))
	}
}

func TestWriteStopsOnDeniedCollection(t *testing.T) {
	store := seededStore(t)
	store.Deny("leads")
	var buffer bytes.Buffer
	_, err := export.Write(context.Background(), store, []docref.Ref{docref.Collection("leads")}, &buffer)
	if !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("Write = %v, want ErrPermissionDenied", err)
	}
}
