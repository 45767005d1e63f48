// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/testutil"
)

func contactDocuments() []Document {
	return []Document{
		{ID: "a", Fields: Fields{"status": "Pending", "submissionDate": "2026-01-03T00:00:00.000Z", "priority": uint64(2)}},
		{ID: "b", Fields: Fields{"status": "Resolved", "submissionDate": "2026-01-01T00:00:00.000Z", "priority": int64(5)}},
		{ID: "c", Fields: Fields{"status": "Pending", "submissionDate": "2026-01-02T00:00:00.000Z", "priority": 1.5}},
		{ID: "d", Fields: Fields{"status": "Pending"}},
	}
}

func ids(documents []Document) []string {
	result := make([]string, len(documents))
	for i, document := range documents {
		result[i] = document.ID
	}
	return result
}

func TestEvaluate(t *testing.T) {
	contacts := docref.Collection("contacts")
	tests := []struct {
		name string
		ref  docref.Ref
		want []string
	}{
		{"whole collection sorted by id", contacts, []string{"a", "b", "c", "d"}},
		{"order by date desc drops undated", contacts.OrderBy("submissionDate", docref.Descending), []string{"a", "c", "b"}},
		{"equality filter", contacts.Where("status", docref.Equal, "Pending"), []string{"a", "c", "d"}},
		{"not equal", contacts.Where("status", docref.NotEqual, "Pending"), []string{"b"}},
		{"numeric range across types", contacts.Where("priority", docref.GreaterOrEqual, 2), []string{"a", "b"}},
		{"range ignores other kinds", contacts.Where("status", docref.Greater, 0), nil},
		{"in", contacts.Where("status", docref.In, []string{"Resolved"}), []string{"b"}},
		{"limit", contacts.OrderBy("submissionDate", docref.Ascending).WithLimit(2), []string{"b", "c"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ids(Evaluate(test.ref, contactDocuments()))
			if !slices.Equal(got, test.want) && !(len(got) == 0 && len(test.want) == 0) {
				t.Errorf("Evaluate = %v, want %v", got, test.want)
			}
		})
	}
}

type oneShotStore struct {
	Store
	snapshot Snapshot
	err      error
	closed   chan struct{}
}

type closeFunc func()

func (f closeFunc) Close() { f() }

func (s *oneShotStore) Subscribe(ref docref.Ref, listener Listener) (Handle, error) {
	go listener(s.snapshot, s.err)
	return closeFunc(func() { close(s.closed) }), nil
}

func TestGetClosesSubscription(t *testing.T) {
	store := &oneShotStore{
		snapshot: Snapshot{Ref: docref.Collection("leads"), Exists: true, Documents: []Document{{ID: "x"}}},
		closed:   make(chan struct{}),
	}
	snapshot, err := Get(context.Background(), store, docref.Collection("leads"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(snapshot.Documents) != 1 {
		t.Errorf("documents = %v", snapshot.Documents)
	}
	testutil.RequireClosed(t, store.closed, 5*time.Second, "subscription close")
}

func TestGetReturnsListenerError(t *testing.T) {
	store := &oneShotStore{err: ErrPermissionDenied, closed: make(chan struct{})}
	_, err := Get(context.Background(), store, docref.Collection("contacts"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Get error = %v, want ErrPermissionDenied", err)
	}
}
