// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/docstore/sqlitestore"
	"github.com/jhsmart/docsync/lib/sequence"
	"github.com/jhsmart/docsync/lib/storesocket"
	"github.com/jhsmart/docsync/lib/testutil"
)

const (
	waitTimeout = 5 * time.Second
	heartbeat   = time.Minute
)

var epoch = time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)

type harness struct {
	t           *testing.T
	socketPath  string
	backend     *sqlitestore.Store
	serverClock *clock.FakeClock
	clientClock *clock.FakeClock
	client      *storesocket.Client

	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:           t,
		socketPath:  filepath.Join(testutil.SocketDir(t), "store.sock"),
		serverClock: clock.Fake(epoch),
		clientClock: clock.Fake(epoch),
	}
	backend, err := sqlitestore.Open(sqlitestore.Config{
		Path:     filepath.Join(t.TempDir(), "docsync.db"),
		PoolSize: 8,
		Clock:    h.serverClock,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	h.backend = backend

	h.client, err = storesocket.NewClient(storesocket.ClientConfig{
		SocketPath:             h.socketPath,
		Clock:                  h.clientClock,
		Logger:                 slog.New(slog.DiscardHandler),
		HeartbeatInterval:      heartbeat,
		ReconnectDelay:         time.Second,
		MaxTransactionAttempts: 100,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	h.start()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	server, err := storesocket.NewServer(storesocket.ServerConfig{
		SocketPath:        h.socketPath,
		Store:             h.backend,
		Clock:             h.serverClock,
		Logger:            slog.New(slog.DiscardHandler),
		HeartbeatInterval: heartbeat,
	})
	if err != nil {
		h.t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx); err != nil {
			h.t.Errorf("Serve: %v", err)
		}
	}()
	h.cancel, h.done = cancel, done
	testutil.WaitForSocket(h.t, h.socketPath)
}

func (h *harness) stop() {
	h.t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	testutil.RequireClosed(h.t, h.done, waitTimeout, "server did not shut down")
	h.cancel = nil
}

type event struct {
	snapshot docstore.Snapshot
	err      error
}

func subscribe(t *testing.T, store docstore.Store, ref docref.Ref) <-chan event {
	t.Helper()
	events := make(chan event, 16)
	handle, err := store.Subscribe(ref, func(snapshot docstore.Snapshot, err error) {
		events <- event{snapshot, err}
	})
	if err != nil {
		t.Fatalf("Subscribe(%s): %v", ref, err)
	}
	t.Cleanup(handle.Close)
	return events
}

func TestReadWriteDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := docref.Doc("contacts", "c1")

	if _, err := h.client.ReadDocument(ctx, ref); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("ReadDocument of absent document = %v, want ErrNotFound", err)
	}

	fields := docstore.Fields{"name": "Asha", "visits": int64(3), "address": map[string]any{"city": "Pune"}}
	if err := h.client.Write(ctx, ref, fields, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.client.Write(ctx, ref, docstore.Fields{"status": "Pending"}, docstore.WriteOptions{Merge: true}); err != nil {
		t.Fatalf("merge Write: %v", err)
	}

	snapshot, err := h.client.ReadDocument(ctx, ref)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	document, exists := snapshot.Document()
	if !exists {
		t.Fatal("document missing after write")
	}
	want := docstore.Fields{"name": "Asha", "visits": int64(3), "address": map[string]any{"city": "Pune"}, "status": "Pending"}
	if !docstore.Equal(document.Fields, want) {
		t.Errorf("fields = %v, want %v", document.Fields, want)
	}
	if document.Digest.IsZero() {
		t.Error("digest did not survive the round trip")
	}

	if err := h.client.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.client.ReadDocument(ctx, ref); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("ReadDocument after Delete = %v, want ErrNotFound", err)
	}
}

func TestValidationErrorsKeepTheirFields(t *testing.T) {
	h := newHarness(t)
	err := h.client.Commit(context.Background(), nil, []docstore.Mutation{{Ref: docref.Doc("contacts", "..")}})
	var validation *docref.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Commit = %v, want ValidationError", err)
	}
	if validation.Fields["id"] == "" {
		t.Errorf("validation fields = %v, want an id entry", validation.Fields)
	}
}

func TestCommitPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := docref.Doc("counters", "contactCounter")

	err := h.client.Commit(ctx,
		[]docstore.Precondition{{Ref: ref, Exists: true}},
		[]docstore.Mutation{{Ref: ref, Fields: docstore.Fields{"current_number": int64(1)}}},
	)
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Fatalf("Commit against absent document = %v, want ErrPreconditionFailed", err)
	}

	err = h.client.Commit(ctx,
		[]docstore.Precondition{{Ref: ref, Exists: false}},
		[]docstore.Mutation{{Ref: ref, Fields: docstore.Fields{"current_number": int64(1)}}},
	)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snapshot, err := h.client.ReadDocument(ctx, ref)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	document, _ := snapshot.Document()

	stale := docstore.Precondition{Ref: ref, Exists: true, Digest: document.Digest}
	if err := h.client.Write(ctx, ref, docstore.Fields{"current_number": int64(2)}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err = h.client.Commit(ctx, []docstore.Precondition{stale}, []docstore.Mutation{{Ref: ref, Delete: true}})
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Errorf("Commit with stale digest = %v, want ErrPreconditionFailed", err)
	}
}

func TestTransactionReadsItsOwnWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := docref.Doc("companyInfo", "main")
	if err := h.client.Write(ctx, ref, docstore.Fields{"name": "Acme", "phone": "555"}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err := h.client.RunTransaction(ctx, func(tx docstore.Transaction) error {
		if err := tx.Set(ref, docstore.Fields{"phone": "556"}, docstore.WriteOptions{Merge: true}); err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		document, _ := snapshot.Document()
		if document.Fields.String("name") != "Acme" || document.Fields.String("phone") != "556" {
			t.Errorf("transaction view = %v", document.Fields)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	snapshot, err := h.client.ReadDocument(ctx, ref)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	document, _ := snapshot.Document()
	if document.Fields.String("phone") != "556" || document.Fields.String("name") != "Acme" {
		t.Errorf("stored = %v", document.Fields)
	}
}

func TestTransactionFunctionErrorAbortsCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := docref.Doc("contacts", "c1")
	abort := errors.New("abort")

	err := h.client.RunTransaction(ctx, func(tx docstore.Transaction) error {
		if err := tx.Set(ref, docstore.Fields{"name": "Asha"}, docstore.WriteOptions{}); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("RunTransaction = %v, want abort", err)
	}
	if _, err := h.client.ReadDocument(ctx, ref); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("aborted transaction left a document: %v", err)
	}
}

func TestConcurrentAllocationsOverSocket(t *testing.T) {
	h := newHarness(t)
	allocator, err := sequence.New(sequence.Config{Store: h.client, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("sequence.New: %v", err)
	}

	const allocations = 40
	values := make(chan int64, allocations)
	var wg sync.WaitGroup
	for range allocations {
		wg.Go(func() {
			result, err := allocator.Allocate(context.Background(), "contactCounter")
			if err != nil {
				t.Errorf("Allocate: %v", err)
				return
			}
			values <- result.RawValue
		})
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool)
	for value := range values {
		if seen[value] {
			t.Errorf("value %d allocated twice", value)
		}
		seen[value] = true
	}
	if len(seen) != allocations {
		t.Errorf("allocated %d distinct values, want %d", len(seen), allocations)
	}
	for value := int64(1); value <= allocations; value++ {
		if !seen[value] {
			t.Errorf("value %d missing", value)
		}
	}
}

func TestSubscribeFollowsChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	query := docref.Collection("contacts").OrderBy("name", docref.Ascending)
	events := subscribe(t, h.client, query)

	initial := testutil.RequireReceive(t, events, waitTimeout, "waiting for initial snapshot")
	if initial.err != nil || !initial.snapshot.Exists || len(initial.snapshot.Documents) != 0 {
		t.Fatalf("initial event = %+v, want empty query result", initial)
	}

	if err := h.client.Write(ctx, docref.Doc("contacts", "c2"), docstore.Fields{"name": "Ravi"}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	first := testutil.RequireReceive(t, events, waitTimeout, "waiting for first change")
	if len(first.snapshot.Documents) != 1 {
		t.Fatalf("after one write: %d documents", len(first.snapshot.Documents))
	}

	if err := h.client.Write(ctx, docref.Doc("contacts", "c1"), docstore.Fields{"name": "Asha"}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second := testutil.RequireReceive(t, events, waitTimeout, "waiting for second change")
	var names []string
	for _, document := range second.snapshot.Documents {
		names = append(names, document.Fields.String("name"))
	}
	if len(names) != 2 || names[0] != "Asha" || names[1] != "Ravi" {
		t.Errorf("names = %v, want [Asha Ravi]", names)
	}
}

func TestSubscribePermissionDeniedIsFinal(t *testing.T) {
	h := newHarness(t)
	events := subscribe(t, h.client, docref.Doc("contacts", "c1"))
	initial := testutil.RequireReceive(t, events, waitTimeout, "waiting for initial snapshot")
	if initial.err != nil || initial.snapshot.Exists {
		t.Fatalf("initial event = %+v, want absent document", initial)
	}

	h.backend.Deny("contacts")
	denied := testutil.RequireReceive(t, events, waitTimeout, "waiting for permission error")
	if !errors.Is(denied.err, docstore.ErrPermissionDenied) {
		t.Fatalf("event = %+v, want ErrPermissionDenied", denied)
	}

	h.backend.Allow("contacts")
	if err := h.backend.Write(context.Background(), docref.Doc("contacts", "c1"), docstore.Fields{"name": "Asha"}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testutil.RequireNoReceive(t, events, 50*time.Millisecond, "subscription delivered after a terminal error")
}

func TestSubscribeDeniedAtStart(t *testing.T) {
	h := newHarness(t)
	h.backend.Deny("leads")
	events := subscribe(t, h.client, docref.Collection("leads"))
	denied := testutil.RequireReceive(t, events, waitTimeout, "waiting for permission error")
	if !errors.Is(denied.err, docstore.ErrPermissionDenied) {
		t.Errorf("event = %+v, want ErrPermissionDenied", denied)
	}
}

func TestSubscribeSurvivesServerRestart(t *testing.T) {
	h := newHarness(t)
	ref := docref.Doc("companyInfo", "main")
	events := subscribe(t, h.client, ref)
	testutil.RequireReceive(t, events, waitTimeout, "waiting for initial snapshot")

	h.stop()
	if err := h.backend.Write(context.Background(), ref, docstore.Fields{"name": "Acme"}, docstore.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.start()

	h.clientClock.WaitForWaiters(1)
	h.clientClock.Advance(time.Second)

	update := testutil.RequireReceive(t, events, waitTimeout, "waiting for snapshot after reconnect")
	if update.err != nil {
		t.Fatalf("reconnect surfaced an error: %v", update.err)
	}
	document, exists := update.snapshot.Document()
	if !exists || document.Fields.String("name") != "Acme" {
		t.Errorf("snapshot after reconnect = %+v", update.snapshot)
	}
}

func TestSubscribeStreamHeartbeats(t *testing.T) {
	h := newHarness(t)
	conn, err := net.Dial("unix", h.socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	request := map[string]any{"action": storesocket.ActionSubscribe, "ref": docref.Doc("contacts", "c1")}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoder := codec.NewDecoder(conn)
	conn.SetReadDeadline(time.Now().Add(waitTimeout))

	var frame storesocket.Frame
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != storesocket.FrameSnapshot || frame.Snapshot == nil || frame.Snapshot.Exists {
		t.Fatalf("first frame = %+v, want snapshot of absent document", frame)
	}

	h.serverClock.WaitForWaiters(1)
	h.serverClock.Advance(heartbeat)
	frame = storesocket.Frame{}
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != storesocket.FrameHeartbeat {
		t.Errorf("second frame = %+v, want heartbeat", frame)
	}
}

func TestDialFailureIsConnectivity(t *testing.T) {
	client, err := storesocket.NewClient(storesocket.ClientConfig{
		SocketPath: filepath.Join(testutil.SocketDir(t), "missing.sock"),
		Clock:      clock.Fake(epoch),
		Logger:     slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.ReadDocument(context.Background(), docref.Doc("contacts", "c1"))
	if !errors.Is(err, docstore.ErrConnectivity) {
		t.Errorf("ReadDocument = %v, want ErrConnectivity", err)
	}
	if !docstore.Retryable(err) {
		t.Error("dial failure is not retryable")
	}
}
