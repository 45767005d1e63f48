// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package synccache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/testutil"
)

const waitTimeout = 5 * time.Second

// fakeStore records subscription traffic and lets tests push
// snapshots to the open listener of a ref.
type fakeStore struct {
	docstore.Store

	mu         sync.Mutex
	subscribes map[string]int
	closes     map[string]int
	listeners  map[string]docstore.Listener
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subscribes: make(map[string]int),
		closes:     make(map[string]int),
		listeners:  make(map[string]docstore.Listener),
	}
}

type fakeHandle struct {
	store *fakeStore
	key   string
	once  sync.Once
}

func (h *fakeHandle) Close() {
	h.once.Do(func() {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		h.store.closes[h.key]++
		delete(h.store.listeners, h.key)
	})
}

func (s *fakeStore) Subscribe(ref docref.Ref, listener docstore.Listener) (docstore.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ref.Key()
	if _, open := s.listeners[key]; open {
		return nil, fmt.Errorf("second store subscription for %s", ref)
	}
	s.subscribes[key]++
	s.listeners[key] = listener
	return &fakeHandle{store: s, key: key}, nil
}

func (s *fakeStore) emit(t *testing.T, ref docref.Ref, snapshot docstore.Snapshot, err error) {
	t.Helper()
	s.mu.Lock()
	listener := s.listeners[ref.Key()]
	s.mu.Unlock()
	if listener == nil {
		t.Fatalf("no open store subscription for %s", ref)
	}
	listener(snapshot, err)
}

func (s *fakeStore) counts(ref docref.Ref) (subscribes, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[ref.Key()], s.closes[ref.Key()]
}

type companyInfo struct {
	Name string `json:"name"`
}

type counterDocument struct {
	Count int `json:"count"`
}

var mainRef = docref.Doc("companyInfo", "main")

func companySnapshot(name string) docstore.Snapshot {
	return docstore.Snapshot{
		Ref:       mainRef,
		Exists:    true,
		Documents: []docstore.Document{{ID: "main", Fields: docstore.Fields{"name": name}}},
	}
}

func newCompanyCache(store docstore.Store) *Cache[companyInfo] {
	return New(store, DecodeDocument[companyInfo], Options{})
}

func collect[T any](t *testing.T, cache *Cache[T], ref docref.Ref) (<-chan State[T], *Subscription[T]) {
	t.Helper()
	states := make(chan State[T], 64)
	subscription, err := cache.Subscribe(ref, func(state State[T]) { states <- state })
	if err != nil {
		t.Fatalf("Subscribe(%s): %v", ref, err)
	}
	return states, subscription
}

func requireName(t *testing.T, state State[companyInfo], want string) {
	t.Helper()
	if state.Status != StatusReady || state.Value == nil || !state.Value.Exists {
		t.Fatalf("state = %+v, want ready and existing", state)
	}
	if state.Value.Data.Name != want {
		t.Fatalf("name = %q, want %q", state.Value.Data.Name, want)
	}
}

func TestEqualRefsShareOneStoreSubscription(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	first, _ := collect(t, cache, docref.Doc("companyInfo", "main"))
	second, _ := collect(t, cache, docref.Doc("companyInfo", "main"))
	if subscribes, _ := store.counts(mainRef); subscribes != 1 {
		t.Fatalf("store subscriptions = %d, want 1", subscribes)
	}
	if stats := cache.Stats(); stats.Entries != 1 || stats.Listeners != 2 {
		t.Errorf("Stats() = %+v, want 1 entry and 2 listeners", stats)
	}

	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	requireName(t, testutil.RequireReceive(t, first, waitTimeout, "first listener"), "JH Smart")
	requireName(t, testutil.RequireReceive(t, second, waitTimeout, "second listener"), "JH Smart")
}

func TestDistinctRefsGetDistinctEntries(t *testing.T) {
	store := newFakeStore()
	cache := New(store, Raw, Options{})
	collect(t, cache, docref.Collection("contacts"))
	collect(t, cache, docref.Collection("contacts").OrderBy("submissionDate", docref.Descending))
	if stats := cache.Stats(); stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
}

func TestLateJoinerReceivesCurrentState(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	first, _ := collect(t, cache, mainRef)
	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	requireName(t, testutil.RequireReceive(t, first, waitTimeout, "first listener"), "JH Smart")

	late, subscription := collect(t, cache, mainRef)
	requireName(t, testutil.RequireReceive(t, late, waitTimeout, "replay to late joiner"), "JH Smart")
	requireName(t, subscription.State(), "JH Smart")
	testutil.RequireNoReceive(t, first, 100*time.Millisecond, "replay leaked to the first listener")

	if subscribes, _ := store.counts(mainRef); subscribes != 1 {
		t.Errorf("store subscriptions = %d, want 1", subscribes)
	}
}

func TestLoadingEntryDoesNotReplay(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)
	collect(t, cache, mainRef)
	second, subscription := collect(t, cache, mainRef)
	if subscription.State().Status != StatusLoading {
		t.Errorf("state = %v, want loading", subscription.State().Status)
	}
	testutil.RequireNoReceive(t, second, 100*time.Millisecond, "callback while loading")
}

func TestReferenceCountedLifecycle(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	_, first := collect(t, cache, mainRef)
	_, second := collect(t, cache, mainRef)
	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)

	first.Unsubscribe()
	first.Unsubscribe()
	if _, closes := store.counts(mainRef); closes != 0 {
		t.Fatalf("store subscription closed with a listener remaining")
	}

	second.Unsubscribe()
	if _, closes := store.counts(mainRef); closes != 1 {
		t.Fatalf("store closes = %d, want 1", closes)
	}
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Errorf("Entries = %d after last unsubscribe, want 0", stats.Entries)
	}

	states, third := collect(t, cache, mainRef)
	if subscribes, _ := store.counts(mainRef); subscribes != 2 {
		t.Fatalf("store subscriptions = %d, want a fresh one", subscribes)
	}
	if third.State().Status != StatusLoading {
		t.Errorf("resubscribed state = %v, want loading", third.State().Status)
	}
	testutil.RequireNoReceive(t, states, 100*time.Millisecond, "stale state after reopening")
}

func TestConcurrentSubscribersShareOneStoreSubscription(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	const (
		goroutines = 64
		rounds     = 50
	)
	var (
		start    sync.WaitGroup
		done     sync.WaitGroup
		failures atomic.Int64
		firstErr atomic.Value
	)
	start.Add(1)
	for range goroutines {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			for range rounds {
				subscription, err := cache.Subscribe(mainRef, func(State[companyInfo]) {})
				if err != nil {
					if failures.Add(1) == 1 {
						firstErr.Store(err)
					}
					continue
				}
				subscription.Unsubscribe()
			}
		}()
	}
	start.Done()
	done.Wait()

	if count := failures.Load(); count != 0 {
		t.Fatalf("%d Subscribe calls failed, first: %v", count, firstErr.Load())
	}
	subscribes, closes := store.counts(mainRef)
	if subscribes == 0 || subscribes != closes {
		t.Errorf("store subscribes = %d, closes = %d, want equal and non-zero", subscribes, closes)
	}
	if stats := cache.Stats(); stats.Entries != 0 || stats.Listeners != 0 {
		t.Errorf("Stats() = %+v after every unsubscribe, want empty", stats)
	}
}

func TestPermissionErrorDropsLastValue(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)
	states, subscription := collect(t, cache, mainRef)

	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	testutil.RequireReceive(t, states, waitTimeout, "ready state")

	store.emit(t, mainRef, docstore.Snapshot{}, fmt.Errorf("reading companyInfo: %w", docstore.ErrPermissionDenied))
	failed := testutil.RequireReceive(t, states, waitTimeout, "error state")
	if failed.Status != StatusError || failed.Value != nil {
		t.Fatalf("state = %+v, want error without value", failed)
	}
	if !errors.Is(failed.Err, docstore.ErrPermissionDenied) {
		t.Errorf("Err = %v, want ErrPermissionDenied", failed.Err)
	}
	if subscription.State().Value != nil {
		t.Error("State() still exposes the last good value")
	}

	// Error is final.
	store.emit(t, mainRef, companySnapshot("Recovered"), nil)
	testutil.RequireNoReceive(t, states, 100*time.Millisecond, "update after error")

	late, _ := collect(t, cache, mainRef)
	replayed := testutil.RequireReceive(t, late, waitTimeout, "error replay")
	if replayed.Status != StatusError {
		t.Errorf("late joiner state = %v, want error", replayed.Status)
	}
}

func TestConnectivityErrorsAreTransparent(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)
	states, subscription := collect(t, cache, mainRef)

	store.emit(t, mainRef, docstore.Snapshot{}, docstore.ErrConnectivity)
	testutil.RequireNoReceive(t, states, 100*time.Millisecond, "callback for connectivity blip")
	if subscription.State().Status != StatusLoading {
		t.Errorf("state = %v, want loading", subscription.State().Status)
	}

	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	requireName(t, testutil.RequireReceive(t, states, waitTimeout, "ready after reconnect"), "JH Smart")
}

func TestDecodeFailureIsAnError(t *testing.T) {
	store := newFakeStore()
	cache := New(store, func(docstore.Snapshot) (int, error) { return 0, errors.New("bad shape") }, Options{})
	states, _ := collect(t, cache, mainRef)
	store.emit(t, mainRef, companySnapshot("x"), nil)
	state := testutil.RequireReceive(t, states, waitTimeout, "decode failure")
	if state.Status != StatusError || state.Err == nil {
		t.Fatalf("state = %+v, want error", state)
	}
}

func TestAbsentDocumentIsReady(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)
	states, _ := collect(t, cache, mainRef)
	store.emit(t, mainRef, docstore.Snapshot{Ref: mainRef}, nil)
	state := testutil.RequireReceive(t, states, waitTimeout, "absent document")
	if state.Status != StatusReady || state.Value == nil || state.Value.Exists {
		t.Fatalf("state = %+v, want ready and absent", state)
	}
}

func TestDeliveryFollowsRegistrationOrder(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 1; i <= 3; i++ {
		_, err := cache.Subscribe(mainRef, func(State[companyInfo]) {
			mu.Lock()
			order = append(order, i)
			finished := len(order) == 3
			mu.Unlock()
			if finished {
				close(done)
			}
		})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	testutil.RequireClosed(t, done, waitTimeout, "all listeners called")

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(order) != "[1 2 3]" {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestDeliveriesAreSerializedAndOrdered(t *testing.T) {
	store := newFakeStore()
	cache := New(store, DecodeDocument[counterDocument], Options{})

	const updates = 200
	var inFlight atomic.Int32
	var overlapped atomic.Bool
	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	for range 2 {
		_, err := cache.Subscribe(mainRef, func(state State[counterDocument]) {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			defer inFlight.Add(-1)
			mu.Lock()
			seen = append(seen, state.Value.Data.Count)
			if len(seen) == 2*updates {
				close(done)
			}
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	for i := range updates {
		store.emit(t, mainRef, docstore.Snapshot{
			Ref:       mainRef,
			Exists:    true,
			Documents: []docstore.Document{{ID: "main", Fields: docstore.Fields{"count": i}}},
		}, nil)
	}
	testutil.RequireClosed(t, done, waitTimeout, "all deliveries")

	if overlapped.Load() {
		t.Error("callbacks for one ref overlapped")
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < updates; i++ {
		if seen[2*i] != i || seen[2*i+1] != i {
			t.Fatalf("delivery %d saw %d/%d, want %d for both listeners", i, seen[2*i], seen[2*i+1], i)
		}
	}
}

func TestUnsubscribeFromInsideCallback(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)

	unsubscribed := make(chan struct{})
	var subscription *Subscription[companyInfo]
	subscription, err := cache.Subscribe(mainRef, func(State[companyInfo]) {
		subscription.Unsubscribe()
		close(unsubscribed)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	store.emit(t, mainRef, companySnapshot("JH Smart"), nil)
	testutil.RequireClosed(t, unsubscribed, waitTimeout, "unsubscribe inside callback")
	if _, closes := store.counts(mainRef); closes != 1 {
		t.Errorf("store closes = %d, want 1", closes)
	}
}

func TestCloseCache(t *testing.T) {
	store := newFakeStore()
	cache := newCompanyCache(store)
	_, subscription := collect(t, cache, mainRef)
	cache.Close()
	if _, closes := store.counts(mainRef); closes != 1 {
		t.Errorf("store closes = %d after Close, want 1", closes)
	}
	subscription.Unsubscribe()
	if _, err := cache.Subscribe(mainRef, func(State[companyInfo]) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	cache := newCompanyCache(newFakeStore())
	var validation *docstore.ValidationError
	if _, err := cache.Subscribe(docref.Doc("", "main"), func(State[companyInfo]) {}); !errors.As(err, &validation) {
		t.Errorf("Subscribe(invalid ref) = %v, want ValidationError", err)
	}
	if _, err := cache.Subscribe(mainRef, nil); !errors.As(err, &validation) {
		t.Errorf("Subscribe(nil listener) = %v, want ValidationError", err)
	}
}

func TestStatusString(t *testing.T) {
	for status, want := range map[Status]string{StatusLoading: "loading", StatusReady: "ready", StatusError: "error"} {
		if status.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(status), status.String(), want)
		}
	}
}
