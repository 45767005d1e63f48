// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that waits (mutation retry delays, subscription reconnect
// backoff, stream heartbeats) or stamps records (submission dates,
// document update times) takes a Clock instead of calling the time
// package. Production wiring passes Real(). Tests pass Fake(), whose
// time moves only when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	queue, _ := mutation.New(mutation.Config{Store: store, Clock: c})
//	// ... enqueue a write that fails with a connectivity error ...
//	c.WaitForWaiters(1)
//	c.Advance(time.Second)
//
// WaitForWaiters closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
