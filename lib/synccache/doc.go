// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package synccache shares live store subscriptions between any number
// of local listeners.
//
// A [Cache] holds at most one store subscription per structurally
// distinct ref. The first Subscribe for a ref opens it. Later
// Subscribes for an equal ref attach to the same entry and are told
// the current state straight away if one is known. The last
// Unsubscribe closes the store subscription and forgets the state.
//
// Every entry owns a goroutine that delivers [State] values to its
// listeners in registration order. Callbacks for one ref never run
// concurrently and never run while the cache holds a lock, so a
// listener may Subscribe or Unsubscribe from inside its callback.
//
// An entry moves Loading -> Ready, Ready -> Ready, and from either to
// Error. Error is final: the last good value is dropped and nothing
// further is delivered for that entry. Connectivity hiccups reported
// by the store are logged and otherwise ignored, since the store
// resumes delivery on its own.
//
//	contacts := synccache.New(store, synccache.DecodeQuery[Contact], synccache.Options{Logger: logger})
//	sub, err := contacts.Subscribe(
//	    docref.Collection("contacts").OrderBy("submissionDate", docref.Descending),
//	    func(state synccache.State[[]Contact]) { ... },
//	)
//	defer sub.Unsubscribe()
package synccache
