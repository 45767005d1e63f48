// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] hold the
// only wall-clock timeouts in the test suite: a select against
// time.After that fails the test instead of hanging it. Components
// under test take a clock.Clock and are driven by clock.Fake.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes.
//
// [UniqueID] generates distinct identifiers without consulting the
// time.
package testutil
