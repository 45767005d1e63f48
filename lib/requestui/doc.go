// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package requestui is the terminal viewer for incoming support
// requests and quote requests.
//
// A [Source] subscribes to each collection through a synccache.Cache,
// ordered newest first, and forwards every state change as an [Event].
// [Model] is a bubbletea model that renders one tab per collection and
// lets the operator flip a record between Pending and Resolved. The
// model never writes to the store itself: status changes go through
// the Toggle callback, which docsync wires to the mutation queue.
package requestui
