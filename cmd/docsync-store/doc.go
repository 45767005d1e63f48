// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Docsync-store owns the SQLite document database and serves it to
// every other docsync process over a Unix socket.
//
// The daemon is the only process that opens the database. Clients
// (the docsync CLI, the viewer, the site backend) connect to the
// socket named by socket.path in the configuration and speak the CBOR
// protocol of lib/storesocket: reads, writes, optimistic transaction
// commits and subscribe streams. Logs are JSON on stderr.
//
// Configuration comes from --config or DOCSYNC_CONFIG. SIGINT and
// SIGTERM stop accepting connections, wait for in-flight requests and
// close the database.
package main
