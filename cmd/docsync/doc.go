// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Docsync is the operator CLI for a docsync deployment.
//
// Every command talks to docsync-store over its socket; none opens the
// database directly. Writes go through the mutation queue, and the CLI
// waits for the queue to drain before exiting, so a command that
// returns successfully has stored what it reported.
//
// Commands:
//
//	submit contact|lead   record a form submission (contacts get an SR number)
//	status                mark a contact or lead Pending or Resolved
//	delete                remove a contact or lead
//	counter               show the service request counter
//	watch                 live view of contacts and leads
//	seed                  load site content from a JSONC file
//	export                write an age-encrypted export of collections
//	keygen                create an age keypair for exports
//
// The configuration file is named by --config or DOCSYNC_CONFIG.
package main
