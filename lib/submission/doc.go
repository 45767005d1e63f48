// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package submission turns site form input into stored records and
// implements the admin actions on them.
//
// A contact submission allocates the next service request number and
// then enqueues the new record; the caller gets the record back as
// soon as the number is allocated. Lead (quote request) submissions
// take no number. Status changes and deletions are enqueued writes as
// well. Failures of enqueued writes surface through the mutation
// queue, not through this package.
package submission
