// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"errors"

	"github.com/jhsmart/docsync/lib/docref"
)

var (
	// ErrNotFound is returned by ReadDocument for an absent document.
	ErrNotFound = errors.New("document not found")

	// ErrPermissionDenied means access rules reject the operation.
	// It is terminal for a subscription.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConnectivity means the store could not be reached. The
	// operation may be retried.
	ErrConnectivity = errors.New("store unreachable")

	// ErrTransactionConflict means a transaction kept losing to
	// concurrent writers and gave up.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrPreconditionFailed is returned by Commit when a document
	// changed since it was read.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store closed")
)

// ValidationError reports malformed input. It is shared with docref
// so that ref validation and record validation surface the same type.
type ValidationError = docref.ValidationError

// Retryable reports whether err is worth retrying unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// Error codes carried on the wire in place of Go error values.
const (
	CodeNotFound           = "not_found"
	CodePermissionDenied   = "permission_denied"
	CodeConnectivity       = "connectivity"
	CodeConflict           = "conflict"
	CodePreconditionFailed = "precondition_failed"
	CodeClosed             = "closed"
	CodeValidation         = "validation"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeNotFound, ErrNotFound},
	{CodePermissionDenied, ErrPermissionDenied},
	{CodeConnectivity, ErrConnectivity},
	{CodeConflict, ErrTransactionConflict},
	{CodePreconditionFailed, ErrPreconditionFailed},
	{CodeClosed, ErrClosed},
}

// Code returns the wire code for err, or "" for errors outside the
// taxonomy.
func Code(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return CodeValidation
	}
	for _, entry := range codes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ""
}

// Sentinel returns the sentinel error for a wire code, or nil.
func Sentinel(code string) error {
	for _, entry := range codes {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}
