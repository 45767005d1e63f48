// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// Action names.
const (
	ActionRead      = "read"
	ActionWrite     = "write"
	ActionDelete    = "delete"
	ActionCommit    = "commit"
	ActionSubscribe = "subscribe"
)

// Frame types on a subscribe stream.
const (
	FrameSnapshot  = "snapshot"
	FrameHeartbeat = "heartbeat"
	FrameError     = "error"
)

// DefaultHeartbeatInterval is used when no interval is configured. A
// client treats a stream that stays silent for twice the interval as
// dead.
const DefaultHeartbeatInterval = 30 * time.Second

// maxMessageSize bounds a single request or response.
const maxMessageSize = 16 * 1024 * 1024

// Response is the envelope of every non-streaming reply.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
	Code  string `cbor:"code,omitempty"`

	// Fields carries per-field messages of a validation error.
	Fields map[string]string `cbor:"fields,omitempty"`

	Data codec.RawMessage `cbor:"data,omitempty"`
}

// Frame is one value on a subscribe stream.
type Frame struct {
	Type     string             `cbor:"type"`
	Snapshot *docstore.Snapshot `cbor:"snapshot,omitempty"`
	Error    string             `cbor:"error,omitempty"`
	Code     string             `cbor:"code,omitempty"`
	Fields   map[string]string  `cbor:"fields,omitempty"`
}

type refRequest struct {
	Action string     `cbor:"action"`
	Ref    docref.Ref `cbor:"ref"`
}

type writeRequest struct {
	Action string          `cbor:"action"`
	Ref    docref.Ref      `cbor:"ref"`
	Fields docstore.Fields `cbor:"fields"`
	Merge  bool            `cbor:"merge,omitempty"`
}

type commitRequest struct {
	Action        string                  `cbor:"action"`
	Preconditions []docstore.Precondition `cbor:"preconditions,omitempty"`
	Mutations     []docstore.Mutation     `cbor:"mutations"`
}

// RemoteError is a failure reported by the server. It unwraps to the
// docstore sentinel matching its code, so callers test it with
// errors.Is exactly as they would a local store error.
type RemoteError struct {
	Action  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("storesocket: %s: %s", e.Action, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return docstore.Sentinel(e.Code)
}

// encodeError fills the wire representation of err.
func encodeError(err error) (message, code string, fields map[string]string) {
	code = docstore.Code(err)
	if validation, ok := asValidation(err); ok {
		fields = validation.Fields
	}
	return err.Error(), code, fields
}

// decodeError rebuilds a Go error from its wire representation.
// Validation errors come back as *docref.ValidationError so that field
// messages survive the round trip.
func decodeError(action, message, code string, fields map[string]string) error {
	if code == docstore.CodeValidation {
		return &docref.ValidationError{Fields: fields}
	}
	return &RemoteError{Action: action, Code: code, Message: message}
}

func asValidation(err error) (*docref.ValidationError, bool) {
	var validation *docref.ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}
