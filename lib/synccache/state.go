// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package synccache

import (
	"fmt"

	"github.com/jhsmart/docsync/lib/docstore"
)

// Status is the lifecycle phase of a cache entry.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Snapshot is a decoded value. Exists is false for a document ref
// whose document is absent, in which case Data is the zero value.
type Snapshot[T any] struct {
	Data   T
	Exists bool
}

// State is what listeners observe. Value is set only when Status is
// StatusReady. Err is set only when Status is StatusError.
type State[T any] struct {
	Status Status
	Value  *Snapshot[T]
	Err    error
}

// Decoder turns a raw store snapshot into the cache's value type.
type Decoder[T any] func(docstore.Snapshot) (T, error)

// DecodeDocument decodes a document snapshot into a tagged record.
// An absent document decodes to the zero value.
func DecodeDocument[T any](snapshot docstore.Snapshot) (T, error) {
	var value T
	document, ok := snapshot.Document()
	if !ok {
		return value, nil
	}
	err := docstore.DecodeFields(document.Fields, &value)
	return value, err
}

// DecodeQuery decodes each document of a query snapshot, in order.
func DecodeQuery[T any](snapshot docstore.Snapshot) ([]T, error) {
	values := make([]T, 0, len(snapshot.Documents))
	for _, document := range snapshot.Documents {
		var value T
		if err := docstore.DecodeFields(document.Fields, &value); err != nil {
			return nil, fmt.Errorf("document %s: %w", document.ID, err)
		}
		values = append(values, value)
	}
	return values, nil
}

// Raw passes store snapshots through undecoded.
func Raw(snapshot docstore.Snapshot) (docstore.Snapshot, error) {
	return snapshot, nil
}
