// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docref

import (
	"maps"
	"reflect"
	"slices"
	"strings"
)

// maxSegmentLength bounds collection names and document ids.
const maxSegmentLength = 1500

// ValidationError reports rejected input, keyed by the name of the
// offending field.
type ValidationError struct {
	Fields map[string]string
}

// Add records a problem with field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns e if any problem was recorded, nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks that r is well formed. It returns a
// *ValidationError describing every problem found.
func (r Ref) Validate() error {
	var problems ValidationError
	validateSegment(&problems, "collection", r.Collection)
	if r.IsDocument() {
		validateSegment(&problems, "id", r.ID)
		if len(r.Filters) > 0 || len(r.Orders) > 0 || r.Limit != 0 {
			problems.Add("id", "a document ref cannot carry filters, ordering or a limit")
		}
		return problems.Err()
	}

	for _, filter := range r.Filters {
		if filter.Field == "" {
			problems.Add("filters", "filter field must not be empty")
			continue
		}
		if !slices.Contains(validOps, filter.Op) {
			problems.Add("filters", "unknown operator "+string(filter.Op))
			continue
		}
		if filter.Op == In && !isList(filter.Value) {
			problems.Add("filters", "the in operator needs a list value")
		}
	}
	for _, order := range r.Orders {
		if order.Field == "" {
			problems.Add("order_by", "order field must not be empty")
		}
		if order.Direction != Ascending && order.Direction != Descending {
			problems.Add("order_by", "direction must be asc or desc")
		}
	}
	if r.Limit < 0 {
		problems.Add("limit", "must not be negative")
	}
	return problems.Err()
}

func validateSegment(problems *ValidationError, field, value string) {
	switch {
	case value == "":
		problems.Add(field, "must not be empty")
	case len(value) > maxSegmentLength:
		problems.Add(field, "too long")
	case strings.Contains(value, "/"):
		problems.Add(field, "must not contain /")
	case value == "." || value == "..":
		problems.Add(field, "must not be . or ..")
	case strings.HasPrefix(value, "__") && strings.HasSuffix(value, "__"):
		problems.Add(field, "names of the form __name__ are reserved")
	}
}

func isList(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
