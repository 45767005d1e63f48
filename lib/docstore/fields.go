// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docref"
)

// Fields is the content of a document. Values are strings, bools,
// numbers, nil, []any and nested map[string]any. Numbers read back
// from the store may be any Go integer or float type; use Int64 or
// docref.AsNumber rather than type-asserting.
type Fields map[string]any

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	clone := make(Fields, len(f))
	for key, value := range f {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return map[string]any(Fields(v).Clone())
	case Fields:
		return v.Clone()
	case []any:
		clone := make([]any, len(v))
		for i, element := range v {
			clone[i] = cloneValue(element)
		}
		return clone
	}
	return value
}

// Lookup resolves a dotted field path such as "address.city".
func (f Fields) Lookup(path string) (any, bool) {
	current := map[string]any(f)
	for {
		name, rest, nested := strings.Cut(path, ".")
		value, ok := current[name]
		if !ok {
			return nil, false
		}
		if !nested {
			return value, true
		}
		switch next := value.(type) {
		case map[string]any:
			current = next
		case Fields:
			current = next
		default:
			return nil, false
		}
		path = rest
	}
}

// String returns a string field, or "" when absent or not a string.
func (f Fields) String(name string) string {
	value, _ := f.Lookup(name)
	s, _ := value.(string)
	return s
}

// Int64 reads an integral numeric field. present is false when the
// field is missing or null. A non-numeric or fractional value is an
// error.
func (f Fields) Int64(name string) (value int64, present bool, err error) {
	raw, ok := f.Lookup(name)
	if !ok || raw == nil {
		return 0, false, nil
	}
	number, ok := docref.AsNumber(raw)
	if !ok {
		return 0, true, fmt.Errorf("docstore: field %s holds %T, not a number", name, raw)
	}
	if !number.IsInt {
		return 0, true, fmt.Errorf("docstore: field %s holds %v, not an integer", name, number.Float)
	}
	return number.Int, true, nil
}

// Merge returns base with update folded in. Nested maps present on
// both sides merge recursively. Neither input is modified.
func Merge(base, update Fields) Fields {
	merged := base.Clone()
	if merged == nil {
		merged = make(Fields, len(update))
	}
	for key, value := range update {
		existing, hasExisting := merged[key]
		existingMap, existingIsMap := asMap(existing)
		updateMap, updateIsMap := asMap(value)
		if hasExisting && existingIsMap && updateIsMap {
			merged[key] = map[string]any(Merge(existingMap, updateMap))
			continue
		}
		merged[key] = cloneValue(value)
	}
	return merged
}

func asMap(value any) (Fields, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Fields:
		return v, true
	}
	return nil, false
}

// EncodeFields converts a tagged record into Fields.
func EncodeFields(record any) (Fields, error) {
	var fields Fields
	if err := codec.Convert(record, &fields); err != nil {
		return nil, fmt.Errorf("docstore: encoding %T: %w", record, err)
	}
	return fields, nil
}

// DecodeFields converts Fields into a tagged record.
func DecodeFields(fields Fields, record any) error {
	if err := codec.Convert(map[string]any(fields), record); err != nil {
		return fmt.Errorf("docstore: decoding into %T: %w", record, err)
	}
	return nil
}

// Equal reports whether two field maps hold the same data, comparing
// numbers by value.
func Equal(a, b Fields) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		other, ok := b[key]
		if !ok || !valuesEqual(value, other) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	aMap, aIsMap := asMap(a)
	bMap, bIsMap := asMap(b)
	if aIsMap || bIsMap {
		return aIsMap && bIsMap && Equal(aMap, bMap)
	}
	aList, aIsList := a.([]any)
	bList, bIsList := b.([]any)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(aList) != len(bList) {
			return false
		}
		for i := range aList {
			if !valuesEqual(aList[i], bList[i]) {
				return false
			}
		}
		return true
	}
	rank := typeRank(a)
	if rank != typeRank(b) {
		return false
	}
	if rank == unorderedRank {
		return reflect.DeepEqual(a, b)
	}
	return compareValues(a, b) == 0
}
