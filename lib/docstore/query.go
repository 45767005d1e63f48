// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"cmp"
	"slices"

	"github.com/jhsmart/docsync/lib/docref"
)

// Matches reports whether fields satisfy every filter of ref. A
// document missing a filtered field never matches.
func Matches(ref docref.Ref, fields Fields) bool {
	for _, filter := range ref.Filters {
		value, ok := fields.Lookup(filter.Field)
		if !ok {
			return false
		}
		if !matchFilter(filter, value) {
			return false
		}
	}
	return true
}

func matchFilter(filter docref.Filter, value any) bool {
	if filter.Op == docref.In {
		for _, candidate := range listValues(filter.Value) {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	}
	if filter.Op == docref.Equal {
		return valuesEqual(value, filter.Value)
	}
	if filter.Op == docref.NotEqual {
		return !valuesEqual(value, filter.Value)
	}
	// Range operators only compare values of the same kind.
	if typeRank(value) != typeRank(filter.Value) {
		return false
	}
	comparison := compareValues(value, filter.Value)
	switch filter.Op {
	case docref.Less:
		return comparison < 0
	case docref.LessOrEqual:
		return comparison <= 0
	case docref.Greater:
		return comparison > 0
	case docref.GreaterOrEqual:
		return comparison >= 0
	}
	return false
}

func listValues(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		values := make([]any, len(v))
		for i, s := range v {
			values[i] = s
		}
		return values
	}
	return nil
}

// Evaluate filters, sorts and limits documents for a query ref.
// Documents lacking an ordering field are excluded. Ties break on
// document id so results are stable.
func Evaluate(ref docref.Ref, documents []Document) []Document {
	var matched []Document
	for _, document := range documents {
		if !Matches(ref, document.Fields) {
			continue
		}
		if !hasOrderFields(ref, document.Fields) {
			continue
		}
		matched = append(matched, document)
	}

	slices.SortStableFunc(matched, func(a, b Document) int {
		for _, order := range ref.Orders {
			aValue, _ := a.Fields.Lookup(order.Field)
			bValue, _ := b.Fields.Lookup(order.Field)
			comparison := compareValues(aValue, bValue)
			if order.Direction == docref.Descending {
				comparison = -comparison
			}
			if comparison != 0 {
				return comparison
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if ref.Limit > 0 && len(matched) > ref.Limit {
		matched = matched[:ref.Limit]
	}
	return matched
}

func hasOrderFields(ref docref.Ref, fields Fields) bool {
	for _, order := range ref.Orders {
		if _, ok := fields.Lookup(order.Field); !ok {
			return false
		}
	}
	return true
}

const unorderedRank = 4

// typeRank orders values of different kinds: null, booleans, numbers,
// strings, then everything else.
func typeRank(value any) int {
	if value == nil {
		return 0
	}
	if _, ok := value.(bool); ok {
		return 1
	}
	if _, ok := docref.AsNumber(value); ok {
		return 2
	}
	if _, ok := value.(string); ok {
		return 3
	}
	return unorderedRank
}

// compareValues totally orders field values: first by kind, then by
// value within a kind. Values of the unordered kind compare equal.
func compareValues(a, b any) int {
	aRank, bRank := typeRank(a), typeRank(b)
	if aRank != bRank {
		return cmp.Compare(aRank, bRank)
	}
	switch aRank {
	case 1:
		aBool, bBool := a.(bool), b.(bool)
		switch {
		case aBool == bBool:
			return 0
		case !aBool:
			return -1
		}
		return 1
	case 2:
		aNumber, _ := docref.AsNumber(a)
		bNumber, _ := docref.AsNumber(b)
		return aNumber.Compare(bNumber)
	case 3:
		return cmp.Compare(a.(string), b.(string))
	}
	return 0
}
