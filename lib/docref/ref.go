// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docref

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	Equal          Op = "=="
	NotEqual       Op = "!="
	Less           Op = "<"
	LessOrEqual    Op = "<="
	Greater        Op = ">"
	GreaterOrEqual Op = ">="
	In             Op = "in"
)

var validOps = []Op{Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual, In}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Filter restricts a query to documents whose Field compares to Value.
// Field may be a dotted path into nested maps.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Order sorts query results by Field.
type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Ref identifies a document (ID set) or a query (ID empty).
type Ref struct {
	Collection string   `json:"collection"`
	ID         string   `json:"id,omitempty"`
	Filters    []Filter `json:"filters,omitempty"`
	Orders     []Order  `json:"order_by,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// Doc returns a ref to one document.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Collection returns a query ref matching every document in
// collection.
func Collection(collection string) Ref {
	return Ref{Collection: collection}
}

// IsDocument reports whether r names a single document.
func (r Ref) IsDocument() bool { return r.ID != "" }

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r.Collection == "" && r.ID == "" && len(r.Filters) == 0 && len(r.Orders) == 0 && r.Limit == 0
}

// Where returns a copy of r with an additional filter.
func (r Ref) Where(field string, op Op, value any) Ref {
	r.Filters = append(slices.Clip(r.Filters), Filter{Field: field, Op: op, Value: value})
	return r
}

// OrderBy returns a copy of r with an additional sort key.
func (r Ref) OrderBy(field string, direction Direction) Ref {
	r.Orders = append(slices.Clip(r.Orders), Order{Field: field, Direction: direction})
	return r
}

// WithLimit returns a copy of r returning at most n documents. Zero
// means unlimited.
func (r Ref) WithLimit(n int) Ref {
	r.Limit = n
	return r
}

// Key returns the structural identity of r. Refs with equal keys
// address the same document or the same query. Numeric filter values
// compare by value, so int 1, uint64 1 and float64 1.0 share a key.
// Filters are a conjunction and their order does not matter; ordering
// clauses keep theirs.
func (r Ref) Key() string {
	var builder strings.Builder
	if r.IsDocument() {
		builder.WriteString("doc:")
		builder.WriteString(strconv.Quote(r.Collection))
		builder.WriteByte('/')
		builder.WriteString(strconv.Quote(r.ID))
		return builder.String()
	}
	builder.WriteString("query:")
	builder.WriteString(strconv.Quote(r.Collection))
	clauses := make([]string, len(r.Filters))
	for i, filter := range r.Filters {
		clauses[i] = "|where " + strconv.Quote(filter.Field) + string(filter.Op) + canonicalValue(filter.Value)
	}
	slices.Sort(clauses)
	for _, clause := range clauses {
		builder.WriteString(clause)
	}
	for _, order := range r.Orders {
		builder.WriteString("|order ")
		builder.WriteString(strconv.Quote(order.Field))
		builder.WriteString(string(order.Direction))
	}
	if r.Limit > 0 {
		builder.WriteString("|limit ")
		builder.WriteString(strconv.Itoa(r.Limit))
	}
	return builder.String()
}

// String renders r for logs and CLI output.
func (r Ref) String() string {
	if r.IsDocument() {
		return r.Collection + "/" + r.ID
	}
	var builder strings.Builder
	builder.WriteString(r.Collection)
	for i, filter := range r.Filters {
		if i == 0 {
			builder.WriteString(" where ")
		} else {
			builder.WriteString(" and ")
		}
		fmt.Fprintf(&builder, "%s %s %v", filter.Field, filter.Op, filter.Value)
	}
	for i, order := range r.Orders {
		if i == 0 {
			builder.WriteString(" order by ")
		} else {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s %s", order.Field, order.Direction)
	}
	if r.Limit > 0 {
		fmt.Fprintf(&builder, " limit %d", r.Limit)
	}
	return builder.String()
}

func canonicalValue(value any) string {
	if number, ok := AsNumber(value); ok {
		if number.IsInt {
			return "n" + strconv.FormatInt(number.Int, 10)
		}
		return "n" + strconv.FormatFloat(number.Float, 'g', -1, 64)
	}
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "s" + strconv.Quote(v)
	case bool:
		return "b" + strconv.FormatBool(v)
	case []string:
		parts := make([]string, len(v))
		for i, element := range v {
			parts[i] = canonicalValue(element)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []any:
		parts := make([]string, len(v))
		for i, element := range v {
			parts[i] = canonicalValue(element)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("%T%v", value, value)
}

// Number is a numeric value normalized across the integer and float
// types that Go literals and CBOR decoding produce.
type Number struct {
	Int   int64
	Float float64
	IsInt bool
}

// AsNumber converts any Go numeric type to a Number. Floats holding an
// integral value within int64 range normalize to integers.
func AsNumber(value any) (Number, bool) {
	switch v := value.(type) {
	case int:
		return Number{Int: int64(v), IsInt: true}, true
	case int8:
		return Number{Int: int64(v), IsInt: true}, true
	case int16:
		return Number{Int: int64(v), IsInt: true}, true
	case int32:
		return Number{Int: int64(v), IsInt: true}, true
	case int64:
		return Number{Int: v, IsInt: true}, true
	case uint:
		return fromUnsigned(uint64(v)), true
	case uint8:
		return Number{Int: int64(v), IsInt: true}, true
	case uint16:
		return Number{Int: int64(v), IsInt: true}, true
	case uint32:
		return Number{Int: int64(v), IsInt: true}, true
	case uint64:
		return fromUnsigned(v), true
	case float32:
		return fromFloat(float64(v)), true
	case float64:
		return fromFloat(v), true
	}
	return Number{}, false
}

func fromUnsigned(v uint64) Number {
	if v > math.MaxInt64 {
		return Number{Float: float64(v)}
	}
	return Number{Int: int64(v), IsInt: true}
}

func fromFloat(v float64) Number {
	if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
		return Number{Int: int64(v), IsInt: true}
	}
	return Number{Float: v}
}

// Compare orders two numbers: -1, 0 or +1.
func (n Number) Compare(other Number) int {
	if n.IsInt && other.IsInt {
		switch {
		case n.Int < other.Int:
			return -1
		case n.Int > other.Int:
			return 1
		}
		return 0
	}
	a, b := n.float(), other.float()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (n Number) float() float64 {
	if n.IsInt {
		return float64(n.Int)
	}
	return n.Float
}
