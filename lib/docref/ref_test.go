// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docref

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jhsmart/docsync/lib/clock"
)

func TestKeyStructuralEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Ref
		equal bool
	}{
		{"same document", Doc("companyInfo", "main"), Doc("companyInfo", "main"), true},
		{"different id", Doc("companyInfo", "main"), Doc("companyInfo", "other"), false},
		{"document vs collection", Doc("contacts", "x"), Collection("contacts"), false},
		{
			"same query built twice",
			Collection("contacts").OrderBy("submissionDate", Descending),
			Collection("contacts").OrderBy("submissionDate", Descending),
			true,
		},
		{
			"direction differs",
			Collection("contacts").OrderBy("submissionDate", Descending),
			Collection("contacts").OrderBy("submissionDate", Ascending),
			false,
		},
		{
			"numeric values compare by value",
			Collection("counters").Where("current_number", Greater, 1),
			Collection("counters").Where("current_number", Greater, uint64(1)),
			true,
		},
		{
			"integral float equals int",
			Collection("counters").Where("current_number", Equal, 7.0),
			Collection("counters").Where("current_number", Equal, int64(7)),
			true,
		},
		{
			"string and number differ",
			Collection("counters").Where("current_number", Equal, "7"),
			Collection("counters").Where("current_number", Equal, 7),
			false,
		},
		{
			"filter order is irrelevant",
			Collection("leads").Where("status", Equal, "Pending").Where("service", Equal, "Roof repair"),
			Collection("leads").Where("service", Equal, "Roof repair").Where("status", Equal, "Pending"),
			true,
		},
		{
			"repeated filter differs from single",
			Collection("leads").Where("status", Equal, "Pending").Where("status", Equal, "Pending"),
			Collection("leads").Where("status", Equal, "Pending"),
			false,
		},
		{
			"ordering sequence matters",
			Collection("leads").OrderBy("status", Ascending).OrderBy("submissionDate", Descending),
			Collection("leads").OrderBy("submissionDate", Descending).OrderBy("status", Ascending),
			false,
		},
		{
			"limit differs",
			Collection("leads").WithLimit(10),
			Collection("leads"),
			false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.a.Key() == test.b.Key(); got != test.equal {
				t.Errorf("keys equal = %v, want %v\n a: %s\n b: %s", got, test.equal, test.a.Key(), test.b.Key())
			}
		})
	}
}

func TestBuildersDoNotAlias(t *testing.T) {
	base := Collection("contacts").Where("status", Equal, "Pending")
	pending := base.OrderBy("submissionDate", Descending)
	resolved := base.Where("status", NotEqual, "Resolved")
	if len(pending.Filters) != 1 {
		t.Errorf("pending filters = %v, want the base filter only", pending.Filters)
	}
	if len(resolved.Filters) != 2 || len(base.Filters) != 1 {
		t.Errorf("Where mutated a shared slice: base=%v resolved=%v", base.Filters, resolved.Filters)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		ref   Ref
		field string
	}{
		{"valid document", Doc("contacts", "01J0000000000000000000000"), ""},
		{"valid query", Collection("contacts").Where("status", In, []any{"Pending"}).OrderBy("submissionDate", Descending).WithLimit(5), ""},
		{"empty collection", Doc("", "x"), "collection"},
		{"slash in id", Doc("contacts", "a/b"), "id"},
		{"dot dot id", Doc("contacts", ".."), "id"},
		{"reserved collection", Collection("__internal__"), "collection"},
		{"zero ref", Ref{}, "collection"},
		{"document with filter", Ref{Collection: "contacts", ID: "x", Limit: 1}, "id"},
		{"bad operator", Collection("contacts").Where("status", Op("~"), "x"), "filters"},
		{"in needs list", Collection("contacts").Where("status", In, "Pending"), "filters"},
		{"bad direction", Collection("contacts").OrderBy("submissionDate", Direction("up")), "order_by"},
		{"negative limit", Collection("contacts").WithLimit(-1), "limit"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.ref.Validate()
			if test.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if _, ok := validation.Fields[test.field]; !ok {
				t.Errorf("problems %v do not include %s", validation.Fields, test.field)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	var problems ValidationError
	if problems.Err() != nil {
		t.Fatal("empty ValidationError.Err() is not nil")
	}
	problems.Add("phone", "too short")
	problems.Add("email", "invalid")
	problems.Add("email", "ignored second message")
	got := problems.Error()
	if got != "validation failed: email: invalid; phone: too short" {
		t.Errorf("Error() = %q", got)
	}
}

func TestString(t *testing.T) {
	ref := Collection("contacts").Where("status", Equal, "Pending").OrderBy("submissionDate", Descending).WithLimit(3)
	want := "contacts where status == Pending order by submissionDate desc limit 3"
	if got := ref.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Doc("companyInfo", "main").String(); got != "companyInfo/main" {
		t.Errorf("String() = %q", got)
	}
}

func TestNumberCompare(t *testing.T) {
	one, _ := AsNumber(uint64(1))
	half, _ := AsNumber(0.5)
	two, _ := AsNumber(int8(2))
	if one.Compare(two) != -1 || two.Compare(one) != 1 || one.Compare(one) != 0 {
		t.Error("integer comparison wrong")
	}
	if half.Compare(one) != -1 || one.Compare(half) != 1 {
		t.Error("mixed comparison wrong")
	}
	if _, ok := AsNumber("1"); ok {
		t.Error("AsNumber accepted a string")
	}
}

func TestIDGeneratorMonotonic(t *testing.T) {
	generator := NewIDGenerator(clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	previous := ""
	for range 50 {
		id, err := generator.New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("id %q has length %d, want 26", id, len(id))
		}
		if err := Doc("contacts", id).Validate(); err != nil {
			t.Fatalf("generated id %q is not a valid document id: %v", id, err)
		}
		if strings.Compare(id, previous) <= 0 {
			t.Fatalf("id %q not greater than previous %q", id, previous)
		}
		previous = id
	}
}
