// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed loads site content from JSONC files into the store.
//
// A seed file maps collection names to documents keyed by id:
//
//	{
//	  // Shown in the site header and footer.
//	  "companyInfo": {
//	    "main": {"name": "Acme Web Studio", "phone": "+91 98765 43210"},
//	  },
//	  "services": {
//	    "websites": {"title": "Websites", "icon": "Monitor"},
//	  },
//	}
//
// Comments and trailing commas are allowed. Documents are merged into
// what is already stored, so re-running a seed only updates the fields
// it names.
package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/tidwall/jsonc"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/mutation"
)

// Content is parsed seed data: collection -> id -> fields.
type Content map[string]map[string]docstore.Fields

// Writer enqueues merge writes. *mutation.Queue implements it.
type Writer interface {
	EnqueueWrite(target docref.Ref, payload docstore.Fields, options ...mutation.Option) error
}

// Parse strips comments and trailing commas from data and decodes the
// result. Whole numbers decode as int64, other numbers as float64.
func Parse(data []byte) (Content, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	var raw map[string]map[string]map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing seed content: %w", err)
	}
	content := make(Content, len(raw))
	for collection, documents := range raw {
		content[collection] = make(map[string]docstore.Fields, len(documents))
		for id, fields := range documents {
			normalized, err := normalizeNumbers(fields)
			if err != nil {
				return nil, fmt.Errorf("parsing seed content: %s/%s: %w", collection, id, err)
			}
			content[collection][id] = normalized.(map[string]any)
		}
	}
	return content, nil
}

// ReadFile reads and parses a seed file.
func ReadFile(path string) (Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return content, nil
}

func normalizeNumbers(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		if integer, err := v.Int64(); err == nil {
			return integer, nil
		}
		return v.Float64()
	case map[string]any:
		for key, element := range v {
			normalized, err := normalizeNumbers(element)
			if err != nil {
				return nil, err
			}
			v[key] = normalized
		}
		return v, nil
	case []any:
		for i, element := range v {
			normalized, err := normalizeNumbers(element)
			if err != nil {
				return nil, err
			}
			v[i] = normalized
		}
		return v, nil
	}
	return value, nil
}

// Validate checks every collection and id name. Documents may not be
// empty, and protected collections may not be seeded.
func (c Content) Validate(protected ...string) error {
	var problems docref.ValidationError
	for _, collection := range slices.Sorted(maps.Keys(c)) {
		if slices.Contains(protected, collection) {
			problems.Add(collection, "collection cannot be seeded")
			continue
		}
		for _, id := range slices.Sorted(maps.Keys(c[collection])) {
			path := collection + "/" + id
			if err := docref.Doc(collection, id).Validate(); err != nil {
				problems.Add(path, err.Error())
				continue
			}
			if len(c[collection][id]) == 0 {
				problems.Add(path, "document has no fields")
			}
		}
	}
	return problems.Err()
}

// Refs lists every document in collection then id order.
func (c Content) Refs() []docref.Ref {
	var refs []docref.Ref
	for _, collection := range slices.Sorted(maps.Keys(c)) {
		for _, id := range slices.Sorted(maps.Keys(c[collection])) {
			refs = append(refs, docref.Doc(collection, id))
		}
	}
	return refs
}

// Apply enqueues a merge write for every document in Refs order and
// returns how many were enqueued. It stops at the first enqueue error.
func (c Content) Apply(writer Writer) (int, error) {
	count := 0
	for _, ref := range c.Refs() {
		if err := writer.EnqueueWrite(ref, c[ref.Collection][ref.ID], mutation.WithMerge()); err != nil {
			return count, fmt.Errorf("seeding %s: %w", ref, err)
		}
		count++
	}
	return count, nil
}
