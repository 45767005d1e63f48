// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package export writes query results as JSON lines, one document per
// line, for backups and hand-off to spreadsheets. Wrap the destination
// in a sealed.NewWriter to encrypt it.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// Record is one exported line.
type Record struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Fields     docstore.Fields `json:"fields"`
}

// Write reads every ref once and writes its documents to w in query
// order. It returns the number of records written.
func Write(ctx context.Context, store docstore.Store, refs []docref.Ref, w io.Writer) (int, error) {
	encoder := json.NewEncoder(w)
	count := 0
	for _, ref := range refs {
		snapshot, err := docstore.Get(ctx, store, ref)
		if err != nil {
			return count, fmt.Errorf("export: reading %s: %w", ref, err)
		}
		for _, document := range snapshot.Documents {
			record := Record{
				Collection: ref.Collection,
				ID:         document.ID,
				UpdatedAt:  document.UpdatedAt,
				Fields:     document.Fields,
			}
			if err := encoder.Encode(record); err != nil {
				return count, fmt.Errorf("export: writing %s/%s: %w", ref.Collection, document.ID, err)
			}
			count++
		}
	}
	return count, nil
}

// Read decodes records written by Write.
func Read(r io.Reader) ([]Record, error) {
	decoder := json.NewDecoder(r)
	var records []Record
	for {
		var record Record
		err := decoder.Decode(&record)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("export: decoding record %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
}
