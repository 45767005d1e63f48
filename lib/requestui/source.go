// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package requestui

import (
	"fmt"
	"sync"

	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/submission"
	"github.com/jhsmart/docsync/lib/synccache"
)

// Row is one contact or lead as the viewer shows it. Contacts carry a
// ServiceRequestNumber, leads a Service.
type Row struct {
	Collection           string            `json:"collection"`
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Email                string            `json:"email"`
	Phone                string            `json:"phone,omitempty"`
	ServiceRequestNumber string            `json:"serviceRequestNumber,omitempty"`
	Service              string            `json:"service,omitempty"`
	SubmissionDate       string            `json:"submissionDate"`
	Status               submission.Status `json:"status"`
}

// Reference is the column identifying the request: the ticket number
// for contacts, the requested service for leads.
func (row Row) Reference() string {
	if row.ServiceRequestNumber != "" {
		return row.ServiceRequestNumber
	}
	return row.Service
}

// DecodeRows is the synccache decoder for a submissions query. The
// document id and collection always come from the snapshot, not from
// the stored fields.
func DecodeRows(snapshot docstore.Snapshot) ([]Row, error) {
	rows := make([]Row, 0, len(snapshot.Documents))
	for _, document := range snapshot.Documents {
		var row Row
		if err := docstore.DecodeFields(document.Fields, &row); err != nil {
			return nil, fmt.Errorf("document %s: %w", document.ID, err)
		}
		row.Collection = snapshot.Ref.Collection
		row.ID = document.ID
		rows = append(rows, row)
	}
	return rows, nil
}

// Query is the ref the viewer watches for a collection: every record,
// newest submission first.
func Query(collection string) docref.Ref {
	return docref.Collection(collection).OrderBy("submissionDate", docref.Descending)
}

// Event is a state change of one watched collection.
type Event struct {
	Collection string
	State      synccache.State[[]Row]
}

// Source follows a set of collections and delivers their states on a
// channel. Listener callbacks block until the event is consumed or the
// Source is closed, so a slow viewer delays only its own entries.
type Source struct {
	events chan Event
	done   chan struct{}

	closeOnce     sync.Once
	subscriptions []*synccache.Subscription[[]Row]
}

// NewSource subscribes to Query(collection) for every collection.
func NewSource(cache *synccache.Cache[[]Row], collections ...string) (*Source, error) {
	source := &Source{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	for _, collection := range collections {
		subscription, err := cache.Subscribe(Query(collection), func(state synccache.State[[]Row]) {
			select {
			case source.events <- Event{Collection: collection, State: state}:
			case <-source.done:
			}
		})
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("watching %s: %w", collection, err)
		}
		source.subscriptions = append(source.subscriptions, subscription)
	}
	return source, nil
}

// Events returns the channel states are delivered on. It is never
// closed; stop reading after Close.
func (source *Source) Events() <-chan Event {
	return source.events
}

// Close releases every subscription. It is idempotent.
func (source *Source) Close() {
	source.closeOnce.Do(func() {
		close(source.done)
		for _, subscription := range source.subscriptions {
			subscription.Unsubscribe()
		}
	})
}
