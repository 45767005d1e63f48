// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package docref

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jhsmart/docsync/lib/clock"
)

// IDGenerator issues document ids for locally created documents. Ids
// are ULIDs: 26 characters, sortable by creation time, and strictly
// increasing within one generator even when the clock stands still.
type IDGenerator struct {
	mu      sync.Mutex
	clock   clock.Clock
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns a generator stamping ids with c's time.
func NewIDGenerator(c clock.Clock) *IDGenerator {
	return &IDGenerator{
		clock:   c,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New returns a fresh document id.
func (g *IDGenerator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(g.clock.Now()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("docref: generating id: %w", err)
	}
	return id.String(), nil
}
