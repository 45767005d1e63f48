// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every docsync
// package.
//
// CBOR is used for the store socket protocol and for document bodies
// at rest. JSON appears only at the edges: CLI --json output and JSONC
// seed files. Types that cross both boundaries carry `json` struct
// tags, which fxamacker/cbor reads as a fallback when no `cbor` tag is
// present. Types that only ever travel as CBOR use `cbor` tags.
//
// The encoder is deterministic (sorted map keys, shortest integers),
// so the same logical document always produces the same bytes and the
// same digest.
package codec
