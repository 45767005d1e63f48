// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package docref identifies documents and queries in the document
// store.
//
// A [Ref] names either one document (collection plus id) or a query
// over a collection (filters, ordering, limit). Two refs that are
// structurally equal produce the same [Ref.Key], which is what the
// subscription cache deduplicates on:
//
//	docref.Doc("companyInfo", "main")
//	docref.Collection("contacts").OrderBy("submissionDate", docref.Descending)
//
// Refs are values. Where, OrderBy and Limit return modified copies.
//
// [ValidationError] is the field-level error type used throughout
// docsync for rejected input, from malformed refs to submission forms.
package docref
