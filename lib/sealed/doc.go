// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts exports with age.
//
// Exports hold customer contact details, so they never leave the
// machine in plaintext. [NewWriter] streams plaintext into an age file
// addressed to one or more x25519 recipients (age1... public keys),
// optionally ASCII-armored for pasting into mail. [NewReader] reverses
// it given an identity (AGE-SECRET-KEY-1...), detecting armor on its
// own.
//
//   - [GenerateKeypair] creates a recipient/identity pair
//   - [ParseRecipients] / [ParseIdentities] validate keys
//   - [ReadIdentityFile] loads identities in age's key file format
package sealed
