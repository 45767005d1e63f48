// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind the docsync CLI.
//
// A [Command] has a name, an optional pflag.FlagSet factory, nested
// subcommands and a Run function. [Command.Execute] parses flags,
// routes to subcommands and prints help. Unknown commands and flags
// get a "did you mean" suggestion when one is within edit distance 3.
//
// [NewCommandLogger] picks a text or JSON slog handler depending on
// whether stderr is a terminal, and [WriteJSON] is the shared --json
// output path.
package cli
