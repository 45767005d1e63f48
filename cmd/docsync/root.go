// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/version"
)

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "docsync",
		Summary: "Operate the site's document store",
		Description: `Docsync submits, inspects and maintains the records behind the
marketing site: contact requests with their SR numbers, quote
requests, and the site content collections. It talks to a running
docsync-store over its socket.`,
		Output: a.stderr,
		Subcommands: []*cli.Command{
			a.submitCommand(),
			a.statusCommand(),
			a.deleteCommand(),
			a.counterCommand(),
			a.watchCommand(),
			a.seedCommand(),
			a.exportCommand(),
			a.keygenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(a.stdout, "docsync %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
