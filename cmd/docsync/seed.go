// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/seed"
)

func (a *app) seedCommand() *cli.Command {
	var dryRun bool
	return &cli.Command{
		Name:    "seed",
		Summary: "Load site content from a JSONC file",
		Description: `Merge the documents of a seed file into the store. The file maps
collection names to documents keyed by id and may contain comments
and trailing commas. Fields not named in the file are left alone.
The counter, contact and lead collections cannot be seeded.`,
		Usage: "docsync seed FILE [--dry-run]",
		Examples: []cli.Example{
			{Description: "Check a content file without writing", Command: "docsync seed site.jsonc --dry-run"},
			{Command: "docsync seed site.jsonc"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("seed")
			flagSet.BoolVar(&dryRun, "dry-run", false, "validate and list documents without writing")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one seed file, got %d arguments", len(args))
			}
			content, err := seed.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := content.Validate(cfg.Sequence.Collection, cfg.Collections.Contacts, cfg.Collections.Leads); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dryRun {
				for _, ref := range content.Refs() {
					fmt.Fprintln(a.stdout, ref.String())
				}
				return nil
			}

			env, err := a.open()
			if err != nil {
				return err
			}
			count, err := content.Apply(env.queue)
			if err = finish(env, err); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "seeded %d documents\n", count)
			return nil
		},
	}
}
