// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/submission"
)

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Mark a contact or lead Pending or Resolved",
		Usage:   "docsync status COLLECTION ID Pending|Resolved",
		Examples: []cli.Example{{
			Description: "Close a support request",
			Command:     "docsync status contacts 01JX5W3Q8ZK4V6N2M0T7R9B1CD Resolved",
		}},
		Flags: func() *pflag.FlagSet { return a.newFlagSet("status") },
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("expected COLLECTION ID STATUS, got %d arguments", len(args))
			}
			env, err := a.open()
			if err != nil {
				return err
			}
			err = env.service.SetStatus(args[0], args[1], submission.Status(args[2]))
			return finish(env, err)
		},
	}
}

func (a *app) deleteCommand() *cli.Command {
	return &cli.Command{
		Name:    "delete",
		Summary: "Remove a contact or lead",
		Usage:   "docsync delete COLLECTION ID",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("delete") },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected COLLECTION ID, got %d arguments", len(args))
			}
			env, err := a.open()
			if err != nil {
				return err
			}
			return finish(env, env.service.DeleteRecord(args[0], args[1]))
		},
	}
}

// counterStatus is the --json form of the counter command.
type counterStatus struct {
	Counter string `json:"counter"`
	Current int64  `json:"current"`
	Next    string `json:"next"`
}

func (a *app) counterCommand() *cli.Command {
	var outputJSON bool
	return &cli.Command{
		Name:    "counter",
		Summary: "Show the last issued service request number",
		Usage:   "docsync counter [NAME]",
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("counter")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected at most one counter name, got %d", len(args))
			}
			env, err := a.open()
			if err != nil {
				return err
			}
			name := env.config.Sequence.Counter
			if len(args) == 1 {
				name = args[0]
			}
			current, err := env.allocator.Current(a.ctx, name)
			if err = finish(env, err); err != nil {
				return err
			}
			status := counterStatus{Counter: name, Current: current, Next: env.allocator.Format(current + 1)}
			if outputJSON {
				return cli.WriteJSON(a.stdout, status)
			}
			fmt.Fprintf(a.stdout, "%s: %d (next %s)\n", status.Counter, status.Current, status.Next)
			return nil
		},
	}
}
