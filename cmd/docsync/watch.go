// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/requestui"
	"github.com/jhsmart/docsync/lib/submission"
	"github.com/jhsmart/docsync/lib/synccache"
)

// watchLine is one JSON line of non-interactive watch output.
type watchLine struct {
	Collection string          `json:"collection"`
	Status     string          `json:"status"`
	Rows       []requestui.Row `json:"rows,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (a *app) watchCommand() *cli.Command {
	var (
		outputJSON bool
		once       bool
	)
	return &cli.Command{
		Name:    "watch",
		Summary: "Live view of contacts and leads, newest first",
		Description: `Follow contacts and leads as they arrive. On a terminal this opens
an interactive viewer where "r" resolves or reopens the selected
record. Otherwise, or with --json, every change is printed as one
JSON line per collection state.`,
		Usage: "docsync watch [COLLECTION...] [--json] [--once]",
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("watch")
			flagSet.BoolVar(&outputJSON, "json", false, "print JSON lines instead of the viewer")
			flagSet.BoolVar(&once, "once", false, "print the current state of each collection and exit (implies --json)")
			return flagSet
		},
		Run: func(args []string) error {
			env, err := a.open()
			if err != nil {
				return err
			}
			collections := args
			if len(collections) == 0 {
				collections = []string{env.config.Collections.Contacts, env.config.Collections.Leads}
			}

			cache := synccache.New(env.client, requestui.DecodeRows, synccache.Options{Logger: env.logger})
			source, err := requestui.NewSource(cache, collections...)
			if err != nil {
				cache.Close()
				return finish(env, err)
			}
			if outputJSON || once || !a.isInteractive() {
				err = a.printEvents(source, len(collections), once)
			} else {
				err = a.runViewer(env, source, collections)
			}
			source.Close()
			cache.Close()
			return finish(env, err)
		},
	}
}

func (a *app) runViewer(env *environment, source *requestui.Source, collections []string) error {
	model := requestui.NewModel(requestui.Config{
		Collections: collections,
		Events:      source.Events(),
		Toggle: func(collection, id string, status submission.Status) error {
			return env.service.SetStatus(collection, id, status)
		},
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(a.ctx))
	if _, err := program.Run(); err != nil && a.ctx.Err() == nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}

// printEvents writes collection states as JSON lines until the context
// ends. With once it stops after every collection has settled and
// fails if any of them errored.
func (a *app) printEvents(source *requestui.Source, collections int, once bool) error {
	encoder := json.NewEncoder(a.stdout)
	settled := make(map[string]error)
	for {
		select {
		case <-a.ctx.Done():
			return nil
		case event := <-source.Events():
			line := watchLine{Collection: event.Collection, Status: event.State.Status.String()}
			switch event.State.Status {
			case synccache.StatusReady:
				line.Rows = event.State.Value.Data
				settled[event.Collection] = nil
			case synccache.StatusError:
				line.Error = event.State.Err.Error()
				settled[event.Collection] = event.State.Err
			}
			if err := encoder.Encode(line); err != nil {
				return err
			}
			if once && len(settled) == collections {
				for collection, err := range settled {
					if err != nil {
						return fmt.Errorf("watching %s: %w", collection, err)
					}
				}
				return nil
			}
		}
	}
}
