// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/submission"
)

func (a *app) submitCommand() *cli.Command {
	return &cli.Command{
		Name:    "submit",
		Summary: "Record a contact or quote request",
		Subcommands: []*cli.Command{
			a.submitContactCommand(),
			a.submitLeadCommand(),
		},
	}
}

func (a *app) submitContactCommand() *cli.Command {
	var (
		form       submission.ContactForm
		outputJSON bool
	)
	return &cli.Command{
		Name:    "contact",
		Summary: "Record a contact request and issue its SR number",
		Description: `Validate a contact form, allocate the next service request number and
store the contact with status Pending. Prints the SR number and the
record id.`,
		Usage: "docsync submit contact --name NAME --email EMAIL --phone PHONE --message TEXT",
		Examples: []cli.Example{{
			Command: `docsync submit contact --name "Asha Rao" --email asha@example.com --phone "+91 98765 43210" --message "Site is down since morning"`,
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("contact")
			flagSet.StringVar(&form.Name, "name", "", "customer name")
			flagSet.StringVar(&form.Email, "email", "", "customer email")
			flagSet.StringVar(&form.Phone, "phone", "", "customer phone")
			flagSet.StringVar(&form.Message, "message", "", "request details")
			flagSet.BoolVar(&outputJSON, "json", false, "print the stored record as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			env, err := a.open()
			if err != nil {
				return err
			}
			contact, err := env.service.SubmitContact(a.ctx, form)
			if err = finish(env, err); err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(a.stdout, contact)
			}
			fmt.Fprintf(a.stdout, "%s\t%s\n", contact.ServiceRequestNumber, contact.ID)
			return nil
		},
	}
}

func (a *app) submitLeadCommand() *cli.Command {
	var (
		form       submission.LeadForm
		outputJSON bool
	)
	return &cli.Command{
		Name:    "lead",
		Summary: "Record a quote request",
		Usage:   "docsync submit lead --name NAME --email EMAIL --service SERVICE [--phone PHONE] [--message TEXT]",
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("lead")
			flagSet.StringVar(&form.Name, "name", "", "customer name")
			flagSet.StringVar(&form.Email, "email", "", "customer email")
			flagSet.StringVar(&form.Phone, "phone", "", "customer phone (optional)")
			flagSet.StringVar(&form.Service, "service", "", "requested service")
			flagSet.StringVar(&form.Message, "message", "", "request details (optional)")
			flagSet.BoolVar(&outputJSON, "json", false, "print the stored record as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			env, err := a.open()
			if err != nil {
				return err
			}
			lead, err := env.service.SubmitLead(a.ctx, form)
			if err = finish(env, err); err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(a.stdout, lead)
			}
			fmt.Fprintln(a.stdout, lead.ID)
			return nil
		},
	}
}
