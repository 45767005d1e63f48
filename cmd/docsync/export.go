// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/export"
	"github.com/jhsmart/docsync/lib/requestui"
	"github.com/jhsmart/docsync/lib/sealed"
)

func (a *app) exportCommand() *cli.Command {
	var (
		collections []string
		recipients  []string
		outputPath  string
		armored     bool
		plaintext   bool
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write an encrypted export of collections",
		Description: `Export documents as JSON lines, encrypted to one or more age
recipients. Contacts and leads are exported newest first. Exporting
without encryption requires --plaintext.`,
		Usage: "docsync export --recipient AGE1... [--collection NAME...] [--output FILE] [--armor]",
		Examples: []cli.Example{
			{
				Description: "Mail-friendly export of all requests",
				Command:     "docsync export --recipient age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p --armor -o requests.age",
			},
			{Command: "docsync export read --identity key.txt requests.age"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("export")
			flagSet.StringSliceVar(&collections, "collection", []string{"contacts", "leads"}, "collection to export (repeatable)")
			flagSet.StringSliceVar(&recipients, "recipient", nil, "age public key to encrypt to (repeatable)")
			flagSet.StringVarP(&outputPath, "output", "o", "-", "output file, - for stdout")
			flagSet.BoolVar(&armored, "armor", false, "ASCII-armor the encrypted output")
			flagSet.BoolVar(&plaintext, "plaintext", false, "write unencrypted JSON lines")
			return flagSet
		},
		Subcommands: []*cli.Command{a.exportReadCommand()},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if len(recipients) == 0 && !plaintext {
				return errors.New("exports contain customer data: pass --recipient, or --plaintext to write it unencrypted")
			}
			if len(recipients) > 0 && plaintext {
				return errors.New("--recipient and --plaintext are mutually exclusive")
			}

			env, err := a.open()
			if err != nil {
				return err
			}
			refs := make([]docref.Ref, len(collections))
			for index, collection := range collections {
				refs[index] = docref.Collection(collection)
				if collection == env.config.Collections.Contacts || collection == env.config.Collections.Leads {
					refs[index] = requestui.Query(collection)
				}
			}

			count, err := a.writeExport(env, refs, outputPath, recipients, armored)
			if err = finish(env, err); err != nil {
				return err
			}
			env.logger.Info("export written", "records", count, "output", outputPath, "encrypted", len(recipients) > 0)
			return nil
		},
	}
}

func (a *app) writeExport(env *environment, refs []docref.Ref, outputPath string, recipients []string, armored bool) (int, error) {
	var output io.Writer = a.stdout
	if outputPath != "-" {
		file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return 0, err
		}
		defer file.Close()
		output = file
	}

	if len(recipients) == 0 {
		return export.Write(a.ctx, env.client, refs, output)
	}
	encrypted, err := sealed.NewWriter(output, recipients, armored)
	if err != nil {
		return 0, err
	}
	count, err := export.Write(a.ctx, env.client, refs, encrypted)
	if err != nil {
		encrypted.Close()
		return count, err
	}
	if err := encrypted.Close(); err != nil {
		return count, fmt.Errorf("finishing encrypted export: %w", err)
	}
	return count, nil
}

func (a *app) exportReadCommand() *cli.Command {
	var identityPath string
	return &cli.Command{
		Name:    "read",
		Summary: "Decrypt an export and print its records as JSON lines",
		Usage:   "docsync export read --identity KEYFILE [FILE]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("read", pflag.ContinueOnError)
			flagSet.StringVarP(&identityPath, "identity", "i", "", "age identity file; omit for a plaintext export")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected at most one file, got %d arguments", len(args))
			}
			input := a.stdin
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
			}

			if identityPath != "" {
				identities, err := sealed.ReadIdentityFile(identityPath)
				if err != nil {
					return err
				}
				input, err = decrypt(input, identities)
				if err != nil {
					return err
				}
			}

			records, err := export.Read(input)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(a.stdout)
			for _, record := range records {
				if err := encoder.Encode(record); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func decrypt(input io.Reader, identities []age.Identity) (io.Reader, error) {
	reader, err := sealed.NewReader(input, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting export: %w", err)
	}
	return reader, nil
}

func (a *app) keygenCommand() *cli.Command {
	var outputPath string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Create an age keypair for encrypted exports",
		Description: `Print a new age identity in key file format. The public key
(age1...) is shown in a comment and goes to "docsync export
--recipient"; the file itself goes to "docsync export read --identity".`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&outputPath, "output", "o", "-", "key file to create, - for stdout")
			return flagSet
		},
		Run: func(args []string) error {
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			contents := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
				a.clock.Now().UTC().Format("2006-01-02T15:04:05Z"), keypair.PublicKey, keypair.PrivateKey)
			if outputPath == "-" {
				_, err := io.WriteString(a.stdout, contents)
				return err
			}
			file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(file, contents); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Public key: %s\n", keypair.PublicKey)
			return nil
		},
	}
}
