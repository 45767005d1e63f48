// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/cmd/docsync/cli"
	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/config"
	"github.com/jhsmart/docsync/lib/mutation"
	"github.com/jhsmart/docsync/lib/sequence"
	"github.com/jhsmart/docsync/lib/storesocket"
	"github.com/jhsmart/docsync/lib/submission"
)

// app carries process-wide state into command closures. Tests build
// one with buffers and a discarding logger.
type app struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock

	// logger overrides cli.NewCommandLogger when set.
	logger *slog.Logger

	// interactive reports whether the viewer may take over the
	// terminal. Nil means "stdout is a terminal".
	interactive func() bool

	configPath string
	verbose    bool
}

// newFlagSet returns a flag set carrying the flags every
// store-connected command accepts.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&a.configPath, "config", a.configPath, "path to docsync.yaml (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolVarP(&a.verbose, "verbose", "v", a.verbose, "log debug messages")
	return flagSet
}

func (a *app) commandLogger() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return cli.NewCommandLogger(level)
}

func (a *app) isInteractive() bool {
	if a.interactive != nil {
		return a.interactive()
	}
	file, ok := a.stdout.(*os.File)
	return ok && cli.IsTerminal(file)
}

func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// environment is the store connection and the services built on it.
type environment struct {
	config    *config.Config
	logger    *slog.Logger
	client    *storesocket.Client
	queue     *mutation.Queue
	allocator *sequence.Allocator
	service   *submission.Service
	drainWait time.Duration

	mu       sync.Mutex
	failures []error
}

func (a *app) open() (*environment, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := a.commandLogger()

	client, err := storesocket.NewClient(storesocket.ClientConfig{
		SocketPath:             cfg.Socket.Path,
		Clock:                  a.clock,
		Logger:                 logger,
		DialTimeout:            config.Duration(cfg.Socket.DialTimeout),
		HeartbeatInterval:      config.Duration(cfg.Socket.HeartbeatInterval),
		ReconnectDelay:         config.Duration(cfg.Socket.ReconnectDelay),
		MaxTransactionAttempts: cfg.Store.MaxTransactionAttempts,
	})
	if err != nil {
		return nil, err
	}

	env := &environment{
		config:    cfg,
		logger:    logger,
		client:    client,
		drainWait: drainBudget(cfg.Mutations),
	}
	env.queue, err = mutation.New(mutation.Config{
		Store:        client,
		Clock:        a.clock,
		Logger:       logger,
		OnError:      env.recordFailure,
		MaxAttempts:  cfg.Mutations.MaxAttempts,
		RetryDelay:   config.Duration(cfg.Mutations.RetryDelay),
		WriteTimeout: config.Duration(cfg.Mutations.WriteTimeout),
		ErrorBuffer:  cfg.Mutations.ErrorBuffer,
	})
	if err != nil {
		return nil, err
	}
	env.allocator, err = sequence.New(sequence.Config{
		Store:      client,
		Logger:     logger,
		Collection: cfg.Sequence.Collection,
		Field:      cfg.Sequence.Field,
		Prefix:     cfg.Sequence.Prefix,
		Width:      cfg.Sequence.Width,
	})
	if err != nil {
		return nil, err
	}
	env.service, err = submission.New(submission.Config{
		Writer:    env.queue,
		Allocator: env.allocator,
		Clock:     a.clock,
		Logger:    logger,
		Counter:   cfg.Sequence.Counter,
		Contacts:  cfg.Collections.Contacts,
		Leads:     cfg.Collections.Leads,
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (e *environment) recordFailure(failure mutation.Failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, failure)
}

// drainBudget bounds how long close waits for the queue: one write
// timeout per attempt plus the backoff before each retry, where retry
// n waits n*RetryDelay.
func drainBudget(mutations config.MutationsConfig) time.Duration {
	attempts := time.Duration(max(mutations.MaxAttempts, 1))
	backoff := attempts * (attempts - 1) / 2
	return attempts*config.Duration(mutations.WriteTimeout) + backoff*config.Duration(mutations.RetryDelay)
}

// close drains the mutation queue and returns every write that could
// not be stored.
func (e *environment) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.drainWait)
	defer cancel()
	closeErr := e.queue.Close(ctx)

	e.mu.Lock()
	failures := append([]error(nil), e.failures...)
	e.mu.Unlock()
	if closeErr != nil {
		failures = append(failures, fmt.Errorf("waiting for pending writes: %w", closeErr))
	}
	return errors.Join(failures...)
}

// finish closes env and merges its error with err, so a command that
// failed after enqueueing writes still reports both.
func finish(env *environment, err error) error {
	return errors.Join(err, env.close())
}
