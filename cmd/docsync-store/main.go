// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/config"
	"github.com/jhsmart/docsync/lib/docstore/sqlitestore"
	"github.com/jhsmart/docsync/lib/storesocket"
	"github.com/jhsmart/docsync/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		showVersion bool
	)
	flags := pflag.NewFlagSet("docsync-store", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to docsync.yaml (default: $"+config.EnvironmentVariable+")")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("docsync-store %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, clock.Real(), logger)
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
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

// serve opens the database described by cfg and serves it until ctx
// is cancelled.
func serve(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) error {
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	compression, err := sqlitestore.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return err
	}

	store, err := sqlitestore.Open(sqlitestore.Config{
		Path:                   cfg.Store.Path,
		PoolSize:               cfg.Store.PoolSize,
		Compression:            compression,
		CompressionThreshold:   cfg.Store.CompressionThreshold,
		MaxTransactionAttempts: cfg.Store.MaxTransactionAttempts,
		DeniedCollections:      cfg.Store.DeniedCollections,
		Clock:                  clk,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	server, err := storesocket.NewServer(storesocket.ServerConfig{
		SocketPath:        cfg.Socket.Path,
		Store:             store,
		Clock:             clk,
		Logger:            logger,
		HeartbeatInterval: config.Duration(cfg.Socket.HeartbeatInterval),
	})
	if err != nil {
		return err
	}

	logger.Info("docsync-store running",
		"environment", cfg.Environment,
		"database", cfg.Store.Path,
		"socket", cfg.Socket.Path,
		"compression", compression.String(),
		"version", version.Info(),
	)
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
