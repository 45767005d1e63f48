// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads docsync configuration.
//
// Configuration comes from a single YAML file named by the
// DOCSYNC_CONFIG environment variable or the --config flag. There is
// no discovery and no fallback file. The file may carry development,
// staging and production sections whose non-empty values override the
// base values when the environment matches. ${VAR} and ${VAR:-default}
// are expanded in path values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "DOCSYNC_CONFIG"

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the configuration shared by docsync-store and docsync.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths       PathsConfig       `yaml:"paths"`
	Store       StoreConfig       `yaml:"store"`
	Socket      SocketConfig      `yaml:"socket"`
	Mutations   MutationsConfig   `yaml:"mutations"`
	Sequence    SequenceConfig    `yaml:"sequence"`
	Collections CollectionsConfig `yaml:"collections"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment sections.
type Overrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Socket    *SocketConfig    `yaml:"socket,omitempty"`
	Mutations *MutationsConfig `yaml:"mutations,omitempty"`
}

// PathsConfig locates docsync's on-disk state.
type PathsConfig struct {
	// Root is the base directory. Other paths may reference it as
	// ${DOCSYNC_ROOT}.
	Root string `yaml:"root"`
}

// StoreConfig configures the SQLite document store.
type StoreConfig struct {
	// Path is the database file. Default: ${DOCSYNC_ROOT}/docsync.db
	Path string `yaml:"path"`

	PoolSize int `yaml:"pool_size"`

	// Compression is none, lz4 or zstd.
	Compression string `yaml:"compression"`

	// CompressionThreshold is the body size in bytes below which
	// documents are stored uncompressed.
	CompressionThreshold int `yaml:"compression_threshold"`

	// MaxTransactionAttempts bounds retries of a contended transaction.
	MaxTransactionAttempts int `yaml:"max_transaction_attempts"`

	// DeniedCollections are collections whose reads and subscriptions
	// fail with a permission error.
	DeniedCollections []string `yaml:"denied_collections"`
}

// SocketConfig configures the store socket.
type SocketConfig struct {
	Path              string `yaml:"path"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	DialTimeout       string `yaml:"dial_timeout"`
}

// MutationsConfig configures the background write queue.
type MutationsConfig struct {
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryDelay   string `yaml:"retry_delay"`
	WriteTimeout string `yaml:"write_timeout"`
	ErrorBuffer  int    `yaml:"error_buffer"`
}

// SequenceConfig configures service request number allocation.
type SequenceConfig struct {
	Collection string `yaml:"collection"`
	Counter    string `yaml:"counter"`
	Field      string `yaml:"field"`
	Prefix     string `yaml:"prefix"`
	Width      int    `yaml:"width"`
}

// CollectionsConfig names the collections submissions are written to.
type CollectionsConfig struct {
	Contacts string `yaml:"contacts"`
	Leads    string `yaml:"leads"`
}

// Default returns the base values every loaded file is merged onto.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: filepath.Join(homeDirectory, ".local", "share", "docsync"),
		},
		Store: StoreConfig{
			Path:                   "${DOCSYNC_ROOT}/docsync.db",
			PoolSize:               4,
			Compression:            "zstd",
			CompressionThreshold:   512,
			MaxTransactionAttempts: 25,
		},
		Socket: SocketConfig{
			Path:              "${DOCSYNC_ROOT}/store.sock",
			HeartbeatInterval: "30s",
			ReconnectDelay:    "1s",
			DialTimeout:       "5s",
		},
		Mutations: MutationsConfig{
			MaxAttempts:  3,
			RetryDelay:   "500ms",
			WriteTimeout: "30s",
			ErrorBuffer:  64,
		},
		Sequence: SequenceConfig{
			Collection: "counters",
			Counter:    "contactCounter",
			Field:      "current_number",
			Prefix:     "SR-",
			Width:      5,
		},
		Collections: CollectionsConfig{
			Contacts: "contacts",
			Leads:    "leads",
		},
	}
}

// Load reads the file named by DOCSYNC_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your docsync.yaml or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads path over Default, applies the matching environment
// section and expands variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Mutations: &MutationsConfig{MaxAttempts: 5}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		override(&c.Paths.Root, overrides.Paths.Root)
	}
	if store := overrides.Store; store != nil {
		override(&c.Store.Path, store.Path)
		override(&c.Store.PoolSize, store.PoolSize)
		override(&c.Store.Compression, store.Compression)
		override(&c.Store.CompressionThreshold, store.CompressionThreshold)
		override(&c.Store.MaxTransactionAttempts, store.MaxTransactionAttempts)
		if store.DeniedCollections != nil {
			c.Store.DeniedCollections = store.DeniedCollections
		}
	}
	if socket := overrides.Socket; socket != nil {
		override(&c.Socket.Path, socket.Path)
		override(&c.Socket.HeartbeatInterval, socket.HeartbeatInterval)
		override(&c.Socket.ReconnectDelay, socket.ReconnectDelay)
		override(&c.Socket.DialTimeout, socket.DialTimeout)
	}
	if mutations := overrides.Mutations; mutations != nil {
		override(&c.Mutations.MaxAttempts, mutations.MaxAttempts)
		override(&c.Mutations.RetryDelay, mutations.RetryDelay)
		override(&c.Mutations.WriteTimeout, mutations.WriteTimeout)
		override(&c.Mutations.ErrorBuffer, mutations.ErrorBuffer)
	}
}

// override replaces *target with value unless value is the zero value.
func override[V comparable](target *V, value V) {
	var zero V
	if value != zero {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DOCSYNC_ROOT"] = c.Paths.Root

	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Socket.Path = expandVars(c.Socket.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if !slices.Contains([]string{"none", "lz4", "zstd"}, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be none, lz4 or zstd, got %q", c.Store.Compression))
	}
	if c.Store.MaxTransactionAttempts < 1 {
		errs = append(errs, errors.New("store.max_transaction_attempts must be at least 1"))
	}
	if c.Socket.Path == "" {
		errs = append(errs, errors.New("socket.path is required"))
	}
	for name, value := range map[string]string{
		"socket.heartbeat_interval": c.Socket.HeartbeatInterval,
		"socket.reconnect_delay":    c.Socket.ReconnectDelay,
		"socket.dial_timeout":       c.Socket.DialTimeout,
		"mutations.retry_delay":     c.Mutations.RetryDelay,
		"mutations.write_timeout":   c.Mutations.WriteTimeout,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration, got %q", name, value))
		}
	}
	if c.Mutations.MaxAttempts < 1 {
		errs = append(errs, errors.New("mutations.max_attempts must be at least 1"))
	}
	if c.Sequence.Collection == "" || c.Sequence.Counter == "" || c.Sequence.Field == "" {
		errs = append(errs, errors.New("sequence.collection, sequence.counter and sequence.field are required"))
	}
	if c.Sequence.Width < 1 {
		errs = append(errs, errors.New("sequence.width must be at least 1"))
	}
	if c.Collections.Contacts == "" || c.Collections.Leads == "" {
		errs = append(errs, errors.New("collections.contacts and collections.leads are required"))
	}

	return errors.Join(errs...)
}

// Duration parses a duration string that Validate has already
// checked. Invalid values yield zero, which callers treat as "use the
// component default".
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// EnsurePaths creates the directories holding the database and socket.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, filepath.Dir(c.Store.Path), filepath.Dir(c.Socket.Path)} {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
