// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for the directory service and the
// participant binary.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths       PathsConfig       `yaml:"paths"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Relay       RelayConfig       `yaml:"relay"`
	Identity    IdentityConfig    `yaml:"identity"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Scenes      ScenesConfig      `yaml:"scenes"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths       *PathsConfig       `yaml:"paths,omitempty"`
	Directory   *DirectoryConfig   `yaml:"directory,omitempty"`
	Relay       *RelayConfig       `yaml:"relay,omitempty"`
	Identity    *IdentityConfig    `yaml:"identity,omitempty"`
	Matchmaking *MatchmakingConfig `yaml:"matchmaking,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for quickplay data.
	Root string `yaml:"root"`

	// State holds identity files and flow markers, one subdirectory
	// per profile.
	State string `yaml:"state"`

	// Logs is where the TUI binary writes its log file.
	Logs string `yaml:"logs"`
}

// DirectoryConfig configures the session directory service.
type DirectoryConfig struct {
	// SocketPath is the Unix socket the directory service listens on
	// and participants dial.
	SocketPath string `yaml:"socket_path"`

	// Database is the SQLite file backing the directory. Empty means
	// an in-memory directory.
	Database string `yaml:"database"`

	// RecordTTL is how long a record survives without a heartbeat.
	RecordTTL time.Duration `yaml:"record_ttl"`

	// PruneInterval is how often expired records are removed.
	PruneInterval time.Duration `yaml:"prune_interval"`

	// RequestTimeout bounds each directory call made by a participant.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RelayConfig configures the host-side relay listener.
type RelayConfig struct {
	// BindAddress is where hosts listen for clients. Port 0 picks a
	// free port per allocation.
	BindAddress string `yaml:"bind_address"`

	// AdvertiseHost replaces the listener's host in join tokens. Use
	// it when binding a wildcard address.
	AdvertiseHost string `yaml:"advertise_host"`

	// HandshakeTimeout bounds the hello/welcome exchange.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// IdentityConfig configures the anonymous participant identity.
type IdentityConfig struct {
	// Profile selects the identity. Empty means "default".
	Profile string `yaml:"profile"`
}

// MatchmakingConfig carries the orchestrator's timing and sizing
// constants. Zero fields keep their defaults.
type MatchmakingConfig struct {
	Capacity             int           `yaml:"capacity"`
	QuickPlayDuration    time.Duration `yaml:"quick_play_duration"`
	SearchWindow         time.Duration `yaml:"search_window"`
	SearchRetryDelay     time.Duration `yaml:"search_retry_delay"`
	SearchPageSize       int           `yaml:"search_page_size"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	ClientFaultDelay     time.Duration `yaml:"client_fault_delay"`
	ClientFaultThreshold int           `yaml:"client_fault_threshold"`
	StartCueDelay        time.Duration `yaml:"start_cue_delay"`
	FadeDuration         time.Duration `yaml:"fade_duration"`
	ConnectionWait       time.Duration `yaml:"connection_wait"`
	CancelWait           time.Duration `yaml:"cancel_wait"`
	MarkerMaxAge         time.Duration `yaml:"marker_max_age"`
}

// ScenesConfig names the scenes the orchestrator hands off to.
type ScenesConfig struct {
	Gameplay string `yaml:"gameplay"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "quickplay")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Logs:  filepath.Join(defaultRoot, "logs"),
		},
		Directory: DirectoryConfig{
			SocketPath:     filepath.Join(defaultRoot, "directory.sock"),
			Database:       filepath.Join(defaultRoot, "directory.db"),
			RecordTTL:      30 * time.Second,
			PruneInterval:  5 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			BindAddress:      "127.0.0.1:0",
			HandshakeTimeout: 5 * time.Second,
		},
		Matchmaking: MatchmakingConfig{
			Capacity:             8,
			QuickPlayDuration:    30 * time.Second,
			SearchWindow:         6 * time.Second,
			SearchRetryDelay:     300 * time.Millisecond,
			SearchPageSize:       25,
			HeartbeatInterval:    15 * time.Second,
			PollInterval:         500 * time.Millisecond,
			ClientFaultDelay:     750 * time.Millisecond,
			ClientFaultThreshold: 6,
			StartCueDelay:        2 * time.Second,
			FadeDuration:         time.Second,
			ConnectionWait:       10 * time.Second,
			CancelWait:           2 * time.Second,
			MarkerMaxAge:         10 * time.Minute,
		},
		Scenes: ScenesConfig{
			Gameplay: "MainScene",
		},
	}
}

// Load loads configuration from the file named by QUICKPLAY_CONFIG.
// There is no fallback: an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv("QUICKPLAY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("QUICKPLAY_CONFIG environment variable not set; " +
			"set it to the path of your quickplay.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// matching environment section, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Relay: &RelayConfig{BindAddress: "0.0.0.0:0"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		overrideString(&c.Paths.Root, overrides.Paths.Root)
		overrideString(&c.Paths.State, overrides.Paths.State)
		overrideString(&c.Paths.Logs, overrides.Paths.Logs)
	}

	if overrides.Directory != nil {
		overrideString(&c.Directory.SocketPath, overrides.Directory.SocketPath)
		overrideString(&c.Directory.Database, overrides.Directory.Database)
		overrideDuration(&c.Directory.RecordTTL, overrides.Directory.RecordTTL)
		overrideDuration(&c.Directory.PruneInterval, overrides.Directory.PruneInterval)
		overrideDuration(&c.Directory.RequestTimeout, overrides.Directory.RequestTimeout)
	}

	if overrides.Relay != nil {
		overrideString(&c.Relay.BindAddress, overrides.Relay.BindAddress)
		overrideString(&c.Relay.AdvertiseHost, overrides.Relay.AdvertiseHost)
		overrideDuration(&c.Relay.HandshakeTimeout, overrides.Relay.HandshakeTimeout)
	}

	if overrides.Identity != nil {
		overrideString(&c.Identity.Profile, overrides.Identity.Profile)
	}

	if m := overrides.Matchmaking; m != nil {
		overrideInt(&c.Matchmaking.Capacity, m.Capacity)
		overrideDuration(&c.Matchmaking.QuickPlayDuration, m.QuickPlayDuration)
		overrideDuration(&c.Matchmaking.SearchWindow, m.SearchWindow)
		overrideDuration(&c.Matchmaking.SearchRetryDelay, m.SearchRetryDelay)
		overrideInt(&c.Matchmaking.SearchPageSize, m.SearchPageSize)
		overrideDuration(&c.Matchmaking.HeartbeatInterval, m.HeartbeatInterval)
		overrideDuration(&c.Matchmaking.PollInterval, m.PollInterval)
		overrideDuration(&c.Matchmaking.ClientFaultDelay, m.ClientFaultDelay)
		overrideInt(&c.Matchmaking.ClientFaultThreshold, m.ClientFaultThreshold)
		overrideDuration(&c.Matchmaking.StartCueDelay, m.StartCueDelay)
		overrideDuration(&c.Matchmaking.FadeDuration, m.FadeDuration)
		overrideDuration(&c.Matchmaking.ConnectionWait, m.ConnectionWait)
		overrideDuration(&c.Matchmaking.CancelWait, m.CancelWait)
		overrideDuration(&c.Matchmaking.MarkerMaxAge, m.MarkerMaxAge)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func overrideDuration(target *time.Duration, value time.Duration) {
	if value != 0 {
		*target = value
	}
}

func overrideInt(target *int, value int) {
	if value != 0 {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"QUICKPLAY_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["QUICKPLAY_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
	c.Directory.SocketPath = expandVars(c.Directory.SocketPath, vars)
	c.Directory.Database = expandVars(c.Directory.Database, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Provided vars win over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if c.Directory.SocketPath == "" {
		errs = append(errs, fmt.Errorf("directory.socket_path is required"))
	}
	requirePositive := func(name string, value time.Duration) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, value))
		}
	}
	requirePositive("directory.record_ttl", c.Directory.RecordTTL)
	requirePositive("directory.prune_interval", c.Directory.PruneInterval)
	requirePositive("directory.request_timeout", c.Directory.RequestTimeout)

	if _, _, err := net.SplitHostPort(c.Relay.BindAddress); err != nil {
		errs = append(errs, fmt.Errorf("relay.bind_address: %w", err))
	}
	requirePositive("relay.handshake_timeout", c.Relay.HandshakeTimeout)

	m := c.Matchmaking
	if m.Capacity < 2 {
		errs = append(errs, fmt.Errorf("matchmaking.capacity must be at least 2, got %d", m.Capacity))
	}
	if m.SearchPageSize <= 0 {
		errs = append(errs, fmt.Errorf("matchmaking.search_page_size must be positive, got %d", m.SearchPageSize))
	}
	if m.ClientFaultThreshold <= 0 {
		errs = append(errs, fmt.Errorf("matchmaking.client_fault_threshold must be positive, got %d", m.ClientFaultThreshold))
	}
	requirePositive("matchmaking.quick_play_duration", m.QuickPlayDuration)
	requirePositive("matchmaking.search_window", m.SearchWindow)
	requirePositive("matchmaking.search_retry_delay", m.SearchRetryDelay)
	requirePositive("matchmaking.heartbeat_interval", m.HeartbeatInterval)
	requirePositive("matchmaking.poll_interval", m.PollInterval)
	requirePositive("matchmaking.client_fault_delay", m.ClientFaultDelay)
	requirePositive("matchmaking.connection_wait", m.ConnectionWait)
	requirePositive("matchmaking.cancel_wait", m.CancelWait)
	if m.StartCueDelay < 0 || m.FadeDuration < 0 {
		errs = append(errs, fmt.Errorf("matchmaking.start_cue_delay and fade_duration must not be negative"))
	}
	if m.HeartbeatInterval >= c.Directory.RecordTTL {
		errs = append(errs, fmt.Errorf("matchmaking.heartbeat_interval (%s) must be shorter than directory.record_ttl (%s)",
			m.HeartbeatInterval, c.Directory.RecordTTL))
	}

	if c.Scenes.Gameplay == "" {
		errs = append(errs, fmt.Errorf("scenes.gameplay is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State, c.Paths.Logs} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// ProfileStateDirectory returns the per-profile state directory.
func (c *Config) ProfileStateDirectory(profile string) string {
	return filepath.Join(c.Paths.State, profile)
}
