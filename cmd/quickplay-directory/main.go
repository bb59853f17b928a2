// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// quickplay-directory serves the session directory on a Unix socket.
// Participants search, create, join, and update lobby records through
// it; records whose host stops heartbeating expire and are pruned.
//
// The directory is SQLite-backed by default (paths.root/directory.db or
// directory.database in the config file). --memory keeps records in
// process memory only, which suits local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/config"
	"github.com/bureau-foundation/quickplay/lib/process"
	"github.com/bureau-foundation/quickplay/lib/service"
	"github.com/bureau-foundation/quickplay/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// backend is a directory that can also drop expired records.
type backend interface {
	directory.Directory
	directory.Pruner
}

func run(args []string, stdout io.Writer) error {
	var (
		configPath    string
		socketPath    string
		databasePath  string
		memory        bool
		recordTTL     time.Duration
		pruneInterval time.Duration
		logFormat     string
		showVersion   bool
	)

	flagSet := pflag.NewFlagSet("quickplay-directory", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to quickplay.yaml (default: $QUICKPLAY_CONFIG, else built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "Unix socket to serve on (overrides directory.socket_path)")
	flagSet.StringVar(&databasePath, "database", "", "SQLite database path (overrides directory.database)")
	flagSet.BoolVar(&memory, "memory", false, "keep records in memory only")
	flagSet.DurationVar(&recordTTL, "record-ttl", 0, "how long a record survives without a heartbeat (overrides directory.record_ttl)")
	flagSet.DurationVar(&pruneInterval, "prune-interval", 0, "how often expired records are removed (overrides directory.prune_interval)")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: text or json (default: text on a terminal, json otherwise)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(stdout, "quickplay-directory")
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Directory.SocketPath = socketPath
	}
	if databasePath != "" {
		cfg.Directory.Database = databasePath
	}
	if memory {
		cfg.Directory.Database = ""
	}
	if recordTTL > 0 {
		cfg.Directory.RecordTTL = recordTTL
	}
	if pruneInterval > 0 {
		cfg.Directory.PruneInterval = pruneInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Directory.SocketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	logger, err := newLogger(logFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	server := service.NewSocketServer(cfg.Directory.SocketPath, logger)
	directory.RegisterHandlers(server, store)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(ctx)
	})
	group.Go(func() error {
		return pruneLoop(ctx, clock.Real(), store, cfg.Directory.PruneInterval, logger)
	})

	logger.Info("directory service running",
		"socket", cfg.Directory.SocketPath,
		"database", cfg.Directory.Database,
		"record_ttl", cfg.Directory.RecordTTL,
		"prune_interval", cfg.Directory.PruneInterval,
	)

	err = group.Wait()
	logger.Info("directory service stopped")
	return err
}

// loadConfig reads the file named by path, or by QUICKPLAY_CONFIG when
// path is empty. With neither set, the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("QUICKPLAY_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// openBackend opens the SQLite directory, or an in-memory one when no
// database is configured.
func openBackend(cfg *config.Config, logger *slog.Logger) (backend, func(), error) {
	if cfg.Directory.Database == "" {
		logger.Info("using in-memory directory")
		return directory.NewMemory(directory.MemoryOptions{
			RecordTTL: cfg.Directory.RecordTTL,
			Logger:    logger,
		}), func() {}, nil
	}

	store, err := directory.OpenSQLite(directory.SQLiteOptions{
		Path:      cfg.Directory.Database,
		RecordTTL: cfg.Directory.RecordTTL,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("closing directory database", "error", err)
		}
	}, nil
}

// pruneLoop removes expired records every interval until ctx ends.
func pruneLoop(ctx context.Context, clk clock.Clock, store directory.Pruner, interval time.Duration, logger *slog.Logger) error {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := store.Prune(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("pruning expired records failed", "error", err)
			continue
		}
		if removed > 0 {
			logger.Info("pruned expired records", "removed", removed)
		}
	}
}

// newLogger builds the stderr logger. Text on a terminal, JSON when
// stderr is piped, unless format says otherwise.
func newLogger(format string) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "" {
		format = "json"
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown --log-format %q (want text or json)", format)
	}
}
