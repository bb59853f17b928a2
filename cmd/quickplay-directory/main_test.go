// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/config"
	"github.com/bureau-foundation/quickplay/lib/testutil"
)

func TestVersionFlag(t *testing.T) {
	var stdout bytes.Buffer
	if err := run([]string{"--version"}, &stdout); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "quickplay-directory ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRejectsUnexpectedArgument(t *testing.T) {
	err := run([]string{"serve"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unexpected argument") {
		t.Errorf("run serve: got %v, want unexpected argument error", err)
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := newLogger("xml"); err == nil {
		t.Error("newLogger(xml) succeeded")
	}
	for _, format := range []string{"text", "json", ""} {
		if _, err := newLogger(format); err != nil {
			t.Errorf("newLogger(%q): %v", format, err)
		}
	}
}

func TestOpenBackendSelectsStorage(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	cfg := config.Default()
	cfg.Directory.Database = ""
	store, closeStore, err := openBackend(cfg, logger)
	if err != nil {
		t.Fatalf("openBackend(memory): %v", err)
	}
	closeStore()
	if _, ok := store.(*directory.MemoryDirectory); !ok {
		t.Errorf("empty database path opened %T, want *MemoryDirectory", store)
	}

	cfg.Directory.Database = t.TempDir() + "/directory.db"
	store, closeStore, err = openBackend(cfg, logger)
	if err != nil {
		t.Fatalf("openBackend(sqlite): %v", err)
	}
	defer closeStore()
	if _, ok := store.(*directory.SQLiteDirectory); !ok {
		t.Errorf("database path opened %T, want *SQLiteDirectory", store)
	}
}

func TestPruneLoopRemovesExpiredRecords(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	store := directory.NewMemory(directory.MemoryOptions{Clock: fake, RecordTTL: 30 * time.Second})
	if _, err := store.Create(context.Background(), directory.CreateRequest{HostID: "host", Capacity: 2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- pruneLoop(ctx, fake, store, 5*time.Second, slog.New(slog.DiscardHandler))
	}()

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)
	if store.Len() != 1 {
		t.Fatalf("fresh record pruned: %d records left", store.Len())
	}

	fake.Advance(25 * time.Second)
	testutil.Eventually(t, 5*time.Second, time.Millisecond, func() bool {
		return store.Len() == 0
	}, "expired record pruned")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "prune loop exit"); err != nil {
		t.Errorf("pruneLoop returned %v, want nil", err)
	}
}
