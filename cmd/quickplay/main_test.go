// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quickplay/lib/config"
	"github.com/bureau-foundation/quickplay/quickplay"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{
		"--directory-socket", "/tmp/dir.sock",
		"--profile", "alice",
		"--bind", "0.0.0.0:7777",
		"--advertise-host", "10.0.0.5",
		"--auto",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.directorySocket != "/tmp/dir.sock" || opts.profile != "alice" || !opts.auto {
		t.Errorf("parsed %+v", opts)
	}
	if opts.bindAddress != "0.0.0.0:7777" || opts.advertiseHost != "10.0.0.5" {
		t.Errorf("relay flags: bind %q advertise %q", opts.bindAddress, opts.advertiseHost)
	}
}

func TestParseFlagsRejects(t *testing.T) {
	for _, args := range [][]string{
		{"--profile", "alice", "--dev-profile"},
		{"play"},
		{"--no-such-flag"},
	} {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%q) succeeded", args)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	stdout, err := os.CreateTemp(t.TempDir(), "stdout")
	if err != nil {
		t.Fatal(err)
	}
	defer stdout.Close()

	if err := run([]string{"--version"}, stdout); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	output, err := os.ReadFile(stdout.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(output), "quickplay ") {
		t.Errorf("version output = %q", output)
	}
}

func TestOrchestratorConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.State = "/var/lib/quickplay/state"
	cfg.Matchmaking.Capacity = 4
	cfg.Matchmaking.QuickPlayDuration = 12 * time.Second
	cfg.Matchmaking.SearchWindow = 0
	cfg.Scenes.Gameplay = "Arena"

	got := orchestratorConfig(cfg, "alice")
	defaults := quickplay.DefaultConfig()

	if got.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", got.Capacity)
	}
	if got.QuickPlayDuration != 12*time.Second {
		t.Errorf("QuickPlayDuration = %v, want 12s", got.QuickPlayDuration)
	}
	if got.SearchWindow != defaults.SearchWindow {
		t.Errorf("zero SearchWindow = %v, want default %v", got.SearchWindow, defaults.SearchWindow)
	}
	if got.ConnectionPollInterval != defaults.ConnectionPollInterval {
		t.Errorf("ConnectionPollInterval = %v, want default %v", got.ConnectionPollInterval, defaults.ConnectionPollInterval)
	}
	if got.GameplayScene != "Arena" {
		t.Errorf("GameplayScene = %q, want Arena", got.GameplayScene)
	}
	if want := "/var/lib/quickplay/state/alice/flow.cbor"; got.MarkerPath != want {
		t.Errorf("MarkerPath = %q, want %q", got.MarkerPath, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("mapped config invalid: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("QUICKPLAY_CONFIG", "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Matchmaking.Capacity != 8 {
		t.Errorf("default capacity = %d, want 8", cfg.Matchmaking.Capacity)
	}

	path := filepath.Join(t.TempDir(), "quickplay.yaml")
	if err := os.WriteFile(path, []byte("matchmaking:\n  capacity: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUICKPLAY_CONFIG", path)
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig from environment: %v", err)
	}
	if cfg.Matchmaking.Capacity != 4 {
		t.Errorf("capacity from file = %d, want 4", cfg.Matchmaking.Capacity)
	}
}

func TestNewLogger(t *testing.T) {
	var output bytes.Buffer
	logger, err := newLogger(&output, "", false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("quick play status", "status", "Ready.")
	if !strings.HasPrefix(output.String(), "{") {
		t.Errorf("non-terminal default is not JSON: %q", output.String())
	}

	output.Reset()
	logger, err = newLogger(&output, "", true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("quick play status", "status", "Ready.")
	if !strings.Contains(output.String(), `status=Ready.`) {
		t.Errorf("terminal default is not text: %q", output.String())
	}

	if _, err := newLogger(&output, "xml", false); err == nil {
		t.Error("newLogger accepted format xml")
	}
}

func TestOpenFileLogHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "quickplay-alice.log")
	handler, closeFile, err := openFileLogHandler(path)
	if err != nil {
		t.Fatalf("openFileLogHandler: %v", err)
	}
	slog.New(handler).Debug("relay event", "event", "connected")
	closeFile()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"event":"connected"`) {
		t.Errorf("log file = %q, want the debug record", data)
	}
}
