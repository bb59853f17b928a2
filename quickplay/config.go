// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the orchestrator's timing and sizing constants.
type Config struct {
	// Capacity is the lobby size, host included.
	Capacity int

	// QuickPlayDuration is the host countdown from relay start to
	// state=starting.
	QuickPlayDuration time.Duration

	// SearchWindow bounds the search phase. SearchRetryDelay separates
	// search attempts; SearchPageSize caps candidates per attempt.
	SearchWindow     time.Duration
	SearchRetryDelay time.Duration
	SearchPageSize   int

	HeartbeatInterval time.Duration
	PollInterval      time.Duration

	// ClientFaultDelay is the extra wait after a failed client poll.
	// ClientFaultThreshold consecutive failures lose the session.
	ClientFaultDelay     time.Duration
	ClientFaultThreshold int

	// StartCueDelay separates the start cues from the fade, which
	// lasts FadeDuration.
	StartCueDelay time.Duration
	FadeDuration  time.Duration

	// ConnectionWait bounds the host's wait for every lobby member to
	// connect before loading the gameplay scene.
	ConnectionWait         time.Duration
	ConnectionPollInterval time.Duration

	// CancelWait bounds how long cancellation waits for in-flight
	// activities before cleaning up anyway.
	CancelWait time.Duration

	GameplayScene string

	// SessionName is the name written on created records.
	SessionName string

	// MarkerPath, when set, is where the flow marker used for orphan
	// recovery is kept. Markers older than MarkerMaxAge are discarded
	// without touching the directory.
	MarkerPath   string
	MarkerMaxAge time.Duration
}

// DefaultConfig returns the reference constants.
func DefaultConfig() Config {
	return Config{
		Capacity:               8,
		QuickPlayDuration:      30 * time.Second,
		SearchWindow:           6 * time.Second,
		SearchRetryDelay:       300 * time.Millisecond,
		SearchPageSize:         25,
		HeartbeatInterval:      15 * time.Second,
		PollInterval:           500 * time.Millisecond,
		ClientFaultDelay:       750 * time.Millisecond,
		ClientFaultThreshold:   6,
		StartCueDelay:          2 * time.Second,
		FadeDuration:           1 * time.Second,
		ConnectionWait:         10 * time.Second,
		ConnectionPollInterval: 100 * time.Millisecond,
		CancelWait:             2 * time.Second,
		GameplayScene:          "MainScene",
		SessionName:            "QuickPlay",
		MarkerMaxAge:           10 * time.Minute,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Capacity < 2 {
		errs = append(errs, fmt.Errorf("capacity must be at least 2, got %d", c.Capacity))
	}
	if c.SearchPageSize < 1 {
		errs = append(errs, fmt.Errorf("search page size must be positive, got %d", c.SearchPageSize))
	}
	if c.ClientFaultThreshold < 1 {
		errs = append(errs, fmt.Errorf("client fault threshold must be positive, got %d", c.ClientFaultThreshold))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"quick play duration", c.QuickPlayDuration},
		{"search window", c.SearchWindow},
		{"search retry delay", c.SearchRetryDelay},
		{"heartbeat interval", c.HeartbeatInterval},
		{"poll interval", c.PollInterval},
		{"connection poll interval", c.ConnectionPollInterval},
		{"cancel wait", c.CancelWait},
	}
	for _, field := range positive {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", field.name, field.value))
		}
	}

	nonNegative := []struct {
		name  string
		value time.Duration
	}{
		{"client fault delay", c.ClientFaultDelay},
		{"start cue delay", c.StartCueDelay},
		{"fade duration", c.FadeDuration},
		{"connection wait", c.ConnectionWait},
		{"marker max age", c.MarkerMaxAge},
	}
	for _, field := range nonNegative {
		if field.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", field.name, field.value))
		}
	}

	if c.GameplayScene == "" {
		errs = append(errs, errors.New("gameplay scene is required"))
	}
	return errors.Join(errs...)
}
