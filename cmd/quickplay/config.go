// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/quickplay/lib/config"
	"github.com/bureau-foundation/quickplay/quickplay"
)

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

// orchestratorConfig maps the file configuration onto the
// orchestrator's. Zero fields keep the orchestrator defaults. The flow
// marker lives in the profile's state directory, next to its identity.
func orchestratorConfig(cfg *config.Config, profile string) quickplay.Config {
	result := quickplay.DefaultConfig()
	m := cfg.Matchmaking

	setInt(&result.Capacity, m.Capacity)
	setInt(&result.SearchPageSize, m.SearchPageSize)
	setInt(&result.ClientFaultThreshold, m.ClientFaultThreshold)

	setDuration(&result.QuickPlayDuration, m.QuickPlayDuration)
	setDuration(&result.SearchWindow, m.SearchWindow)
	setDuration(&result.SearchRetryDelay, m.SearchRetryDelay)
	setDuration(&result.HeartbeatInterval, m.HeartbeatInterval)
	setDuration(&result.PollInterval, m.PollInterval)
	setDuration(&result.ClientFaultDelay, m.ClientFaultDelay)
	setDuration(&result.StartCueDelay, m.StartCueDelay)
	setDuration(&result.FadeDuration, m.FadeDuration)
	setDuration(&result.ConnectionWait, m.ConnectionWait)
	setDuration(&result.CancelWait, m.CancelWait)
	setDuration(&result.MarkerMaxAge, m.MarkerMaxAge)

	if cfg.Scenes.Gameplay != "" {
		result.GameplayScene = cfg.Scenes.Gameplay
	}
	result.MarkerPath = filepath.Join(cfg.ProfileStateDirectory(profile), "flow.cbor")
	return result
}

func setInt(target *int, value int) {
	if value != 0 {
		*target = value
	}
}

func setDuration(target *time.Duration, value time.Duration) {
	if value != 0 {
		*target = value
	}
}
