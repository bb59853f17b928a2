// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the quickplay
// binaries.
//
// Configuration is loaded from a single file named by either the
// QUICKPLAY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path and no discovery. Binaries
// run without a file use [Default].
//
// The file may contain development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production defaults are stricter: the relay binds to all interfaces
// and the flow marker is always written.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${QUICKPLAY_ROOT}, and ${VAR:-default} patterns are
// expanded. No environment variable overrides a config value.
//
// Durations use Go syntax ("500ms", "15s").
package config
