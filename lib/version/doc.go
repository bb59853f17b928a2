// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the quickplay
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] is the short git SHA of the build
//   - [GitDirty] is "true" if there were uncommitted changes
//   - [BuildTime] is the UTC timestamp of the build
//   - [Version] is the semantic version string
//
// These default to "unknown" / "0.1.0-dev" when not injected, which
// occurs during development builds and test runs.
package version
