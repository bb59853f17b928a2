// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the quickplay
// binaries. It holds the one legitimate raw stderr write: reporting a
// fatal error from run() when the structured logger may not exist yet.
package process
