// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package quickplay implements the quick play matchmaking orchestrator.
//
// An [Orchestrator] drives one local participant from "press quick
// play" to a running game session. It searches the session directory
// for a lobby that is still gathering players and joins it, or creates
// a new lobby and becomes its host. Participants never talk to each
// other until the relay transport is up, so every coordination step
// goes through the shared directory record:
//
//   - The host heartbeats the record, provisions a relay allocation,
//     writes the join token into the record, and counts down. When the
//     countdown ends it writes state=starting together with a start
//     timestamp, plays the start sequence, loads the gameplay scene
//     through the relay runtime, and writes state=in_game.
//   - A client polls the record. A join token starts its relay
//     connection; state=starting starts its local start sequence. A
//     scene load from the host hands the client off to gameplay.
//
// Exactly one flow runs at a time. [Orchestrator.BeginQuickPlay] is a
// no-op while a flow is active, and [Orchestrator.CancelQuickPlay] is
// idempotent and safe from any phase: it stops the flow's goroutines,
// shuts down the relay runtime if one was started, and deletes (host)
// or leaves (client) the directory record.
//
// Failures are classified by [FaultKind]. Directory hiccups are
// retried or tolerated; provisioning failures and a lost lobby cancel
// the flow. No fault escapes the orchestrator: each one becomes a
// status update and, where needed, a cancellation back to idle.
//
// All waits go through an injected [clock.Clock], so tests drive whole
// multi-participant flows with a fake clock against the in-memory
// directory and relay network.
package quickplay
