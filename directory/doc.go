// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory implements the session directory: the shared store
// of lobby records through which quick play participants coordinate.
//
// Participants never talk to each other until the relay transport is
// up. Everything before that (who is hosting, how many players have
// joined, when the match starts, how to reach the host) travels through
// a [Record] that every participant polls. The rules that keep that
// record coherent under concurrent writers live here and are enforced
// identically by every backend:
//
//   - a record never holds more participants than its capacity
//   - the state field only moves forward: searching, starting, in_game
//   - the join token is written at most once
//   - startAtUnixMillis always parses as an int64
//   - an update merges per key in one atomic step
//   - a record without a heartbeat for the TTL is gone
//
// Backends:
//
//   - [MemoryDirectory]: in-process, with fault injection for tests
//   - [SQLiteDirectory]: persistent, used by quickplay-directory
//   - [Client]: a [Directory] that talks to a directory socket served
//     by [RegisterHandlers]
package directory
