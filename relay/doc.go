// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay provides the transport a quick play session runs on
// once matchmaking is done: a [Provisioner] that allocates a route and
// produces a join token, and a [Runtime] that starts a session as host
// or client on that route and reports connections and scene changes.
//
// The host allocates a route with room for capacity-1 clients, writes
// the join token into the lobby record, and starts its runtime. Clients
// read the token from the record, resolve it with [Provisioner.Join],
// and start their runtime against the host. From then on the host is
// authoritative: [Runtime.LoadScene] propagates a scene change to every
// connected client, which each client observes as [EventSceneLoad].
//
// Implementations:
//
//   - [TCPProvisioner] and [TCPRuntime]: a direct TCP route for
//     loopback and LAN play. The join token carries the host address
//     and a per-allocation secret; clients present the secret in their
//     hello and the host compares it in constant time.
//   - [MemoryNetwork]: an in-process provisioner and runtimes for
//     tests, with fault injection.
//
// Both speak to their subscribers through the same event fan-out:
// [Runtime.Subscribe] returns a channel and an unsubscribe function.
// Subscribers that stop draining lose events rather than stall the
// runtime.
package relay
