// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"time"
)

// DefaultRecordTTL is how long a record survives without a heartbeat.
const DefaultRecordTTL = 30 * time.Second

// Directory is the session directory contract. Every method may fail
// with a transient error (see IsTransient); callers must treat every
// call as fallible.
type Directory interface {
	// Search returns live records matching filter.
	Search(ctx context.Context, filter Filter) ([]Record, error)

	// Create stores a new record with the host as sole participant.
	Create(ctx context.Context, request CreateRequest) (*Record, error)

	// Join appends participant to the record. Fails with CodeFull at
	// capacity and CodeConflict once the record has left searching.
	// Joining a record the participant is already in succeeds.
	Join(ctx context.Context, id, participant string) (*Record, error)

	Get(ctx context.Context, id string) (*Record, error)

	// Update merges fields into the record's data atomically. Keys not
	// named in fields are untouched. An empty value removes the key,
	// except where an invariant forbids it.
	Update(ctx context.Context, id string, fields map[string]string) error

	// Heartbeat marks the record alive.
	Heartbeat(ctx context.Context, id string) error

	// Leave removes participant. Removing the last participant
	// deletes the record.
	Leave(ctx context.Context, id, participant string) error

	Delete(ctx context.Context, id string) error
}

// Pruner removes expired records. Implemented by the storage backends
// and driven by the directory service.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Op names a directory operation in logs, fault injection, and
// socket actions.
type Op string

const (
	OpSearch    Op = "search"
	OpCreate    Op = "create"
	OpJoin      Op = "join"
	OpGet       Op = "get"
	OpUpdate    Op = "update"
	OpHeartbeat Op = "heartbeat"
	OpLeave     Op = "leave"
	OpDelete    Op = "delete"
)
