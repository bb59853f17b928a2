// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"errors"
	"fmt"
)

// FaultKind classifies orchestrator failures by how the flow reacts.
type FaultKind int

const (
	// FaultTransientDirectory is a directory or identity hiccup.
	// Retried or tolerated; cancels only when a flow cannot continue
	// without the failed call.
	FaultTransientDirectory FaultKind = iota + 1

	// FaultTransientProvisioning is a relay allocation, join, or
	// runtime failure. Cancels the flow.
	FaultTransientProvisioning

	// FaultSessionLost means the lobby is gone: the record was
	// deleted or expired, polls failed too many times in a row, or
	// the relay connection to the host dropped. Cancels the flow.
	FaultSessionLost

	// FaultFatalConfiguration is a missing collaborator or invalid
	// configuration. The orchestrator is never constructed.
	FaultFatalConfiguration
)

func (k FaultKind) String() string {
	switch k {
	case FaultTransientDirectory:
		return "transient_directory"
	case FaultTransientProvisioning:
		return "transient_provisioning"
	case FaultSessionLost:
		return "session_lost"
	case FaultFatalConfiguration:
		return "fatal_configuration"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Operations named in faults and logs.
const (
	OpConfigure    = "configure"
	OpSignIn       = "sign_in"
	OpSearch       = "search"
	OpCreate       = "create"
	OpJoin         = "join"
	OpPoll         = "poll"
	OpHeartbeat    = "heartbeat"
	OpUpdate       = "update"
	OpAllocate     = "allocate"
	OpRelayJoin    = "relay_join"
	OpStartRuntime = "start_runtime"
	OpLoadScene    = "load_scene"
	OpConnection   = "connection"
)

var (
	// errNotMember is reported when a poll shows the local
	// participant is no longer in the lobby.
	errNotMember = errors.New("participant no longer in lobby")

	errHostConnectionLost = errors.New("relay connection to host lost")
)

// Fault is a classified orchestrator failure.
type Fault struct {
	Kind FaultKind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("quickplay: %s fault during %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// status is the user-facing text shown after the fault cancels a flow.
func (f *Fault) status() string {
	switch f.Kind {
	case FaultTransientDirectory:
		return "Lobby error: " + f.Err.Error()
	case FaultTransientProvisioning:
		if f.Op == OpRelayJoin {
			return "Client: Relay join failed"
		}
		return "Relay error: " + f.Err.Error()
	case FaultSessionLost:
		return "Lobby lost."
	default:
		return "Unexpected error: " + f.Err.Error()
	}
}
