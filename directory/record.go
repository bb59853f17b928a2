// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"slices"
	"strconv"
)

// State is the lifecycle state of a lobby record.
type State string

const (
	StateSearching State = "searching"
	StateStarting  State = "starting"
	StateInGame    State = "in_game"
)

// rank orders states; -1 for unknown values.
func (s State) rank() int {
	switch s {
	case StateSearching:
		return 0
	case StateStarting:
		return 1
	case StateInGame:
		return 2
	}
	return -1
}

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s.rank() >= 0 }

// Record data keys with typed meaning. Other keys are opaque.
const (
	KeyState     = "state"
	KeyJoinToken = "joinToken"
	KeyStartAt   = "startAtUnixMillis"
)

// Record is one lobby in the directory. Participants are in join order;
// a participant's index is its lobby slot.
type Record struct {
	ID           string            `cbor:"id"`
	Name         string            `cbor:"name,omitempty"`
	HostID       string            `cbor:"host_id"`
	Capacity     int               `cbor:"capacity"`
	Participants []string          `cbor:"participants"`
	Data         map[string]string `cbor:"data"`

	// Unix milliseconds.
	CreatedAt   int64 `cbor:"created_at"`
	HeartbeatAt int64 `cbor:"heartbeat_at"`
}

// State returns the record's lifecycle state.
func (r *Record) State() State { return State(r.Data[KeyState]) }

// JoinToken returns the relay join token, empty until the host has
// provisioned transport.
func (r *Record) JoinToken() string { return r.Data[KeyJoinToken] }

// StartAt returns the synchronized start time in Unix milliseconds.
func (r *Record) StartAt() (int64, bool) {
	raw, ok := r.Data[KeyStartAt]
	if !ok || raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// AvailableSlots returns how many more participants can join.
func (r *Record) AvailableSlots() int {
	return max(r.Capacity-len(r.Participants), 0)
}

// IndexOf returns the slot of participant, or -1.
func (r *Record) IndexOf(participant string) int {
	return slices.Index(r.Participants, participant)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Participants = slices.Clone(r.Participants)
	clone.Data = make(map[string]string, len(r.Data))
	for key, value := range r.Data {
		clone.Data[key] = value
	}
	return &clone
}

// Filter selects records in Search. Results are in insertion order.
type Filter struct {
	// State restricts results to one state. Empty matches all.
	State State `cbor:"state,omitempty"`

	// MinAvailableSlots excludes records with fewer free slots.
	MinAvailableSlots int `cbor:"min_available_slots,omitempty"`

	// Limit caps the page size. Zero means DefaultSearchLimit; values
	// above MaxSearchLimit are clamped.
	Limit int `cbor:"limit,omitempty"`

	Offset int `cbor:"offset,omitempty"`
}

const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 100
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultSearchLimit
	case f.Limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return f.Limit
}

// CreateRequest describes a new record. The host becomes its first
// participant.
type CreateRequest struct {
	Name     string            `cbor:"name,omitempty"`
	HostID   string            `cbor:"host_id"`
	Capacity int               `cbor:"capacity"`
	Data     map[string]string `cbor:"data,omitempty"`
}
