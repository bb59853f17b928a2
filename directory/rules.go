// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// newRecord validates request and builds the record Create stores.
func newRecord(request CreateRequest, nowMillis int64) (*Record, error) {
	if request.HostID == "" {
		return nil, invalid("host_id is required")
	}
	if request.Capacity < 1 {
		return nil, invalid("capacity must be at least 1, got %d", request.Capacity)
	}

	record := &Record{
		ID:           uuid.NewString(),
		Name:         request.Name,
		HostID:       request.HostID,
		Capacity:     request.Capacity,
		Participants: []string{request.HostID},
		Data:         map[string]string{KeyState: string(StateSearching)},
		CreatedAt:    nowMillis,
		HeartbeatAt:  nowMillis,
	}
	if len(request.Data) > 0 {
		if err := applyUpdate(record, request.Data); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// admit adds participant to record.
func admit(record *Record, participant string) error {
	if participant == "" {
		return invalid("participant is required")
	}
	if record.IndexOf(participant) >= 0 {
		return nil
	}
	if state := record.State(); state != StateSearching {
		return conflict("record %s is %s and no longer accepting participants", record.ID, state)
	}
	if len(record.Participants) >= record.Capacity {
		return &Error{Code: CodeFull, Message: "record " + record.ID + " is full"}
	}
	record.Participants = append(record.Participants, participant)
	return nil
}

// applyUpdate validates every field first and only then merges, so a
// rejected update leaves the record untouched.
func applyUpdate(record *Record, fields map[string]string) error {
	if len(fields) == 0 {
		return invalid("update has no fields")
	}

	for key, value := range fields {
		switch key {
		case "":
			return invalid("empty field key")
		case KeyState:
			next := State(value)
			if !next.Valid() {
				return invalid("unknown state %q", value)
			}
			if current := record.State(); next.rank() < current.rank() {
				return conflict("state of %s cannot move from %s back to %s", record.ID, current, next)
			}
		case KeyJoinToken:
			if current := record.JoinToken(); current != "" && value != current {
				return conflict("join token of %s is already set", record.ID)
			}
		case KeyStartAt:
			if value == "" {
				continue
			}
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				return invalid("%s must be an int64, got %q", KeyStartAt, value)
			}
		}
	}

	if record.Data == nil {
		record.Data = make(map[string]string, len(fields))
	}
	for key, value := range fields {
		if value == "" {
			delete(record.Data, key)
			continue
		}
		record.Data[key] = value
	}
	return nil
}

// removeParticipant drops participant and reports whether the record
// is now empty.
func removeParticipant(record *Record, participant string) (bool, error) {
	index := record.IndexOf(participant)
	if index < 0 {
		return false, notFound("participant %s is not in record %s", participant, record.ID)
	}
	record.Participants = append(record.Participants[:index], record.Participants[index+1:]...)
	return len(record.Participants) == 0, nil
}

func expired(record *Record, nowMillis int64, ttl time.Duration) bool {
	return nowMillis-record.HeartbeatAt > ttl.Milliseconds()
}

func matches(record *Record, filter Filter) bool {
	if filter.State != "" && record.State() != filter.State {
		return false
	}
	return record.AvailableSlots() >= filter.MinAvailableSlots
}
