// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory_test

import (
	"testing"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/codec"
)

func TestRecordWireKeys(t *testing.T) {
	record := directory.Record{
		ID:           "lobby-1",
		HostID:       "alpha",
		Capacity:     8,
		Participants: []string{"alpha"},
		Data:         map[string]string{directory.KeyState: "searching"},
		CreatedAt:    1,
		HeartbeatAt:  2,
	}
	data, err := codec.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := codec.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"id", "host_id", "capacity", "participants", "data", "created_at", "heartbeat_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded record has no %q key: %v", key, fields)
		}
	}
	if _, ok := fields["name"]; ok {
		t.Error("empty name was encoded")
	}
}
