// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import (
	"testing"
	"time"
)

func TestCueTrackerDecay(t *testing.T) {
	tracker := NewCueTracker()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	if heat := tracker.Heat(3, start); heat != 0 {
		t.Errorf("heat of an unlit slot = %v, want 0", heat)
	}

	tracker.Ignite(3, start)
	if heat := tracker.Heat(3, start); heat != 1 {
		t.Errorf("heat at ignition = %v, want 1", heat)
	}
	if heat := tracker.Heat(3, start.Add(CueGlowDuration/2)); heat < 0.49 || heat > 0.51 {
		t.Errorf("heat at half decay = %v, want 0.5", heat)
	}
	if heat := tracker.Heat(3, start.Add(CueGlowDuration)); heat != 0 {
		t.Errorf("heat after decay = %v, want 0", heat)
	}

	// Re-igniting restarts the decay.
	tracker.Ignite(3, start.Add(CueGlowDuration/2))
	if heat := tracker.Heat(3, start.Add(CueGlowDuration)); heat < 0.49 || heat > 0.51 {
		t.Errorf("heat after re-ignition = %v, want 0.5", heat)
	}
}

func TestCueTrackerHasHotForgetsColdSlots(t *testing.T) {
	tracker := NewCueTracker()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tracker.Ignite(0, start)
	tracker.Ignite(1, start.Add(time.Second))

	if !tracker.HasHot(start.Add(CueGlowDuration)) {
		t.Fatal("HasHot = false while slot 1 glows")
	}
	if len(tracker.ignitions) != 1 {
		t.Errorf("tracked slots = %d, want 1 after slot 0 decayed", len(tracker.ignitions))
	}
	if tracker.HasHot(start.Add(time.Second + CueGlowDuration)) {
		t.Error("HasHot = true after every slot decayed")
	}

	tracker.Ignite(2, start)
	tracker.Reset()
	if tracker.Heat(2, start) != 0 {
		t.Error("Reset kept a slot hot")
	}
}
