// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import "time"

// CueGlowDuration is how long a slot glows after its start cue. Heat
// starts at 1.0 and decays linearly to 0.0 over this duration.
const CueGlowDuration = 1500 * time.Millisecond

// heatTickInterval is the re-render interval while any slot is hot.
const heatTickInterval = 100 * time.Millisecond

// CueTracker maps slot indexes to the time their start cue played.
type CueTracker struct {
	ignitions map[int]time.Time
}

func NewCueTracker() *CueTracker {
	return &CueTracker{ignitions: make(map[int]time.Time)}
}

// Ignite records a cue for slot, restarting its decay if it was
// already hot.
func (tracker *CueTracker) Ignite(slot int, now time.Time) {
	tracker.ignitions[slot] = now
}

// Heat returns the current intensity for slot: 1.0 at ignition,
// decaying linearly to 0.0 over [CueGlowDuration].
func (tracker *CueTracker) Heat(slot int, now time.Time) float64 {
	ignition, exists := tracker.ignitions[slot]
	if !exists {
		return 0.0
	}
	elapsed := now.Sub(ignition)
	if elapsed >= CueGlowDuration {
		return 0.0
	}
	return 1.0 - float64(elapsed)/float64(CueGlowDuration)
}

// HasHot reports whether any slot still glows, and forgets slots that
// have fully decayed.
func (tracker *CueTracker) HasHot(now time.Time) bool {
	hot := false
	for slot, ignition := range tracker.ignitions {
		if now.Sub(ignition) < CueGlowDuration {
			hot = true
			continue
		}
		delete(tracker.ignitions, slot)
	}
	return hot
}

// Reset forgets every cue.
func (tracker *CueTracker) Reset() {
	clear(tracker.ignitions)
}
