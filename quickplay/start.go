// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"time"

	"github.com/bureau-foundation/quickplay/lib/clock"
)

// startSequence runs the host's start sequence unless this flow
// already triggered it. Returns false if it was already triggered or
// the flow ended before it finished.
func (o *Orchestrator) startSequence(f *flow) bool {
	triggered := false
	ok := o.update(f, func(s *flowState) {
		if s.startSequenceTriggered {
			return
		}
		s.startSequenceTriggered = true
		s.phase = PhaseStarting
		triggered = true
	})
	if !ok || !triggered {
		return false
	}
	o.setStatus(f, "Starting match...")
	return o.playStartSequence(f, o.config.StartCueDelay)
}

// cueDelay returns how long a client waits between its start cues and
// its fade so that the fade ends at startAt, the host's scheduled
// start in Unix milliseconds. The result never exceeds StartCueDelay;
// a client that sees the start late fades right away.
func (o *Orchestrator) cueDelay(startAt int64) time.Duration {
	if startAt == 0 {
		return o.config.StartCueDelay
	}
	delay := clock.Remaining(o.clock, time.UnixMilli(startAt)) - o.config.FadeDuration
	return min(max(delay, 0), o.config.StartCueDelay)
}

// playStartSequence cues every occupied slot, waits cueDelay, then
// fades the screen out. The caller has set startSequenceTriggered.
func (o *Orchestrator) playStartSequence(f *flow, cueDelay time.Duration) bool {
	var players int
	if !o.update(f, func(s *flowState) { players = s.players }) {
		return false
	}
	o.logger.Info("start sequence", "flow_id", f.id, "slots", players, "cue_delay", cueDelay)

	o.present(f, func(p Presenter) {
		for slot := range players {
			p.PlayStartCue(slot)
		}
	})
	if !o.sleep(f, cueDelay) {
		return false
	}

	// FadeTo blocks for the whole transition; it runs outside
	// presentMu so status updates keep flowing.
	if !o.isCurrent(f) {
		return false
	}
	if err := o.presenter.FadeTo(f.ctx, 1, o.config.FadeDuration); err != nil {
		if f.ctx.Err() != nil {
			return false
		}
		o.logger.Warn("fade failed", "flow_id", f.id, "error", err)
	}
	if !o.update(f, func(s *flowState) { s.startSequenceDone = true }) {
		return false
	}
	close(f.sequenceDone)
	return true
}

// awaitStartSequence waits for a running start sequence to finish, so
// a scene load arriving mid-sequence does not cut the fade short. The
// wait is bounded by the time left until the scheduled start plus one
// fade.
func (o *Orchestrator) awaitStartSequence(f *flow) {
	var (
		triggered bool
		done      bool
		startAt   int64
	)
	if !o.update(f, func(s *flowState) {
		triggered = s.startSequenceTriggered
		done = s.startSequenceDone
		startAt = s.startAt
	}) || !triggered || done {
		return
	}

	limit := o.config.StartCueDelay + o.config.FadeDuration
	if startAt != 0 {
		limit = clock.Remaining(o.clock, time.UnixMilli(startAt)) + o.config.FadeDuration
	}
	select {
	case <-f.sequenceDone:
	case <-f.ctx.Done():
	case <-o.clock.After(limit):
		o.logger.Warn("start sequence still running at handoff", "flow_id", f.id, "waited", limit)
	}
}
