// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"fmt"

	"github.com/bureau-foundation/quickplay/directory"
)

// run is a flow's first goroutine: sign in, search, then hand over to
// the host or client activities.
func (o *Orchestrator) run(f *flow) {
	participant, err := o.identity.EnsureSignedIn(f.ctx)
	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, &Fault{Kind: FaultTransientDirectory, Op: OpSignIn, Err: err}, true)
		return
	}
	if setter, ok := o.runtime.(participantSetter); ok {
		setter.SetParticipant(participant)
	}
	if !o.update(f, func(s *flowState) { s.participantID = participant }) {
		return
	}

	// A runtime left up for gameplay by a previous flow is ended
	// before this flow needs it.
	if o.runtime.Active() {
		o.logger.Info("shutting down relay runtime from previous session", "flow_id", f.id)
		if err := o.runtime.Shutdown(); err != nil {
			o.logger.Warn("relay runtime shutdown failed", "flow_id", f.id, "error", err)
		}
	}

	o.recoverOrphan(f, participant)

	if !o.update(f, func(s *flowState) { s.phase = PhaseSearching }) {
		return
	}
	record, err := o.search(f, participant)
	if err != nil {
		return
	}
	if record != nil {
		o.becomeClient(f, participant, record)
		return
	}

	o.setStatus(f, "No lobby found. Creating...")
	record, err = o.directory.Create(f.ctx, directory.CreateRequest{
		Name:     o.config.SessionName,
		HostID:   participant,
		Capacity: o.config.Capacity,
	})
	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, &Fault{Kind: FaultTransientDirectory, Op: OpCreate, Err: err}, true)
		return
	}
	o.becomeHost(f, participant, record)
}

// search looks for a joinable lobby until SearchWindow elapses,
// pausing SearchRetryDelay between attempts. Candidates are tried in
// the order the directory returns them; losing a join race to a full
// or started lobby moves on to the next one. Returns a nil record when
// nothing was joined, and an error only when f ended.
func (o *Orchestrator) search(f *flow, participant string) (*directory.Record, error) {
	deadline := o.clock.Now().Add(o.config.SearchWindow)
	filter := directory.Filter{
		State:             directory.StateSearching,
		MinAvailableSlots: 1,
		Limit:             o.config.SearchPageSize,
	}

	for attempt := 1; ; attempt++ {
		o.setStatus(f, fmt.Sprintf("Searching lobby... attempt %d", attempt))

		candidates, err := o.directory.Search(f.ctx, filter)
		if err != nil {
			if f.ctx.Err() != nil {
				return nil, f.ctx.Err()
			}
			o.logger.Warn("lobby search failed",
				"flow_id", f.id,
				"attempt", attempt,
				"error", err,
			)
			o.setStatus(f, "Lobby error: "+err.Error())
		}

		for i := range candidates {
			candidate := &candidates[i]
			if candidate.HostID == participant {
				continue
			}
			o.setStatus(f, "Joining lobby...")
			record, err := o.directory.Join(f.ctx, candidate.ID, participant)
			if err == nil {
				o.logger.Info("joined lobby",
					"flow_id", f.id,
					"record_id", record.ID,
					"players", len(record.Participants),
					"capacity", record.Capacity,
				)
				return record, nil
			}
			if f.ctx.Err() != nil {
				return nil, f.ctx.Err()
			}
			o.logger.Debug("lobby join failed, trying next candidate",
				"flow_id", f.id,
				"record_id", candidate.ID,
				"error", err,
			)
		}

		if !o.clock.Now().Add(o.config.SearchRetryDelay).Before(deadline) {
			o.logger.Info("no joinable lobby found",
				"flow_id", f.id,
				"attempts", attempt,
			)
			return nil, nil
		}
		if !o.sleep(f, o.config.SearchRetryDelay) {
			return nil, f.ctx.Err()
		}
	}
}

// observe caches record and refreshes the preview when the player
// count or lobby state changed. Returns false if f is no longer
// current.
func (o *Orchestrator) observe(f *flow, record *directory.Record) bool {
	var (
		participant string
		triggered   bool
	)
	ok := o.update(f, func(s *flowState) {
		s.players = len(record.Participants)
		s.capacity = record.Capacity
		s.recordState = record.State()
		s.participants = append(s.participants[:0], record.Participants...)
		if startAt, present := record.StartAt(); present {
			s.startAt = startAt
		}
		participant = s.participantID
		triggered = s.startSequenceTriggered
	})
	if !ok || triggered {
		return ok
	}

	players := len(record.Participants)
	state := record.State()
	o.present(f, func(p Presenter) {
		if o.preview.applied && o.preview.players == players && o.preview.state == state {
			return
		}
		o.preview = previewSnapshot{applied: true, players: players, state: state}
		slots := make([]PreviewSlot, players)
		for i, id := range record.Participants {
			slots[i] = PreviewSlot{Participant: id, Local: id == participant}
		}
		p.ApplyPreview(slots, state)
	})
	return true
}

// directoryFault classifies a failed directory call made while a lobby
// is held.
func directoryFault(op string, err error) *Fault {
	if directory.IsCode(err, directory.CodeNotFound) {
		return &Fault{Kind: FaultSessionLost, Op: op, Err: err}
	}
	return &Fault{Kind: FaultTransientDirectory, Op: op, Err: err}
}
