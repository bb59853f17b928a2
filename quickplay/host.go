// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
)

// recordWriteAttempts bounds retries of the host's record writes. The
// join token and state transitions must land; the directory may be
// briefly unavailable.
const recordWriteAttempts = 3

// becomeHost records the host role for a freshly created record and
// starts the host activities.
func (o *Orchestrator) becomeHost(f *flow, participant string, record *directory.Record) {
	ok := o.update(f, func(s *flowState) {
		s.role = RoleHost
		s.phase = PhaseProvisioning
		s.recordID = record.ID
	})
	if !ok {
		// Cancelled between Create and here; the record has no owner
		// left to delete it.
		if err := o.directory.Delete(context.WithoutCancel(f.ctx), record.ID); err != nil {
			o.logger.Warn("deleting abandoned lobby failed", "record_id", record.ID, "error", err)
		}
		return
	}
	o.logger.Info("hosting lobby",
		"flow_id", f.id,
		"record_id", record.ID,
		"capacity", record.Capacity,
	)
	o.writeMarker(f, RoleHost, record.ID, participant)
	o.observe(f, record)

	o.watchRuntime(f)
	o.spawn(f, "heartbeat", o.heartbeat)
	o.spawn(f, "host_poll", o.hostPoll)
	o.spawn(f, "provision", o.provision)
}

// heartbeat keeps the record alive until the flow ends.
func (o *Orchestrator) heartbeat(f *flow) {
	recordID := o.recordID()
	ticker := o.clock.NewTicker(o.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
		}

		err := o.directory.Heartbeat(f.ctx, recordID)
		if err == nil {
			continue
		}
		if f.ctx.Err() != nil {
			return
		}
		fault := directoryFault(OpHeartbeat, err)
		if fault.Kind == FaultSessionLost {
			o.fault(f, fault, true)
			return
		}
		o.logger.Warn("lobby heartbeat failed", "flow_id", f.id, "record_id", recordID, "error", err)
	}
}

// hostPoll refreshes the cached record and the preview, and shows the
// countdown once the relay is up.
func (o *Orchestrator) hostPoll(f *flow) {
	recordID := o.recordID()
	ticker := o.clock.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
		}

		record, err := o.directory.Get(f.ctx, recordID)
		if err != nil {
			if f.ctx.Err() != nil {
				return
			}
			fault := directoryFault(OpPoll, err)
			if fault.Kind == FaultSessionLost {
				o.fault(f, fault, true)
				return
			}
			o.update(f, func(s *flowState) { s.pollFaults++ })
			o.logger.Debug("host poll failed", "flow_id", f.id, "error", err)
			o.setStatus(f, "Lobby error: "+err.Error())
			continue
		}

		var (
			countdownEnd time.Time
			triggered    bool
		)
		o.update(f, func(s *flowState) {
			s.pollFaults = 0
			countdownEnd = s.countdownEnd
			triggered = s.startSequenceTriggered
		})
		if !o.observe(f, record) {
			return
		}
		switch {
		case triggered:
		case countdownEnd.IsZero():
			o.setStatus(f, fmt.Sprintf("Creating relay... %d/%d", len(record.Participants), record.Capacity))
		default:
			remaining := clock.Remaining(o.clock, countdownEnd)
			o.setStatus(f, fmt.Sprintf("Searching... %d/%d | start in %ds",
				len(record.Participants), record.Capacity, ceilSeconds(remaining)))
		}
	}
}

// provision allocates the relay, publishes the join token, starts the
// runtime as host, counts down, and then starts the match.
func (o *Orchestrator) provision(f *flow) {
	recordID := o.recordID()
	o.setStatus(f, "Host: creating relay...")

	// The host is not one of the allocation's connections.
	allocation, err := o.provisioner.Allocate(f.ctx, o.config.Capacity-1)
	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, &Fault{Kind: FaultTransientProvisioning, Op: OpAllocate, Err: err}, true)
		return
	}
	if !o.update(f, func(s *flowState) { s.allocation = allocation }) {
		allocation.Release()
		return
	}

	if err := o.writeRecord(f, recordID, map[string]string{
		directory.KeyJoinToken: allocation.JoinToken,
	}); err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, directoryFault(OpUpdate, err), true)
		return
	}

	if err := o.runtime.StartHost(f.ctx, allocation); err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, &Fault{Kind: FaultTransientProvisioning, Op: OpStartRuntime, Err: err}, true)
		return
	}
	countdownEnd := o.clock.Now().Add(o.config.QuickPlayDuration)
	started := o.update(f, func(s *flowState) {
		s.runtimeStarted = true
		s.allocation = nil
		s.countdownEnd = countdownEnd
	})
	if !started {
		// Cancelled while starting: cleanup may have read the state
		// before the runtime came up.
		o.shutdownRuntime(f)
		return
	}
	o.logger.Info("relay host started, counting down",
		"flow_id", f.id,
		"allocation_id", allocation.ID,
		"countdown", o.config.QuickPlayDuration,
	)
	o.setStatus(f, "Host: waiting for players...")

	if !o.sleep(f, o.config.QuickPlayDuration) {
		return
	}
	o.startMatch(f, recordID)
}

// startMatch moves the lobby to starting, plays the start sequence,
// and hands every participant to the gameplay scene.
func (o *Orchestrator) startMatch(f *flow, recordID string) {
	// Clients schedule their start sequence to end at startAt.
	startAt := clock.UnixMilli(o.clock) + (o.config.StartCueDelay + o.config.FadeDuration).Milliseconds()
	if !o.update(f, func(s *flowState) { s.phase = PhaseStarting }) {
		return
	}

	if err := o.writeRecord(f, recordID, map[string]string{
		directory.KeyState:   string(directory.StateStarting),
		directory.KeyStartAt: strconv.FormatInt(startAt, 10),
	}); err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, directoryFault(OpUpdate, err), true)
		return
	}

	var players int
	o.update(f, func(s *flowState) {
		s.recordState = directory.StateStarting
		s.startAt = startAt
		players = s.players
	})
	o.logger.Info("match starting",
		"flow_id", f.id,
		"record_id", recordID,
		"players", players,
		"start_at", startAt,
	)

	if !o.startSequence(f) {
		return
	}
	// Clients fade out by startAt; the scene loads no earlier.
	if !o.sleep(f, clock.Remaining(o.clock, time.UnixMilli(startAt))) {
		return
	}
	o.awaitConnections(f, players)

	if err := o.runtime.LoadScene(f.ctx, o.config.GameplayScene); err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.fault(f, &Fault{Kind: FaultTransientProvisioning, Op: OpLoadScene, Err: err}, true)
		return
	}
	o.present(f, func(p Presenter) { p.LoadGameplayScene(o.config.GameplayScene) })

	if err := o.writeRecord(f, recordID, map[string]string{
		directory.KeyState: string(directory.StateInGame),
	}); err != nil {
		// Clients follow the scene load, not the record.
		o.logger.Warn("writing in_game state failed", "flow_id", f.id, "record_id", recordID, "error", err)
	}
	o.complete(f)
}

// awaitConnections waits until players participants are connected to
// the relay, or ConnectionWait elapses. The count is advisory: the
// match starts either way.
func (o *Orchestrator) awaitConnections(f *flow, players int) {
	deadline := o.clock.Now().Add(o.config.ConnectionWait)
	for {
		connected := o.runtime.ConnectedCount()
		if connected >= players {
			return
		}
		if clock.Remaining(o.clock, deadline) <= 0 {
			o.logger.Warn("starting without every participant connected",
				"flow_id", f.id,
				"connected", connected,
				"players", players,
			)
			return
		}
		if !o.sleep(f, o.config.ConnectionPollInterval) {
			return
		}
	}
}

// writeRecord updates the record, retrying transient failures.
func (o *Orchestrator) writeRecord(f *flow, recordID string, fields map[string]string) error {
	var lastError error
	for attempt := 0; attempt < recordWriteAttempts; attempt++ {
		if attempt > 0 {
			if !o.sleep(f, time.Duration(attempt)*o.config.PollInterval) {
				return f.ctx.Err()
			}
		}

		err := o.directory.Update(f.ctx, recordID, fields)
		if err == nil {
			return nil
		}
		lastError = err
		if !directory.IsTransient(err) {
			return err
		}
		o.logger.Warn("transient lobby update failure, retrying",
			"flow_id", f.id,
			"record_id", recordID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return lastError
}

// ceilSeconds rounds d up to whole seconds for countdowns.
func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (o *Orchestrator) recordID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.recordID
}
