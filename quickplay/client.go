// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/relay"
)

// becomeClient records the client role for a joined record and starts
// the client activities.
func (o *Orchestrator) becomeClient(f *flow, participant string, record *directory.Record) {
	ok := o.update(f, func(s *flowState) {
		s.role = RoleClient
		s.phase = PhaseWaitingToStart
		s.recordID = record.ID
	})
	if !ok {
		if err := o.directory.Leave(context.WithoutCancel(f.ctx), record.ID, participant); err != nil {
			o.logger.Warn("leaving abandoned lobby failed", "record_id", record.ID, "error", err)
		}
		return
	}
	o.writeMarker(f, RoleClient, record.ID, participant)
	o.setStatus(f, "Lobby: syncing...")
	o.observe(f, record)

	o.watchRuntime(f)
	o.spawn(f, "client_poll", o.clientPoll)
}

// clientPoll follows the record until the flow completes or the lobby
// is lost. It starts the relay connection once a join token appears
// and the start sequence once the lobby is starting.
func (o *Orchestrator) clientPoll(f *flow) {
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
			if !o.clientPollFailed(f, err) {
				return
			}
			continue
		}

		var (
			participant string
			lobbyStatus string
			start       bool
			handoff     bool
			connect     bool
		)
		state := record.State()
		startAt, _ := record.StartAt()
		text := o.clientLobbyStatus(record, state, startAt)
		o.update(f, func(s *flowState) {
			s.pollFaults = 0
			participant = s.participantID
			if record.JoinToken() != "" && !s.clientConnectStarted {
				s.clientConnectStarted = true
				connect = true
			}
			if text != s.lobbyStatus {
				s.lobbyStatus = text
				lobbyStatus = text
			}
			switch {
			case state != directory.StateStarting && state != directory.StateInGame:
			case !s.startSequenceTriggered:
				s.startSequenceTriggered = true
				s.phase = PhaseStarting
				start = true
			case state == directory.StateInGame && s.startSequenceDone:
				handoff = true
			}
		})
		if record.IndexOf(participant) < 0 {
			o.setStatus(f, "Client: lobby lost. Canceling...")
			o.fault(f, &Fault{Kind: FaultSessionLost, Op: OpPoll, Err: errNotMember}, true)
			return
		}
		if !o.observe(f, record) {
			return
		}
		if lobbyStatus != "" {
			o.setStatus(f, lobbyStatus)
		}

		if connect {
			token := record.JoinToken()
			o.spawn(f, "connect", func(f *flow) { o.connect(f, token) })
		}
		if start {
			cueDelay := o.cueDelay(startAt)
			o.logger.Info("lobby starting",
				"flow_id", f.id,
				"record_id", recordID,
				"state", string(state),
				"start_at", startAt,
			)
			o.spawn(f, "start_sequence", func(f *flow) { o.playStartSequence(f, cueDelay) })
		}
		if handoff {
			o.handoff(f, o.config.GameplayScene)
			return
		}
	}
}

// clientLobbyStatus is the status line for a polled record: the lobby
// state while waiting, then a countdown to the scheduled start.
func (o *Orchestrator) clientLobbyStatus(record *directory.Record, state directory.State, startAt int64) string {
	players := len(record.Participants)
	switch state {
	case directory.StateStarting, directory.StateInGame:
		var remaining time.Duration
		if startAt != 0 {
			remaining = clock.Remaining(o.clock, time.UnixMilli(startAt))
		}
		if remaining <= 0 {
			return "Starting match..."
		}
		return fmt.Sprintf("Lobby: %d/%d | start in %ds", players, record.Capacity, ceilSeconds(remaining))
	default:
		return fmt.Sprintf("Lobby: %d/%d | state: %s", players, record.Capacity, state)
	}
}

// clientPollFailed counts a failed poll. Returns false once the lobby
// is considered lost and the flow is being cancelled.
func (o *Orchestrator) clientPollFailed(f *flow, err error) bool {
	fault := directoryFault(OpPoll, err)
	if fault.Kind == FaultSessionLost {
		o.setStatus(f, "Client: lobby lost. Canceling...")
		o.fault(f, fault, true)
		return false
	}

	var failures int
	o.update(f, func(s *flowState) {
		s.pollFaults++
		failures = s.pollFaults
	})
	o.logger.Warn("lobby poll failed",
		"flow_id", f.id,
		"consecutive_failures", failures,
		"threshold", o.config.ClientFaultThreshold,
		"error", err,
	)
	if failures >= o.config.ClientFaultThreshold {
		o.setStatus(f, "Client: lobby lost. Canceling...")
		o.fault(f, &Fault{
			Kind: FaultSessionLost,
			Op:   OpPoll,
			Err:  fmt.Errorf("%d consecutive poll failures: %w", failures, err),
		}, true)
		return false
	}

	o.setStatus(f, fmt.Sprintf("Lobby error (%d/%d): %v", failures, o.config.ClientFaultThreshold, err))
	return o.sleep(f, o.config.ClientFaultDelay)
}

// connect joins the host's relay allocation. Failure cancels the flow.
func (o *Orchestrator) connect(f *flow, token string) {
	o.setStatus(f, "Client: connecting...")

	join, err := o.provisioner.Join(f.ctx, token)
	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.setStatus(f, "Client: Relay join failed")
		o.fault(f, &Fault{Kind: FaultTransientProvisioning, Op: OpRelayJoin, Err: err}, true)
		return
	}
	if err := o.runtime.StartClient(f.ctx, join); err != nil {
		if f.ctx.Err() != nil {
			return
		}
		o.setStatus(f, "Client: Relay join failed")
		o.fault(f, &Fault{Kind: FaultTransientProvisioning, Op: OpRelayJoin, Err: err}, true)
		return
	}
	if !o.update(f, func(s *flowState) { s.runtimeStarted = true }) {
		o.shutdownRuntime(f)
		return
	}
	o.logger.Info("relay client started", "flow_id", f.id, "allocation_id", join.AllocationID)
}

// watchRuntime subscribes to relay events and follows them for the
// lifetime of the flow. The subscription exists before watchRuntime
// returns, so no event from a runtime started afterwards is missed.
func (o *Orchestrator) watchRuntime(f *flow) {
	events, unsubscribe := o.runtime.Subscribe()
	o.spawn(f, "events", func(f *flow) {
		defer unsubscribe()
		o.followEvents(f, events)
	})
}

func (o *Orchestrator) followEvents(f *flow, events <-chan relay.Event) {
	for {
		select {
		case <-f.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !o.handleEvent(f, event) {
				return
			}
		}
	}
}

// handleEvent reacts to one relay event. Returns false when the flow
// is over for this watcher.
func (o *Orchestrator) handleEvent(f *flow, event relay.Event) bool {
	var (
		role        Role
		participant string
	)
	o.mu.Lock()
	role = o.state.role
	participant = o.state.participantID
	o.mu.Unlock()

	o.logger.Debug("relay event",
		"flow_id", f.id,
		"event", event.Type.String(),
		"participant", event.Participant,
		"scene", event.Scene,
	)
	if role != RoleClient {
		return true
	}

	switch event.Type {
	case relay.EventConnected:
		if event.Participant == participant {
			o.setStatus(f, "Client: connected to host")
		}
	case relay.EventDisconnected:
		if event.Participant == participant {
			o.setStatus(f, "Client: disconnected")
			o.fault(f, &Fault{
				Kind: FaultSessionLost,
				Op:   OpConnection,
				Err:  errHostConnectionLost,
			}, true)
			return false
		}
	case relay.EventSceneLoad:
		scene := event.Scene
		if scene == "" {
			scene = o.config.GameplayScene
		}
		o.handoff(f, scene)
		return false
	}
	return true
}

// handoff completes a client flow and loads the gameplay scene once
// a running start sequence has finished. The scene event and an
// in_game poll can both arrive; only the first loads the scene.
func (o *Orchestrator) handoff(f *flow, scene string) {
	o.awaitStartSequence(f)
	if o.complete(f) {
		o.present(nil, func(p Presenter) { p.LoadGameplayScene(scene) })
	}
}
