// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ Provisioner = (*MemoryNetwork)(nil)
	_ Runtime     = (*MemoryRuntime)(nil)
)

const memoryTokenPrefix = "memory:"

// MemoryNetwork is an in-process Provisioner whose allocations are
// served by MemoryRuntime instances created from it. Sessions and
// connections live in memory; events are delivered exactly as the TCP
// runtime delivers them.
type MemoryNetwork struct {
	mu            sync.Mutex
	sessions      map[string]*memorySession
	allocateFault int
	joinFault     int
	allocateGate  chan struct{}
	allocations   int
}

type memorySession struct {
	id             string
	maxConnections int
	host           *MemoryRuntime
	clients        []*MemoryRuntime
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{sessions: make(map[string]*memorySession)}
}

// InjectAllocateFault makes the next count Allocate calls fail.
func (n *MemoryNetwork) InjectAllocateFault(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.allocateFault = count
}

// InjectJoinFault makes the next count Join calls fail.
func (n *MemoryNetwork) InjectJoinFault(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joinFault = count
}

// BlockAllocate makes Allocate wait until the returned function is
// called or the caller's context ends.
func (n *MemoryNetwork) BlockAllocate() (release func()) {
	gate := make(chan struct{})
	n.mu.Lock()
	n.allocateGate = gate
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			if n.allocateGate == gate {
				n.allocateGate = nil
			}
			n.mu.Unlock()
			close(gate)
		})
	}
}

// Allocations returns how many allocations have succeeded.
func (n *MemoryNetwork) Allocations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.allocations
}

func (n *MemoryNetwork) Allocate(ctx context.Context, maxConnections int) (*Allocation, error) {
	n.mu.Lock()
	gate := n.allocateGate
	n.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.allocateFault > 0 {
		n.allocateFault--
		return nil, errors.New("relay: injected allocation fault")
	}
	if maxConnections < 1 {
		return nil, fmt.Errorf("relay: maxConnections must be at least 1, got %d", maxConnections)
	}

	session := &memorySession{id: uuid.NewString(), maxConnections: maxConnections}
	n.sessions[session.id] = session
	n.allocations++
	return &Allocation{
		ID:             session.id,
		MaxConnections: maxConnections,
		JoinToken:      memoryTokenPrefix + session.id,
	}, nil
}

func (n *MemoryNetwork) Join(ctx context.Context, token string) (*JoinAllocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.joinFault > 0 {
		n.joinFault--
		return nil, errors.New("relay: injected join fault")
	}

	id, ok := strings.CutPrefix(token, memoryTokenPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: not a memory token", ErrInvalidToken)
	}
	if _, exists := n.sessions[id]; !exists {
		return nil, fmt.Errorf("%w: unknown allocation %s", ErrInvalidToken, id)
	}
	return &JoinAllocation{AllocationID: id, Address: token}, nil
}

// NewRuntime returns an idle runtime on this network for participant.
func (n *MemoryNetwork) NewRuntime(participant string) *MemoryRuntime {
	return &MemoryRuntime{network: n, participant: participant, hub: newEventHub()}
}

// MemoryRuntime is a Runtime on a MemoryNetwork. All state is guarded
// by the network's mutex.
type MemoryRuntime struct {
	network     *MemoryNetwork
	participant string
	hub         *eventHub

	role          runtimeRole
	session       *memorySession
	shutdowns     int
	shutdownFault bool
}

// Participant returns the runtime's participant id.
func (r *MemoryRuntime) Participant() string { return r.participant }

// SetParticipant changes the participant id used for new sessions.
func (r *MemoryRuntime) SetParticipant(participant string) {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	r.participant = participant
}

// Shutdowns returns how many times Shutdown ended an active session.
func (r *MemoryRuntime) Shutdowns() int {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	return r.shutdowns
}

// InjectShutdownFault makes the next Shutdown of an active session
// report an error. The session still ends.
func (r *MemoryRuntime) InjectShutdownFault() {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	r.shutdownFault = true
}

func (r *MemoryRuntime) Subscribe() (<-chan Event, func()) {
	return r.hub.subscribe()
}

func (r *MemoryRuntime) StartHost(ctx context.Context, allocation *Allocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.network.mu.Lock()
	defer r.network.mu.Unlock()

	if r.role != roleIdle {
		return ErrAlreadyActive
	}
	session, ok := r.network.sessions[allocation.ID]
	if !ok {
		return fmt.Errorf("relay: unknown allocation %s", allocation.ID)
	}
	if session.host != nil {
		return fmt.Errorf("relay: allocation %s already hosted", allocation.ID)
	}
	session.host = r
	r.role = roleHost
	r.session = session
	r.hub.publish(Event{Type: EventConnected, Participant: r.participant})
	return nil
}

func (r *MemoryRuntime) StartClient(ctx context.Context, join *JoinAllocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.network.mu.Lock()
	defer r.network.mu.Unlock()

	if r.role != roleIdle {
		return ErrAlreadyActive
	}
	session, ok := r.network.sessions[join.AllocationID]
	if !ok || session.host == nil {
		return fmt.Errorf("relay: host for allocation %s is not running", join.AllocationID)
	}
	if len(session.clients) >= session.maxConnections {
		return fmt.Errorf("%w: session full", ErrRejected)
	}
	for _, client := range session.clients {
		if client.participant == r.participant {
			return fmt.Errorf("%w: participant already connected", ErrRejected)
		}
	}

	session.clients = append(session.clients, r)
	r.role = roleClient
	r.session = session

	joined := Event{Type: EventConnected, Participant: r.participant}
	session.host.hub.publish(joined)
	for _, client := range session.clients {
		client.hub.publish(joined)
	}
	return nil
}

func (r *MemoryRuntime) Active() bool {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	return r.role != roleIdle
}

func (r *MemoryRuntime) ConnectedCount() int {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	if r.role == roleIdle {
		return 0
	}
	return len(r.session.clients) + 1
}

func (r *MemoryRuntime) LoadScene(ctx context.Context, scene string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.network.mu.Lock()
	defer r.network.mu.Unlock()
	if r.role != roleHost {
		return ErrNotHost
	}
	event := Event{Type: EventSceneLoad, Participant: r.participant, Scene: scene}
	r.hub.publish(event)
	for _, client := range r.session.clients {
		client.hub.publish(event)
	}
	return nil
}

func (r *MemoryRuntime) Shutdown() error {
	r.network.mu.Lock()
	defer r.network.mu.Unlock()

	switch r.role {
	case roleIdle:
		return nil
	case roleHost:
		for _, client := range r.session.clients {
			client.role = roleIdle
			client.session = nil
			client.hub.publish(Event{Type: EventDisconnected, Participant: client.participant})
		}
		delete(r.network.sessions, r.session.id)
	case roleClient:
		session := r.session
		for i, client := range session.clients {
			if client == r {
				session.clients = append(session.clients[:i], session.clients[i+1:]...)
				break
			}
		}
		left := Event{Type: EventDisconnected, Participant: r.participant}
		session.host.hub.publish(left)
		for _, client := range session.clients {
			client.hub.publish(left)
		}
	}
	r.role = roleIdle
	r.session = nil
	r.shutdowns++
	if r.shutdownFault {
		r.shutdownFault = false
		return errors.New("relay: injected shutdown fault")
	}
	return nil
}
