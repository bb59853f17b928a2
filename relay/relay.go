// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	// ErrNotHost is returned by LoadScene on a runtime that is not
	// hosting.
	ErrNotHost = errors.New("relay: runtime is not hosting")

	// ErrAlreadyActive is returned when starting a runtime that is
	// already running a session.
	ErrAlreadyActive = errors.New("relay: runtime already active")

	// ErrRejected is returned by StartClient when the host refuses the
	// connection (full, wrong secret, duplicate participant).
	ErrRejected = errors.New("relay: connection rejected by host")

	// ErrInvalidToken is returned by Join for a malformed join token.
	ErrInvalidToken = errors.New("relay: invalid join token")
)

// Allocation is a route reserved for a host.
type Allocation struct {
	ID             string
	MaxConnections int
	JoinToken      string

	listener net.Listener
	secret   []byte

	releaseOnce sync.Once
}

// Release frees an allocation that was never handed to StartHost.
// Safe to call more than once, and after StartHost.
func (a *Allocation) Release() {
	a.releaseOnce.Do(func() {
		if a.listener != nil {
			a.listener.Close()
		}
	})
}

// JoinAllocation is a resolved join token, ready for StartClient.
type JoinAllocation struct {
	AllocationID string
	Address      string

	secret []byte
}

// Provisioner allocates routes and resolves join tokens.
type Provisioner interface {
	// Allocate reserves a route accepting up to maxConnections clients.
	Allocate(ctx context.Context, maxConnections int) (*Allocation, error)

	// Join resolves a join token produced by Allocate.
	Join(ctx context.Context, joinToken string) (*JoinAllocation, error)
}

// EventType classifies runtime events.
type EventType int

const (
	// EventConnected: Participant joined the session. A client
	// receives one for itself once the host accepts it.
	EventConnected EventType = iota

	// EventDisconnected: Participant left. A client receives one for
	// itself when it loses the host.
	EventDisconnected

	// EventSceneLoad: the host switched the session to Scene.
	EventSceneLoad
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSceneLoad:
		return "scene_load"
	}
	return "unknown"
}

// Event is a runtime notification.
type Event struct {
	Type        EventType
	Participant string
	Scene       string
}

// Runtime runs one session at a time, as host or client.
type Runtime interface {
	StartHost(ctx context.Context, allocation *Allocation) error
	StartClient(ctx context.Context, join *JoinAllocation) error

	// Shutdown ends the current session. A no-op when idle.
	Shutdown() error

	// Active reports whether a session is running.
	Active() bool

	// ConnectedCount returns the participants in the session, host
	// included. Zero when idle.
	ConnectedCount() int

	// LoadScene switches every participant to scene. Host only.
	LoadScene(ctx context.Context, scene string) error

	// Subscribe returns a channel of events and a function that
	// unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())
}

// eventBuffer is the per-subscriber channel depth.
const eventBuffer = 64

// criticalEventWait bounds how long publish blocks on a full
// subscriber for an event that must not be dropped.
const criticalEventWait = 2 * time.Second

// critical reports whether losing e would leave a subscriber stuck:
// scene loads drive the handoff and disconnects drive cancellation.
func (e Event) critical() bool {
	return e.Type == EventSceneLoad || e.Type == EventDisconnected
}

// eventHub fans events out to subscribers. Ordinary events are dropped
// for a full subscriber; critical events wait up to criticalEventWait.
type eventHub struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	next        int
	dropped     int
	wait        time.Duration
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[int]chan Event), wait: criticalEventWait}
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	channel := make(chan Event, eventBuffer)
	h.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers, id)
			close(channel)
		})
	}
}

// publish returns false if any subscriber missed the event.
func (h *eventHub) publish(event Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	var deadline <-chan time.Time
	delivered := true
	for _, channel := range h.subscribers {
		select {
		case channel <- event:
			continue
		default:
		}
		if event.critical() {
			if deadline == nil {
				timer := time.NewTimer(h.wait)
				defer timer.Stop()
				deadline = timer.C
			}
			select {
			case channel <- event:
				continue
			case <-deadline:
			}
		}
		h.dropped++
		delivered = false
	}
	return delivered
}
