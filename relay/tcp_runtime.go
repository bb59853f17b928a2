// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultHandshakeTimeout bounds the hello/welcome exchange.
const DefaultHandshakeTimeout = 5 * time.Second

type runtimeRole int

const (
	roleIdle runtimeRole = iota
	roleHost
	roleClient
)

// TCPRuntime runs a session over direct TCP connections. A host
// accepts clients on the allocation's listener; a client keeps one
// connection to the host.
type TCPRuntime struct {
	participant      string
	handshakeTimeout time.Duration
	logger           *slog.Logger
	hub              *eventHub

	mu   sync.Mutex
	role runtimeRole

	// Host state.
	allocation *Allocation
	peers      map[string]*frameConn
	scene      string

	// Client state.
	host      *frameConn
	connected bool
	count     int

	workers sync.WaitGroup
}

// TCPRuntimeOptions configures a TCPRuntime.
type TCPRuntimeOptions struct {
	// Participant is the local participant id, sent in hello frames.
	Participant      string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// NewTCPRuntime returns an idle runtime.
func NewTCPRuntime(options TCPRuntimeOptions) *TCPRuntime {
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &TCPRuntime{
		participant:      options.Participant,
		handshakeTimeout: options.HandshakeTimeout,
		logger:           options.Logger,
		hub:              newEventHub(),
	}
}

// SetParticipant sets the id announced in hello frames. The participant
// binary only learns it after sign-in.
func (r *TCPRuntime) SetParticipant(participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participant = participant
}

func (r *TCPRuntime) Subscribe() (<-chan Event, func()) {
	return r.hub.subscribe()
}

func (r *TCPRuntime) publish(event Event) {
	if !r.hub.publish(event) {
		r.logger.Warn("relay event dropped by slow subscriber",
			"event", event.Type.String(),
			"participant", event.Participant,
		)
	}
}

func (r *TCPRuntime) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role == roleHost || (r.role == roleClient && r.connected)
}

func (r *TCPRuntime) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.role {
	case roleHost:
		return len(r.peers) + 1
	case roleClient:
		if r.connected {
			return r.count
		}
	}
	return 0
}

// StartHost begins accepting clients on the allocation's listener.
func (r *TCPRuntime) StartHost(ctx context.Context, allocation *Allocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if allocation == nil || allocation.listener == nil {
		return errors.New("relay: allocation has no listener")
	}

	r.mu.Lock()
	if r.role != roleIdle {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.role = roleHost
	r.allocation = allocation
	r.peers = make(map[string]*frameConn)
	r.scene = ""
	participant := r.participant
	r.workers.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.workers.Done()
		r.acceptLoop(allocation)
	}()

	r.logger.Info("relay host started",
		"allocation_id", allocation.ID,
		"address", allocation.listener.Addr().String(),
	)
	r.publish(Event{Type: EventConnected, Participant: participant})
	return nil
}

func (r *TCPRuntime) acceptLoop(allocation *Allocation) {
	for {
		conn, err := allocation.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Warn("relay accept failed", "error", err)
			}
			return
		}
		r.workers.Add(1)
		go func() {
			defer r.workers.Done()
			r.servePeer(allocation, newFrameConn(conn))
		}()
	}
}

// admitPeer validates a hello and registers the peer. Returns the
// welcome frame or a rejection reason.
func (r *TCPRuntime) admitPeer(allocation *Allocation, hello frame, peer *frameConn) (frame, string) {
	if hello.Type != frameHello {
		return frame{}, "expected hello"
	}
	if hello.Participant == "" {
		return frame{}, "missing participant"
	}
	if hello.AllocationID != allocation.ID ||
		subtle.ConstantTimeCompare(hello.Secret, allocation.secret) != 1 {
		return frame{}, "invalid credentials"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role != roleHost || r.allocation != allocation {
		return frame{}, "session closed"
	}
	if _, exists := r.peers[hello.Participant]; exists {
		return frame{}, "participant already connected"
	}
	if len(r.peers) >= allocation.MaxConnections {
		return frame{}, "session full"
	}

	for _, other := range r.peers {
		if err := other.send(frame{Type: framePeerJoined, Participant: hello.Participant}); err != nil {
			r.logger.Debug("peer_joined broadcast failed", "error", err)
		}
	}
	r.peers[hello.Participant] = peer
	return frame{Type: frameWelcome, Count: len(r.peers) + 1, Scene: r.scene}, ""
}

func (r *TCPRuntime) servePeer(allocation *Allocation, peer *frameConn) {
	defer peer.close()

	peer.conn.SetReadDeadline(time.Now().Add(r.handshakeTimeout))
	hello, err := peer.receive()
	if err != nil {
		r.logger.Debug("relay handshake read failed", "error", err)
		return
	}

	welcome, reason := r.admitPeer(allocation, hello, peer)
	if reason != "" {
		r.logger.Info("relay peer rejected",
			"participant", hello.Participant,
			"reason", reason,
		)
		peer.send(frame{Type: frameReject, Reason: reason})
		return
	}
	if err := peer.send(welcome); err != nil {
		r.logger.Debug("relay welcome failed", "participant", hello.Participant, "error", err)
	}
	peer.conn.SetReadDeadline(time.Time{})

	r.logger.Info("relay peer connected",
		"participant", hello.Participant,
		"connected", welcome.Count,
	)
	r.publish(Event{Type: EventConnected, Participant: hello.Participant})

	// Clients send nothing after hello; a read returns when the
	// connection ends.
	for {
		if _, err := peer.receive(); err != nil {
			break
		}
	}

	r.mu.Lock()
	current := r.peers[hello.Participant] == peer
	if current {
		delete(r.peers, hello.Participant)
		for _, other := range r.peers {
			other.send(frame{Type: framePeerLeft, Participant: hello.Participant})
		}
	}
	r.mu.Unlock()

	if current {
		r.logger.Info("relay peer disconnected", "participant", hello.Participant)
		r.publish(Event{Type: EventDisconnected, Participant: hello.Participant})
	}
}

// StartClient connects to the host named by join and completes the
// handshake.
func (r *TCPRuntime) StartClient(ctx context.Context, join *JoinAllocation) error {
	if join == nil {
		return errors.New("relay: nil join allocation")
	}

	r.mu.Lock()
	if r.role != roleIdle {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.role = roleClient
	participant := r.participant
	r.mu.Unlock()

	host, welcome, err := r.handshake(ctx, join, participant)
	if err != nil {
		r.mu.Lock()
		r.role = roleIdle
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	if r.role != roleClient {
		// Shut down while handshaking.
		r.mu.Unlock()
		host.close()
		return errors.New("relay: runtime shut down during connect")
	}
	r.host = host
	r.connected = true
	r.count = welcome.Count
	r.workers.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.workers.Done()
		r.readHost(host, participant)
	}()

	r.logger.Info("relay client connected",
		"address", join.Address,
		"connected", welcome.Count,
	)
	r.publish(Event{Type: EventConnected, Participant: participant})
	if welcome.Scene != "" {
		r.publish(Event{Type: EventSceneLoad, Scene: welcome.Scene})
	}
	return nil
}

func (r *TCPRuntime) handshake(ctx context.Context, join *JoinAllocation, participant string) (*frameConn, frame, error) {
	dialer := net.Dialer{Timeout: r.handshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", join.Address)
	if err != nil {
		return nil, frame{}, fmt.Errorf("relay: connecting to host %s: %w", join.Address, err)
	}
	host := newFrameConn(conn)

	conn.SetDeadline(time.Now().Add(r.handshakeTimeout))
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := host.send(frame{
		Type:         frameHello,
		AllocationID: join.AllocationID,
		Participant:  participant,
		Secret:       join.secret,
	}); err != nil {
		host.close()
		return nil, frame{}, fmt.Errorf("relay: sending hello: %w", err)
	}

	reply, err := host.receive()
	if err != nil {
		host.close()
		if ctx.Err() != nil {
			return nil, frame{}, ctx.Err()
		}
		return nil, frame{}, fmt.Errorf("relay: reading welcome: %w", err)
	}
	switch reply.Type {
	case frameWelcome:
	case frameReject:
		host.close()
		return nil, frame{}, fmt.Errorf("%w: %s", ErrRejected, reply.Reason)
	default:
		host.close()
		return nil, frame{}, fmt.Errorf("relay: unexpected %q frame during handshake", reply.Type)
	}

	conn.SetDeadline(time.Time{})
	return host, reply, nil
}

func (r *TCPRuntime) readHost(host *frameConn, participant string) {
	for {
		f, err := host.receive()
		if err != nil {
			break
		}

		switch f.Type {
		case framePeerJoined:
			r.mu.Lock()
			r.count++
			r.mu.Unlock()
			r.publish(Event{Type: EventConnected, Participant: f.Participant})
		case framePeerLeft:
			r.mu.Lock()
			r.count = max(r.count-1, 1)
			r.mu.Unlock()
			r.publish(Event{Type: EventDisconnected, Participant: f.Participant})
		case frameScene:
			r.logger.Info("relay scene change from host", "scene", f.Scene)
			r.publish(Event{Type: EventSceneLoad, Scene: f.Scene})
		default:
			r.logger.Debug("ignoring relay frame", "type", f.Type)
		}
	}

	r.mu.Lock()
	lost := r.host == host && r.connected
	if lost {
		r.connected = false
	}
	r.mu.Unlock()

	if lost {
		r.logger.Warn("relay connection to host lost")
		r.publish(Event{Type: EventDisconnected, Participant: participant})
	}
}

// LoadScene broadcasts a scene change to every connected client.
func (r *TCPRuntime) LoadScene(ctx context.Context, scene string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.role != roleHost {
		r.mu.Unlock()
		return ErrNotHost
	}
	r.scene = scene
	participant := r.participant
	for id, peer := range r.peers {
		if err := peer.send(frame{Type: frameScene, Scene: scene}); err != nil {
			r.logger.Warn("scene change not delivered", "participant", id, "error", err)
		}
	}
	r.mu.Unlock()

	r.logger.Info("relay scene loaded", "scene", scene)
	r.publish(Event{Type: EventSceneLoad, Participant: participant, Scene: scene})
	return nil
}

// Shutdown closes the listener and every connection, then waits for
// the runtime's goroutines to exit.
func (r *TCPRuntime) Shutdown() error {
	r.mu.Lock()
	if r.role == roleIdle {
		r.mu.Unlock()
		return nil
	}
	wasHost := r.role == roleHost
	r.role = roleIdle

	if r.allocation != nil {
		r.allocation.Release()
		r.allocation = nil
	}
	for _, peer := range r.peers {
		peer.close()
	}
	r.peers = nil
	if r.host != nil {
		r.host.close()
		r.host = nil
	}
	r.connected = false
	r.count = 0
	r.mu.Unlock()

	r.workers.Wait()
	r.logger.Info("relay runtime shut down", "was_host", wasHost)
	return nil
}
