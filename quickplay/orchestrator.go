// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/relay"
)

// Role is the local participant's part in a lobby.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Phase is the orchestrator's step within a flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseSearching
	PhaseProvisioning
	PhaseWaitingToStart
	PhaseStarting
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhaseSearching:
		return "searching"
	case PhaseProvisioning:
		return "provisioning"
	case PhaseWaitingToStart:
		return "waiting_to_start"
	case PhaseStarting:
		return "starting"
	case PhaseCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Snapshot is a copy of the orchestrator's state.
type Snapshot struct {
	Role   Role
	Phase  Phase
	InFlow bool

	ParticipantID string
	RecordID      string

	// Last observed record.
	Players           int
	Capacity          int
	RecordState       directory.State
	StartAtUnixMillis int64

	ConsecutivePollFaults  int
	StartSequenceTriggered bool
	ClientConnectStarted   bool
	RuntimeStarted         bool

	// ActiveTasks counts the flow goroutines still running, including
	// goroutines of flows that already ended.
	ActiveTasks int

	// LastFault is the most recent fault. Kept after the flow ends
	// until the next BeginQuickPlay.
	LastFault *Fault
}

// flow is one BeginQuickPlay attempt. Goroutines belonging to a flow
// run under its context and are tracked by tasks.
type flow struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	// sequenceDone is closed when the start sequence finishes.
	sequenceDone chan struct{}
}

// flowState is reset to its zero value at the end of every flow.
type flowState struct {
	role          Role
	phase         Phase
	participantID string
	recordID      string

	players      int
	capacity     int
	recordState  directory.State
	startAt      int64
	participants []string

	pollFaults             int
	startSequenceTriggered bool
	startSequenceDone      bool
	clientConnectStarted   bool
	runtimeStarted         bool

	// lobbyStatus is the last lobby summary shown by a client.
	lobbyStatus string

	// allocation is held between Allocate and StartHost so that a
	// cancel in between can release it.
	allocation *relay.Allocation

	countdownEnd time.Time
}

// previewSnapshot is the last preview handed to the presenter.
type previewSnapshot struct {
	applied bool
	players int
	state   directory.State
}

// Orchestrator runs quick play flows for one local participant.
type Orchestrator struct {
	config      Config
	identity    Identity
	directory   directory.Directory
	provisioner relay.Provisioner
	runtime     relay.Runtime
	presenter   Presenter
	clock       clock.Clock
	logger      *slog.Logger

	// base is cancelled by Close.
	base       context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	flow        *flow
	nextFlowID  uint64
	state       flowState
	lastFault   *Fault
	activeTasks int
	// cleaning is non-nil while a cancellation runs and is closed
	// when it finishes.
	cleaning chan struct{}
	closed   bool

	// presentMu serializes presenter calls. Never acquired while mu
	// is held.
	presentMu  sync.Mutex
	preview    previewSnapshot
	lastStatus string
}

// New validates the configuration and collaborators and returns an
// idle orchestrator. Failures are *Fault values of kind
// FaultFatalConfiguration.
func New(config Config, deps Dependencies) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, &Fault{Kind: FaultFatalConfiguration, Op: OpConfigure, Err: err}
	}
	if err := deps.validate(); err != nil {
		return nil, &Fault{Kind: FaultFatalConfiguration, Op: OpConfigure, Err: err}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	base, baseCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config:      config,
		identity:    deps.Identity,
		directory:   deps.Directory,
		provisioner: deps.Provisioner,
		runtime:     deps.Runtime,
		presenter:   deps.Presenter,
		clock:       deps.Clock,
		logger:      deps.Logger,
		base:        base,
		baseCancel:  baseCancel,
	}, nil
}

// BeginQuickPlay starts a flow in the background. Returns false
// without doing anything if a flow is already running (including its
// cleanup) or the orchestrator is closed.
func (o *Orchestrator) BeginQuickPlay() bool {
	o.mu.Lock()
	if o.closed || o.flow != nil {
		o.mu.Unlock()
		return false
	}
	o.nextFlowID++
	ctx, cancel := context.WithCancel(o.base)
	f := &flow{id: o.nextFlowID, ctx: ctx, cancel: cancel, sequenceDone: make(chan struct{})}
	o.flow = f
	o.state = flowState{phase: PhaseInitializing}
	o.lastFault = nil
	o.mu.Unlock()

	o.logger.Info("quick play started", "flow_id", f.id)
	o.present(f, func(p Presenter) {
		o.clearPreviewLocked(p)
		o.setStatusLocked(p, "Init services...")
	})
	o.spawn(f, "flow", o.run)
	return true
}

// CancelQuickPlay stops the current flow and cleans up after it:
// goroutines stop, a started relay runtime is shut down, an unstarted
// allocation is released, and the directory record is deleted (host)
// or left (client). Idempotent; with no flow running it only resets the
// presentation. A concurrent call waits for the running cleanup. ctx
// bounds the cleanup's directory calls.
func (o *Orchestrator) CancelQuickPlay(ctx context.Context) {
	o.cancel(ctx, nil, nil)
}

// Close cancels any flow and shuts down the relay runtime, including
// one left running for gameplay after a completed flow. The
// orchestrator cannot be reused.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel(ctx, nil, nil)
	o.baseCancel()
	if o.runtime.Active() {
		if err := o.runtime.Shutdown(); err != nil {
			return fmt.Errorf("shutting down relay runtime: %w", err)
		}
	}
	return nil
}

// State returns a copy of the orchestrator's state.
func (o *Orchestrator) State() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Role:                   o.state.role,
		Phase:                  o.state.phase,
		InFlow:                 o.flow != nil,
		ParticipantID:          o.state.participantID,
		RecordID:               o.state.recordID,
		Players:                o.state.players,
		Capacity:               o.state.capacity,
		RecordState:            o.state.recordState,
		StartAtUnixMillis:      o.state.startAt,
		ConsecutivePollFaults:  o.state.pollFaults,
		StartSequenceTriggered: o.state.startSequenceTriggered,
		ClientConnectStarted:   o.state.clientConnectStarted,
		RuntimeStarted:         o.state.runtimeStarted,
		ActiveTasks:            o.activeTasks,
		LastFault:              o.lastFault,
	}
}

// spawn runs fn as a goroutine of flow f.
func (o *Orchestrator) spawn(f *flow, name string, fn func(*flow)) {
	o.mu.Lock()
	o.activeTasks++
	o.mu.Unlock()
	f.tasks.Add(1)

	go func() {
		defer func() {
			o.mu.Lock()
			o.activeTasks--
			o.mu.Unlock()
			f.tasks.Done()
		}()
		fn(f)
		o.logger.Debug("flow task finished", "flow_id", f.id, "task", name)
	}()
}

// current reports whether f is the running flow and not being
// cancelled. Callers hold mu.
func (o *Orchestrator) currentLocked(f *flow) bool {
	return o.flow == f && o.cleaning == nil && f.ctx.Err() == nil
}

func (o *Orchestrator) isCurrent(f *flow) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentLocked(f)
}

// update applies fn to the flow state if f is current.
func (o *Orchestrator) update(f *flow, fn func(*flowState)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(f) {
		return false
	}
	fn(&o.state)
	return true
}

// present runs fn against the presenter. For a non-nil f the call is
// dropped once f stops being current, so a stopped flow cannot
// overwrite the presentation left by cleanup.
func (o *Orchestrator) present(f *flow, fn func(Presenter)) {
	o.presentMu.Lock()
	defer o.presentMu.Unlock()
	if f != nil && !o.isCurrent(f) {
		return
	}
	fn(o.presenter)
}

func (o *Orchestrator) setStatus(f *flow, text string) {
	o.present(f, func(p Presenter) { o.setStatusLocked(p, text) })
}

// setStatusLocked skips repeats of the current status. Callers hold
// presentMu.
func (o *Orchestrator) setStatusLocked(p Presenter, text string) {
	if text == o.lastStatus {
		return
	}
	o.lastStatus = text
	p.SetStatus(text)
}

func (o *Orchestrator) clearPreviewLocked(p Presenter) {
	o.preview = previewSnapshot{}
	p.ClearPreview()
}

// fault records a fault against f and, when cancel is set, cancels the
// flow in the background. Activities call this and return; the
// cancellation waits for them.
func (o *Orchestrator) fault(f *flow, fault *Fault, cancel bool) {
	o.mu.Lock()
	if o.flow != f {
		o.mu.Unlock()
		return
	}
	o.lastFault = fault
	o.mu.Unlock()

	o.logger.Warn("quick play fault",
		"flow_id", f.id,
		"kind", fault.Kind.String(),
		"op", fault.Op,
		"error", fault.Err,
		"cancel", cancel,
	)
	if cancel {
		go o.cancel(o.base, f, fault)
	}
}

// cleanupSnapshot is the state cleanup acts on.
type cleanupSnapshot struct {
	role           Role
	recordID       string
	participantID  string
	runtimeStarted bool
	allocation     *relay.Allocation
}

// cancel tears down flow target (the current flow when nil). fault,
// when set, decides the final status text.
func (o *Orchestrator) cancel(ctx context.Context, target *flow, fault *Fault) {
	o.mu.Lock()
	if cleaning := o.cleaning; cleaning != nil {
		o.mu.Unlock()
		if target != nil {
			return
		}
		select {
		case <-cleaning:
		case <-ctx.Done():
		}
		return
	}
	f := o.flow
	if f == nil || (target != nil && target != f) {
		o.mu.Unlock()
		if target == nil {
			o.present(nil, func(p Presenter) {
				o.clearPreviewLocked(p)
				o.setStatusLocked(p, "Ready.")
			})
		}
		return
	}
	cleaned := make(chan struct{})
	o.cleaning = cleaned
	o.state.phase = PhaseCleanup
	o.mu.Unlock()

	o.logger.Info("cancelling quick play", "flow_id", f.id, "fault", fault != nil)
	f.cancel()
	o.waitForTasks(ctx, f)

	o.mu.Lock()
	snapshot := cleanupSnapshot{
		role:           o.state.role,
		recordID:       o.state.recordID,
		participantID:  o.state.participantID,
		runtimeStarted: o.state.runtimeStarted,
		allocation:     o.state.allocation,
	}
	o.mu.Unlock()

	o.cleanup(ctx, f, snapshot)

	status := "Ready."
	if fault != nil {
		status = fault.status()
	}
	o.present(nil, func(p Presenter) {
		o.clearPreviewLocked(p)
		o.setStatusLocked(p, status)
	})

	o.mu.Lock()
	o.state = flowState{}
	o.flow = nil
	o.cleaning = nil
	o.mu.Unlock()
	close(cleaned)
	o.logger.Info("quick play cancelled", "flow_id", f.id)
}

// waitForTasks waits for f's goroutines, bounded by CancelWait.
func (o *Orchestrator) waitForTasks(ctx context.Context, f *flow) {
	done := make(chan struct{})
	go func() {
		f.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-o.clock.After(o.config.CancelWait):
		o.logger.Warn("flow tasks still running after cancel wait, cleaning up anyway",
			"flow_id", f.id,
			"cancel_wait", o.config.CancelWait,
		)
	case <-ctx.Done():
	}
}

// cleanup releases the flow's relay resources and its place in the
// directory. Errors are logged; cleanup always runs to the end.
func (o *Orchestrator) cleanup(ctx context.Context, f *flow, snapshot cleanupSnapshot) {
	if snapshot.runtimeStarted || o.runtime.Active() {
		o.shutdownRuntime(f)
	} else if snapshot.allocation != nil {
		snapshot.allocation.Release()
	}

	if snapshot.recordID != "" {
		var err error
		switch snapshot.role {
		case RoleHost:
			err = o.directory.Delete(ctx, snapshot.recordID)
		case RoleClient:
			err = o.directory.Leave(ctx, snapshot.recordID, snapshot.participantID)
		}
		switch {
		case err == nil:
			o.logger.Info("left lobby",
				"flow_id", f.id,
				"record_id", snapshot.recordID,
				"role", snapshot.role.String(),
			)
		case directory.IsCode(err, directory.CodeNotFound):
		default:
			o.logger.Warn("directory cleanup failed",
				"flow_id", f.id,
				"record_id", snapshot.recordID,
				"role", snapshot.role.String(),
				"error", err,
			)
		}
	}
	o.clearMarker()
}

func (o *Orchestrator) shutdownRuntime(f *flow) {
	if err := o.runtime.Shutdown(); err != nil {
		o.logger.Warn("relay runtime shutdown failed", "flow_id", f.id, "error", err)
	}
}

// complete ends flow f after a successful handoff to gameplay. The
// relay runtime stays up. Returns false if f had already ended.
func (o *Orchestrator) complete(f *flow) bool {
	o.mu.Lock()
	if !o.currentLocked(f) {
		o.mu.Unlock()
		return false
	}
	role := o.state.role
	recordID := o.state.recordID
	o.state = flowState{}
	o.flow = nil
	o.mu.Unlock()

	f.cancel()
	o.clearMarker()
	o.logger.Info("quick play handed off to gameplay",
		"flow_id", f.id,
		"role", role.String(),
		"record_id", recordID,
	)
	return true
}

// sleep waits d on the orchestrator clock. Returns false if f ended
// first.
func (o *Orchestrator) sleep(f *flow, d time.Duration) bool {
	select {
	case <-f.ctx.Done():
		return false
	case <-o.clock.After(d):
		return true
	}
}
