// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/testutil"
	"github.com/bureau-foundation/quickplay/relay"
)

// staticIdentity signs in as a fixed participant.
type staticIdentity struct {
	id  string
	err error
}

func (s staticIdentity) EnsureSignedIn(ctx context.Context) (string, error) {
	return s.id, s.err
}

// recordingPresenter records every presenter call.
type recordingPresenter struct {
	mu       sync.Mutex
	statuses []string
	previews [][]PreviewSlot
	states   []directory.State
	clears   int
	fades    []float64
	cues     []int
	scenes   []string
}

func (p *recordingPresenter) SetStatus(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, text)
}

func (p *recordingPresenter) ApplyPreview(slots []PreviewSlot, state directory.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, slices.Clone(slots))
	p.states = append(p.states, state)
}

func (p *recordingPresenter) ClearPreview() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *recordingPresenter) FadeTo(ctx context.Context, opacity float64, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fades = append(p.fades, opacity)
	return nil
}

func (p *recordingPresenter) PlayStartCue(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cues = append(p.cues, slot)
}

func (p *recordingPresenter) LoadGameplayScene(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scenes = append(p.scenes, name)
}

func (p *recordingPresenter) lastStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return ""
	}
	return p.statuses[len(p.statuses)-1]
}

func (p *recordingPresenter) sawStatus(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.statuses, text)
}

func (p *recordingPresenter) sawStatusPrefix(prefix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.ContainsFunc(p.statuses, func(status string) bool {
		return strings.HasPrefix(status, prefix)
	})
}

func (p *recordingPresenter) clearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

func (p *recordingPresenter) fadeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fades)
}

func (p *recordingPresenter) cueSlots() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.cues)
}

func (p *recordingPresenter) loadedScenes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.scenes)
}

func (p *recordingPresenter) previewCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.previews)
}

func (p *recordingPresenter) lastPreview() []PreviewSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.previews) == 0 {
		return nil
	}
	return p.previews[len(p.previews)-1]
}

// harness wires participants to one in-memory directory and relay
// network under a shared fake clock.
type harness struct {
	t         *testing.T
	clock     *clock.FakeClock
	directory *directory.MemoryDirectory
	network   *relay.MemoryNetwork
}

type participant struct {
	id           string
	orchestrator *Orchestrator
	runtime      *relay.MemoryRuntime
	presenter    *recordingPresenter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	return &harness{
		t:         t,
		clock:     fake,
		directory: directory.NewMemory(directory.MemoryOptions{Clock: fake}),
		network:   relay.NewMemoryNetwork(),
	}
}

func (h *harness) newParticipant(id string, configure func(*Config)) *participant {
	h.t.Helper()
	config := DefaultConfig()
	if configure != nil {
		configure(&config)
	}
	runtime := h.network.NewRuntime("")
	presenter := &recordingPresenter{}
	orchestrator, err := New(config, Dependencies{
		Identity:    staticIdentity{id: id},
		Directory:   h.directory,
		Provisioner: h.network,
		Runtime:     runtime,
		Presenter:   presenter,
		Clock:       h.clock,
	})
	if err != nil {
		h.t.Fatalf("New(%s): %v", id, err)
	}
	h.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		orchestrator.Close(ctx)
	})
	return &participant{id: id, orchestrator: orchestrator, runtime: runtime, presenter: presenter}
}

// advanceUntil moves the fake clock forward in small steps until
// condition holds.
func (h *harness) advanceUntil(what string, condition func() bool) {
	h.t.Helper()
	testutil.Eventually(h.t, 20*time.Second, time.Millisecond, func() bool {
		if condition() {
			return true
		}
		h.clock.Advance(100 * time.Millisecond)
		return false
	}, what)
}

// waitUntil waits for condition without moving the clock.
func (h *harness) waitUntil(what string, condition func() bool) {
	h.t.Helper()
	testutil.Eventually(h.t, 5*time.Second, time.Millisecond, condition, what)
}

// record fetches a record directly from the directory.
func (h *harness) record(id string) *directory.Record {
	h.t.Helper()
	record, err := h.directory.Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Get(%s): %v", id, err)
	}
	return record
}

// becomeHost starts p's flow and waits until it hosts a lobby with a
// running relay.
func (h *harness) becomeHost(p *participant) string {
	h.t.Helper()
	if !p.orchestrator.BeginQuickPlay() {
		h.t.Fatalf("%s: BeginQuickPlay returned false", p.id)
	}
	h.advanceUntil(p.id+" hosting with relay up", func() bool {
		state := p.orchestrator.State()
		return state.Role == RoleHost && state.RuntimeStarted
	})
	return p.orchestrator.State().RecordID
}

// seedLobby creates a lobby owned by a host with no orchestrator, for
// tests that script the host side by hand.
func (h *harness) seedLobby(host string) *directory.Record {
	h.t.Helper()
	record, err := h.directory.Create(context.Background(), directory.CreateRequest{
		HostID:   host,
		Capacity: 8,
	})
	if err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	return record
}

func (h *harness) cancel(p *participant) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.orchestrator.CancelQuickPlay(ctx)
}

// logBuffer collects log output written from several goroutines.
type logBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}
