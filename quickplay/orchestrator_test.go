// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/statefile"
	"github.com/bureau-foundation/quickplay/lib/testutil"
)

func TestEmptyDirectoryBecomesHost(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)

	recordID := h.becomeHost(host)

	record := h.record(recordID)
	if record.State() != directory.StateSearching {
		t.Errorf("record state = %q, want searching", record.State())
	}
	if !slices.Equal(record.Participants, []string{"alpha"}) {
		t.Errorf("participants = %v, want [alpha]", record.Participants)
	}
	if record.Capacity != 8 {
		t.Errorf("capacity = %d, want 8", record.Capacity)
	}
	if record.JoinToken() == "" {
		t.Error("join token not written once relay is up")
	}
	if searches := h.directory.Calls(directory.OpSearch); searches < 2 {
		t.Errorf("search attempts = %d, want several within the search window", searches)
	}
	if !host.presenter.sawStatus("No lobby found. Creating...") {
		t.Errorf("statuses %v missing the create status", host.presenter.statuses)
	}
	if !host.presenter.sawStatus("Searching lobby... attempt 2") {
		t.Errorf("statuses %v missing a retried search", host.presenter.statuses)
	}

	state := host.orchestrator.State()
	if state.Phase != PhaseProvisioning {
		t.Errorf("phase = %v, want provisioning", state.Phase)
	}
	if state.Players != 1 || state.Capacity != 8 {
		t.Errorf("cached lobby %d/%d, want 1/8", state.Players, state.Capacity)
	}
}

func TestSecondParticipantJoins(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	client := h.newParticipant("bravo", nil)

	recordID := h.becomeHost(host)

	if !client.orchestrator.BeginQuickPlay() {
		t.Fatal("client BeginQuickPlay returned false")
	}
	h.advanceUntil("client joined", func() bool {
		return client.orchestrator.State().Role == RoleClient
	})

	record := h.record(recordID)
	if got := len(record.Participants); got != 2 || record.Capacity != 8 {
		t.Fatalf("record shows %d/%d, want 2/8", got, record.Capacity)
	}
	if !slices.Equal(record.Participants, []string{"alpha", "bravo"}) {
		t.Errorf("participants = %v, want join order [alpha bravo]", record.Participants)
	}
	if state := client.orchestrator.State(); state.RecordID != recordID || state.Phase != PhaseWaitingToStart {
		t.Errorf("client state = %+v, want waiting in %s", state, recordID)
	}

	h.advanceUntil("client relay connected", func() bool {
		return client.orchestrator.State().RuntimeStarted && host.runtime.ConnectedCount() == 2
	})
	h.waitUntil("client connected status", func() bool {
		return client.presenter.sawStatus("Client: connected to host")
	})

	h.advanceUntil("host sees both players", func() bool {
		return host.orchestrator.State().Players == 2
	})
	// Preview is applied once per distinct (count, state): one player,
	// then two.
	h.advanceUntil("several more host polls", func() bool {
		return h.directory.Calls(directory.OpGet) > 20
	})
	if got := host.presenter.previewCount(); got != 2 {
		t.Errorf("host previews applied = %d, want 2", got)
	}
	want := []PreviewSlot{{Participant: "alpha", Local: true}, {Participant: "bravo"}}
	if got := host.presenter.lastPreview(); !slices.Equal(got, want) {
		t.Errorf("host preview = %v, want %v", got, want)
	}
	h.waitUntil("host countdown status", func() bool {
		return strings.HasPrefix(host.presenter.lastStatus(), "Searching... 2/8 | start in ")
	})
}

func TestStartSequenceRunsOnce(t *testing.T) {
	h := newHarness(t)
	lobby := h.seedLobby("host")
	client := h.newParticipant("bravo", nil)

	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client joined", func() bool {
		return client.orchestrator.State().Role == RoleClient
	})
	h.advanceUntil("client previewed the lobby", func() bool {
		return client.presenter.previewCount() > 0
	})
	previews := client.presenter.previewCount()

	startAt := h.clock.Now().Add(3 * time.Second).UnixMilli()
	if err := h.directory.Update(context.Background(), lobby.ID, map[string]string{
		directory.KeyState:   string(directory.StateStarting),
		directory.KeyStartAt: strconv.FormatInt(startAt, 10),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	polls := h.directory.Calls(directory.OpGet)
	h.advanceUntil("start sequence finished and three more polls", func() bool {
		return client.presenter.fadeCount() == 1 && h.directory.Calls(directory.OpGet) >= polls+4
	})

	if got := client.presenter.cueSlots(); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("start cues = %v, want one per slot [0 1]", got)
	}
	if got := client.presenter.fadeCount(); got != 1 {
		t.Errorf("fades = %d, want 1", got)
	}
	if got := client.presenter.previewCount(); got != previews {
		t.Errorf("previews = %d after start, want %d (preview frozen once starting)", got, previews)
	}
	if !client.presenter.sawStatusPrefix("Lobby: 2/8 | start in ") {
		t.Errorf("statuses %v missing the start countdown", client.presenter.statuses)
	}

	state := client.orchestrator.State()
	if !state.StartSequenceTriggered || state.Phase != PhaseStarting {
		t.Errorf("state = %+v, want starting with sequence triggered", state)
	}
	if state.StartAtUnixMillis != startAt {
		t.Errorf("StartAtUnixMillis = %d, want %d", state.StartAtUnixMillis, startAt)
	}
	if state.RecordState != directory.StateStarting {
		t.Errorf("RecordState = %q, want starting", state.RecordState)
	}

	h.cancel(client)
	if got := h.record(lobby.ID).Participants; !slices.Equal(got, []string{"host"}) {
		t.Errorf("participants after cancel = %v, want [host]", got)
	}
}

func TestSustainedPollFailuresCancelClient(t *testing.T) {
	h := newHarness(t)
	lobby := h.seedLobby("host")
	client := h.newParticipant("bravo", nil)

	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client joined", func() bool {
		return client.orchestrator.State().Role == RoleClient
	})

	h.directory.InjectFault(directory.OpGet, 6)
	h.advanceUntil("client gave up", func() bool {
		return !client.orchestrator.State().InFlow
	})
	h.waitUntil("flow tasks exited", func() bool {
		return client.orchestrator.State().ActiveTasks == 0
	})

	state := client.orchestrator.State()
	if state.Phase != PhaseIdle || state.Role != RoleNone {
		t.Errorf("state = %+v, want idle with no role", state)
	}
	if state.LastFault == nil || state.LastFault.Kind != FaultSessionLost {
		t.Fatalf("LastFault = %v, want session lost", state.LastFault)
	}
	if !directory.IsCode(state.LastFault, directory.CodeUnavailable) {
		t.Errorf("LastFault %v does not wrap the poll failure", state.LastFault)
	}
	if got := h.record(lobby.ID).Participants; !slices.Equal(got, []string{"host"}) {
		t.Errorf("participants = %v, want client removed", got)
	}
	if !client.presenter.sawStatus("Client: lobby lost. Canceling...") {
		t.Errorf("statuses %v missing the lost status", client.presenter.statuses)
	}
	if !client.presenter.sawStatusPrefix("Lobby error (5/6): ") {
		t.Errorf("statuses %v missing the degraded status", client.presenter.statuses)
	}
	if got := client.presenter.lastStatus(); got != "Lobby lost." {
		t.Errorf("final status = %q, want %q", got, "Lobby lost.")
	}
}

func TestCancelDuringProvisioning(t *testing.T) {
	h := newHarness(t)
	release := h.network.BlockAllocate()
	defer release()
	host := h.newParticipant("alpha", nil)

	host.orchestrator.BeginQuickPlay()
	h.advanceUntil("host provisioning", func() bool {
		state := host.orchestrator.State()
		return state.Role == RoleHost && state.Phase == PhaseProvisioning
	})
	recordID := host.orchestrator.State().RecordID
	h.advanceUntil("pre-relay lobby status", func() bool {
		return host.presenter.sawStatus("Creating relay... 1/8")
	})

	h.cancel(host)

	if _, err := h.directory.Get(context.Background(), recordID); !directory.IsCode(err, directory.CodeNotFound) {
		t.Errorf("Get after cancel: got %v, want not_found", err)
	}
	if got := host.runtime.Shutdowns(); got != 0 {
		t.Errorf("runtime shutdowns = %d, want 0 (never started)", got)
	}
	if got := h.network.Allocations(); got != 0 {
		t.Errorf("allocations = %d, want 0", got)
	}
	state := host.orchestrator.State()
	if state.InFlow || state.Phase != PhaseIdle || state.Role != RoleNone || state.ActiveTasks != 0 {
		t.Errorf("state after cancel = %+v, want idle", state)
	}
	if got := host.presenter.lastStatus(); got != "Ready." {
		t.Errorf("status = %q, want Ready.", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	recordID := h.becomeHost(host)

	h.cancel(host)
	first := host.orchestrator.State()
	clears := host.presenter.clearCount()

	h.cancel(host)
	second := host.orchestrator.State()

	if first != second {
		t.Errorf("state after second cancel = %+v, want %+v", second, first)
	}
	if second.InFlow || second.Phase != PhaseIdle || second.ActiveTasks != 0 {
		t.Errorf("state = %+v, want idle with no tasks", second)
	}
	if got := host.presenter.clearCount(); got != clears+1 {
		t.Errorf("preview clears = %d, want %d", got, clears+1)
	}
	if got := host.presenter.lastStatus(); got != "Ready." {
		t.Errorf("status = %q, want Ready.", got)
	}
	if got := host.runtime.Shutdowns(); got != 1 {
		t.Errorf("runtime shutdowns = %d, want 1", got)
	}
	if _, err := h.directory.Get(context.Background(), recordID); !directory.IsCode(err, directory.CodeNotFound) {
		t.Errorf("record survived cancel: %v", err)
	}
	if calls := h.directory.Calls(directory.OpDelete); calls != 1 {
		t.Errorf("delete calls = %d, want 1", calls)
	}
}

func TestConcurrentCancels(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	h.becomeHost(host)

	done := make(chan struct{})
	for range 3 {
		go func() {
			h.cancel(host)
			done <- struct{}{}
		}()
	}
	for range 3 {
		testutil.RequireReceive(t, done, 5*time.Second, "waiting for cancel to return")
	}
	if calls := h.directory.Calls(directory.OpDelete); calls != 1 {
		t.Errorf("delete calls = %d, want 1", calls)
	}
	if state := host.orchestrator.State(); state.InFlow {
		t.Errorf("still in flow after cancels: %+v", state)
	}
}

func TestBeginIsReentrancyGuarded(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)

	if !host.orchestrator.BeginQuickPlay() {
		t.Fatal("first BeginQuickPlay returned false")
	}
	if host.orchestrator.BeginQuickPlay() {
		t.Error("second BeginQuickPlay started another flow")
	}
	h.advanceUntil("hosting", func() bool {
		return host.orchestrator.State().Role == RoleHost
	})
	if calls := h.directory.Calls(directory.OpCreate); calls != 1 {
		t.Errorf("create calls = %d, want 1", calls)
	}

	h.cancel(host)
	if !host.orchestrator.BeginQuickPlay() {
		t.Error("BeginQuickPlay after cancel returned false")
	}
}

func TestEndToEndHandoff(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	client := h.newParticipant("bravo", nil)

	recordID := h.becomeHost(host)
	client.orchestrator.BeginQuickPlay()

	h.advanceUntil("both handed off", func() bool {
		return len(host.presenter.loadedScenes()) == 1 && len(client.presenter.loadedScenes()) == 1
	})
	h.waitUntil("both flows ended", func() bool {
		return !host.orchestrator.State().InFlow && !client.orchestrator.State().InFlow
	})

	if got := host.presenter.loadedScenes(); got[0] != "MainScene" {
		t.Errorf("host scene = %q, want MainScene", got[0])
	}
	if got := client.presenter.loadedScenes(); got[0] != "MainScene" {
		t.Errorf("client scene = %q, want MainScene", got[0])
	}
	if got := host.presenter.cueSlots(); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("host cues = %v, want [0 1]", got)
	}
	if got := host.presenter.fadeCount(); got != 1 {
		t.Errorf("host fades = %d, want 1", got)
	}
	if got := client.presenter.cueSlots(); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("client cues = %v, want [0 1]", got)
	}
	if got := client.presenter.fadeCount(); got != 1 {
		t.Errorf("client fades = %d, want 1 (full start sequence before the scene)", got)
	}
	if !client.presenter.sawStatusPrefix("Lobby: 2/8 | start in ") {
		t.Errorf("client statuses %v missing the start countdown", client.presenter.statuses)
	}

	record := h.record(recordID)
	if record.State() != directory.StateInGame {
		t.Errorf("record state = %q, want in_game", record.State())
	}
	if _, ok := record.StartAt(); !ok {
		t.Error("record has no start time")
	}

	// The session stays up for gameplay.
	if !host.runtime.Active() || !client.runtime.Active() {
		t.Errorf("runtimes active host=%v client=%v, want both", host.runtime.Active(), client.runtime.Active())
	}
	if host.runtime.Shutdowns() != 0 || client.runtime.Shutdowns() != 0 {
		t.Error("runtime shut down at handoff")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := host.orchestrator.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if host.runtime.Active() {
		t.Error("runtime active after Close")
	}
	if host.orchestrator.BeginQuickPlay() {
		t.Error("BeginQuickPlay after Close started a flow")
	}
}

func TestHostLosesRecord(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	recordID := h.becomeHost(host)

	if err := h.directory.Delete(context.Background(), recordID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	h.advanceUntil("host cancelled", func() bool {
		return !host.orchestrator.State().InFlow
	})

	state := host.orchestrator.State()
	if state.LastFault == nil || state.LastFault.Kind != FaultSessionLost {
		t.Errorf("LastFault = %v, want session lost", state.LastFault)
	}
	if got := host.runtime.Shutdowns(); got != 1 {
		t.Errorf("runtime shutdowns = %d, want 1", got)
	}
}

func TestClientFollowsHostDisconnect(t *testing.T) {
	h := newHarness(t)
	host := h.newParticipant("alpha", nil)
	client := h.newParticipant("bravo", nil)

	recordID := h.becomeHost(host)
	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client connected", func() bool {
		return client.orchestrator.State().RuntimeStarted
	})

	h.cancel(host)
	h.advanceUntil("client cancelled", func() bool {
		return !client.orchestrator.State().InFlow
	})

	if !client.presenter.sawStatus("Client: disconnected") && !client.presenter.sawStatus("Client: lobby lost. Canceling...") {
		t.Errorf("statuses %v show no lost lobby", client.presenter.statuses)
	}
	if fault := client.orchestrator.State().LastFault; fault == nil || fault.Kind != FaultSessionLost {
		t.Errorf("LastFault = %v, want session lost", fault)
	}
	if _, err := h.directory.Get(context.Background(), recordID); !directory.IsCode(err, directory.CodeNotFound) {
		t.Errorf("record survived host cancel: %v", err)
	}
}

func TestRelayJoinFailureCancelsClient(t *testing.T) {
	h := newHarness(t)
	lobby := h.seedLobby("host")
	if err := h.directory.Update(context.Background(), lobby.ID, map[string]string{
		directory.KeyJoinToken: "memory:no-such-allocation",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	client := h.newParticipant("bravo", nil)

	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client cancelled", func() bool {
		state := client.orchestrator.State()
		return state.LastFault != nil && !state.InFlow
	})

	fault := client.orchestrator.State().LastFault
	if fault.Kind != FaultTransientProvisioning || fault.Op != OpRelayJoin {
		t.Errorf("LastFault = %v, want relay join provisioning fault", fault)
	}
	if got := client.presenter.lastStatus(); got != "Client: Relay join failed" {
		t.Errorf("status = %q, want relay join failure", got)
	}
	if got := h.record(lobby.ID).Participants; !slices.Equal(got, []string{"host"}) {
		t.Errorf("participants = %v, want client removed", got)
	}
}

func TestSearchSurvivesJoinRace(t *testing.T) {
	h := newHarness(t)
	first := h.seedLobby("host-1")
	second := h.seedLobby("host-2")
	h.directory.InjectFault(directory.OpJoin, 1)
	client := h.newParticipant("bravo", nil)

	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client joined", func() bool {
		return client.orchestrator.State().Role == RoleClient
	})

	if got := client.orchestrator.State().RecordID; got != second.ID {
		t.Errorf("joined %s, want the second candidate %s", got, second.ID)
	}
	if got := h.record(first.ID).Participants; len(got) != 1 {
		t.Errorf("first lobby participants = %v, want untouched", got)
	}
}

func TestSignInFailure(t *testing.T) {
	h := newHarness(t)
	presenter := &recordingPresenter{}
	orchestrator, err := New(DefaultConfig(), Dependencies{
		Identity:    staticIdentity{err: errors.New("identity service offline")},
		Directory:   h.directory,
		Provisioner: h.network,
		Runtime:     h.network.NewRuntime(""),
		Presenter:   presenter,
		Clock:       h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	orchestrator.BeginQuickPlay()
	h.waitUntil("flow cancelled", func() bool {
		state := orchestrator.State()
		return !state.InFlow && state.LastFault != nil
	})
	if fault := orchestrator.State().LastFault; fault.Op != OpSignIn {
		t.Errorf("fault op = %q, want %q", fault.Op, OpSignIn)
	}
	if calls := h.directory.Calls(directory.OpSearch); calls != 0 {
		t.Errorf("searched %d times without an identity", calls)
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != FaultFatalConfiguration {
		t.Fatalf("New with no collaborators: got %v, want fatal configuration fault", err)
	}

	h := newHarness(t)
	config := DefaultConfig()
	config.Capacity = 1
	_, err = New(config, Dependencies{
		Identity:    staticIdentity{id: "x"},
		Directory:   h.directory,
		Provisioner: h.network,
		Runtime:     h.network.NewRuntime(""),
		Presenter:   &recordingPresenter{},
	})
	if !errors.As(err, &fault) || fault.Kind != FaultFatalConfiguration {
		t.Fatalf("New with capacity 1: got %v, want fatal configuration fault", err)
	}
}

func TestOrphanRecovery(t *testing.T) {
	h := newHarness(t)
	markerPath := filepath.Join(t.TempDir(), "flow.cbor")
	orphan := h.seedLobby("alpha")

	if err := statefile.Write(markerPath, flowMarker{
		RecordID:      orphan.ID,
		ParticipantID: "alpha",
		Role:          RoleHost.String(),
		WrittenAt:     h.clock.Now().Add(-time.Minute).UnixMilli(),
	}); err != nil {
		t.Fatalf("writing marker: %v", err)
	}

	host := h.newParticipant("alpha", func(c *Config) { c.MarkerPath = markerPath })
	recordID := h.becomeHost(host)

	if recordID == orphan.ID {
		t.Fatal("rejoined the orphaned lobby")
	}
	if _, err := h.directory.Get(context.Background(), orphan.ID); !directory.IsCode(err, directory.CodeNotFound) {
		t.Errorf("orphaned lobby still present: %v", err)
	}

	var marker flowMarker
	if err := statefile.Read(markerPath, &marker); err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if marker.RecordID != recordID || marker.Role != "host" {
		t.Errorf("marker = %+v, want host of %s", marker, recordID)
	}

	h.cancel(host)
	if exists, err := statefile.Exists(markerPath); err != nil || exists {
		t.Errorf("marker after cancel: exists=%v err=%v, want removed", exists, err)
	}
}

func TestStaleOrphanMarkerIgnored(t *testing.T) {
	h := newHarness(t)
	markerPath := filepath.Join(t.TempDir(), "flow.cbor")
	other := h.seedLobby("someone-else")

	if err := statefile.Write(markerPath, flowMarker{
		RecordID:      other.ID,
		ParticipantID: "bravo",
		Role:          RoleHost.String(),
		WrittenAt:     h.clock.Now().Add(-time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatalf("writing marker: %v", err)
	}

	client := h.newParticipant("bravo", func(c *Config) { c.MarkerPath = markerPath })
	client.orchestrator.BeginQuickPlay()
	h.advanceUntil("client joined", func() bool {
		return client.orchestrator.State().Role == RoleClient
	})

	if got := client.orchestrator.State().RecordID; got != other.ID {
		t.Errorf("joined %s, want %s", got, other.ID)
	}
	if calls := h.directory.Calls(directory.OpDelete); calls != 0 {
		t.Errorf("stale marker triggered %d deletes", calls)
	}
}
