// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/quickplay"
)

// Bridge implements [quickplay.Presenter] by sending messages to a
// bubbletea program running a [Model].
//
// The bridge must exist before the orchestrator (which takes it as a
// dependency) and the program (which needs the orchestrator as its
// controller). Call SetProgram once the program is created; calls made
// before that are dropped.
type Bridge struct {
	program atomic.Pointer[tea.Program]
}

var _ quickplay.Presenter = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{}
}

// SetProgram sets the program that receives presenter calls. Safe to
// call from any goroutine.
func (bridge *Bridge) SetProgram(program *tea.Program) {
	bridge.program.Store(program)
}

// send delivers message, reporting false when no program is set.
// After the program exits, Send returns without delivering.
func (bridge *Bridge) send(message tea.Msg) bool {
	program := bridge.program.Load()
	if program == nil {
		return false
	}
	program.Send(message)
	return true
}

func (bridge *Bridge) SetStatus(text string) {
	bridge.send(statusMsg{text: text})
}

func (bridge *Bridge) ApplyPreview(slots []quickplay.PreviewSlot, state directory.State) {
	bridge.send(previewMsg{slots: slices.Clone(slots), state: state})
}

func (bridge *Bridge) ClearPreview() {
	bridge.send(clearPreviewMsg{})
}

// FadeTo starts the overlay transition and waits for the model to
// finish it. Returns ctx's error if ctx ends first, which is also how
// a wait on an exited program ends.
func (bridge *Bridge) FadeTo(ctx context.Context, opacity float64, duration time.Duration) error {
	done := make(chan struct{})
	if !bridge.send(fadeMsg{opacity: opacity, duration: duration, done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bridge *Bridge) PlayStartCue(slot int) {
	bridge.send(cueMsg{slot: slot})
}

func (bridge *Bridge) LoadGameplayScene(name string) {
	bridge.send(sceneMsg{name: name})
}
