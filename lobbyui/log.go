// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/quickplay"
)

// LogPresenter implements [quickplay.Presenter] for headless runs:
// every call becomes a log record, and fades take their full duration
// on the clock without drawing anything.
type LogPresenter struct {
	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	status  string
	opacity float64
	scene   string
	scenes  chan string
}

var _ quickplay.Presenter = (*LogPresenter)(nil)

// NewLogPresenter creates a headless presenter. A nil logger discards
// output; a nil clock uses the real clock.
func NewLogPresenter(logger *slog.Logger, clk clock.Clock) *LogPresenter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &LogPresenter{
		logger: logger,
		clock:  clk,
		scenes: make(chan string, 1),
	}
}

func (presenter *LogPresenter) SetStatus(text string) {
	presenter.mu.Lock()
	presenter.status = text
	presenter.mu.Unlock()
	presenter.logger.Info("quick play status", "status", text)
}

func (presenter *LogPresenter) ApplyPreview(slots []quickplay.PreviewSlot, state directory.State) {
	labels := make([]string, len(slots))
	for index, slot := range slots {
		labels[index] = "PLAYER"
		if slot.Local {
			labels[index] = "YOU"
		}
	}
	presenter.logger.Info("lobby preview",
		"players", len(slots),
		"state", string(state),
		"slots", strings.Join(labels, ","),
	)
}

func (presenter *LogPresenter) ClearPreview() {
	presenter.mu.Lock()
	presenter.opacity = 0
	presenter.mu.Unlock()
	presenter.logger.Debug("lobby preview cleared")
}

func (presenter *LogPresenter) FadeTo(ctx context.Context, opacity float64, duration time.Duration) error {
	presenter.logger.Debug("fading", "opacity", opacity, "duration", duration)
	if duration > 0 {
		select {
		case <-presenter.clock.After(duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	presenter.mu.Lock()
	presenter.opacity = clamp(opacity)
	presenter.mu.Unlock()
	return nil
}

func (presenter *LogPresenter) PlayStartCue(slot int) {
	presenter.logger.Info("start cue", "slot", slot)
}

// LoadGameplayScene records the scene and announces it on
// [LogPresenter.Scenes] without blocking.
func (presenter *LogPresenter) LoadGameplayScene(name string) {
	presenter.mu.Lock()
	presenter.scene = name
	presenter.opacity = 0
	presenter.mu.Unlock()
	presenter.logger.Info("loading gameplay scene", "scene", name)
	select {
	case presenter.scenes <- name:
	default:
	}
}

// Scenes delivers gameplay scene loads. Holds at most one pending
// name; later loads are dropped until it is read.
func (presenter *LogPresenter) Scenes() <-chan string {
	return presenter.scenes
}

// Status returns the last status text.
func (presenter *LogPresenter) Status() string {
	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	return presenter.status
}

// Opacity returns the overlay opacity after the last finished fade.
func (presenter *LogPresenter) Opacity() float64 {
	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	return presenter.opacity
}
