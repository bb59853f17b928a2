// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/relay"
)

// Identity signs the local participant in. Called at the start of
// every flow; the returned id names the participant in the directory
// and on the relay.
type Identity interface {
	EnsureSignedIn(ctx context.Context) (string, error)
}

// PreviewSlot is one occupied lobby slot, in join order.
type PreviewSlot struct {
	Participant string
	// Local marks the slot belonging to this process.
	Local bool
}

// Presenter renders the orchestrator's progress. Calls are serialized
// and never made while the orchestrator holds its state lock, so an
// implementation may call State.
type Presenter interface {
	SetStatus(text string)

	// ApplyPreview replaces the lobby preview. Only called when the
	// participant count or lobby state changed since the last call.
	ApplyPreview(slots []PreviewSlot, state directory.State)
	ClearPreview()

	// FadeTo transitions the screen overlay to opacity over duration
	// and returns when the transition finishes or ctx ends.
	FadeTo(ctx context.Context, opacity float64, duration time.Duration) error

	PlayStartCue(slot int)
	LoadGameplayScene(name string)
}

// participantSetter is implemented by runtimes that announce the
// local participant id on the wire.
type participantSetter interface {
	SetParticipant(participant string)
}

// Dependencies are the orchestrator's collaborators. Clock and Logger
// are optional.
type Dependencies struct {
	Identity    Identity
	Directory   directory.Directory
	Provisioner relay.Provisioner
	Runtime     relay.Runtime
	Presenter   Presenter
	Clock       clock.Clock
	Logger      *slog.Logger
}

func (d *Dependencies) validate() error {
	var errs []error
	if d.Identity == nil {
		errs = append(errs, errors.New("identity is required"))
	}
	if d.Directory == nil {
		errs = append(errs, errors.New("directory is required"))
	}
	if d.Provisioner == nil {
		errs = append(errs, errors.New("relay provisioner is required"))
	}
	if d.Runtime == nil {
		errs = append(errs, errors.New("relay runtime is required"))
	}
	if d.Presenter == nil {
		errs = append(errs, errors.New("presenter is required"))
	}
	return errors.Join(errs...)
}
