// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity provides the anonymous participant identity that a
// quick play flow signs in with before touching the directory.
//
// Each profile owns one participant id, a random UUID generated on the
// first sign-in and persisted as a state file so the same machine keeps
// the same id across restarts. Development runs use a per-process
// profile (see [DevelopmentProfile]) so several local instances do not
// collide in the same lobby.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/statefile"
)

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DevelopmentProfile returns "dev_<pid>".
func DevelopmentProfile() string {
	return fmt.Sprintf("dev_%d", os.Getpid())
}

// ValidateProfile reports whether name is usable as a profile name.
// Profile names become path components.
func ValidateProfile(name string) error {
	if !profilePattern.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match %s", name, profilePattern)
	}
	return nil
}

// record is the persisted form of an identity.
type record struct {
	ParticipantID string `cbor:"participant_id"`
	Profile       string `cbor:"profile"`
	CreatedAt     int64  `cbor:"created_at"`
}

// Anonymous signs a profile in with a locally generated participant id.
// Safe for concurrent use.
type Anonymous struct {
	path    string
	profile string
	clock   clock.Clock
	logger  *slog.Logger

	mu            sync.Mutex
	participantID string
}

// NewAnonymous returns an identity for profile whose state lives under
// stateDirectory/<profile>/identity.cbor.
func NewAnonymous(stateDirectory, profile string, clk clock.Clock, logger *slog.Logger) (*Anonymous, error) {
	if stateDirectory == "" {
		return nil, errors.New("identity: state directory is required")
	}
	if profile == "" {
		profile = DefaultProfile
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Anonymous{
		path:    filepath.Join(stateDirectory, profile, "identity.cbor"),
		profile: profile,
		clock:   clk,
		logger:  logger,
	}, nil
}

// Profile returns the profile name.
func (a *Anonymous) Profile() string { return a.profile }

// Path returns the identity state file path.
func (a *Anonymous) Path() string { return a.path }

// EnsureSignedIn returns the profile's participant id, creating and
// persisting one on first use.
func (a *Anonymous) EnsureSignedIn(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.participantID != "" {
		return a.participantID, nil
	}

	var stored record
	err := statefile.Read(a.path, &stored)
	switch {
	case err == nil && stored.ParticipantID != "":
		a.participantID = stored.ParticipantID
		a.logger.Info("signed in",
			"profile", a.profile,
			"participant_id", a.participantID,
		)
		return a.participantID, nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		// Fall through and create a fresh identity.
	default:
		return "", fmt.Errorf("reading identity for profile %s: %w", a.profile, err)
	}

	fresh := record{
		ParticipantID: uuid.NewString(),
		Profile:       a.profile,
		CreatedAt:     clock.UnixMilli(a.clock),
	}
	if err := statefile.Write(a.path, fresh); err != nil {
		return "", fmt.Errorf("persisting identity for profile %s: %w", a.profile, err)
	}
	a.participantID = fresh.ParticipantID
	a.logger.Info("created anonymous identity",
		"profile", a.profile,
		"participant_id", a.participantID,
		"created_at", time.UnixMilli(fresh.CreatedAt).UTC(),
	)
	return a.participantID, nil
}

// Forget deletes the persisted identity. The next EnsureSignedIn
// generates a new participant id.
func (a *Anonymous) Forget() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.participantID = ""
	return statefile.Clear(a.path)
}
