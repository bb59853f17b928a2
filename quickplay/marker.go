// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quickplay

import (
	"errors"
	"io/fs"
	"time"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/lib/statefile"
)

// flowMarker records the lobby a flow holds. It is written when a flow
// creates or joins a record and removed when the flow ends, so a marker
// found at the start of a flow belongs to a process that died mid-flow.
type flowMarker struct {
	RecordID      string `cbor:"record_id"`
	ParticipantID string `cbor:"participant_id"`
	Role          string `cbor:"role"`
	// Unix milliseconds.
	WrittenAt int64 `cbor:"written_at"`
}

func (o *Orchestrator) writeMarker(f *flow, role Role, recordID, participant string) {
	if o.config.MarkerPath == "" {
		return
	}
	marker := flowMarker{
		RecordID:      recordID,
		ParticipantID: participant,
		Role:          role.String(),
		WrittenAt:     o.clock.Now().UnixMilli(),
	}
	if err := statefile.Write(o.config.MarkerPath, marker); err != nil {
		o.logger.Warn("writing flow marker failed",
			"flow_id", f.id,
			"path", o.config.MarkerPath,
			"error", err,
		)
	}
}

func (o *Orchestrator) clearMarker() {
	if o.config.MarkerPath == "" {
		return
	}
	if err := statefile.Clear(o.config.MarkerPath); err != nil {
		o.logger.Warn("clearing flow marker failed", "path", o.config.MarkerPath, "error", err)
	}
}

// recoverOrphan releases the lobby named by a marker left by an
// earlier process with the same participant id. Markers older than
// MarkerMaxAge are dropped; their records expired long ago.
func (o *Orchestrator) recoverOrphan(f *flow, participant string) {
	if o.config.MarkerPath == "" {
		return
	}
	var marker flowMarker
	if err := statefile.Read(o.config.MarkerPath, &marker); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("unreadable flow marker, discarding",
				"flow_id", f.id,
				"path", o.config.MarkerPath,
				"error", err,
			)
			o.clearMarker()
		}
		return
	}
	defer o.clearMarker()

	age := o.clock.Now().Sub(time.UnixMilli(marker.WrittenAt))
	if marker.ParticipantID != participant || age > o.config.MarkerMaxAge {
		o.logger.Debug("discarding flow marker",
			"flow_id", f.id,
			"record_id", marker.RecordID,
			"age", age,
		)
		return
	}

	var err error
	switch marker.Role {
	case RoleHost.String():
		err = o.directory.Delete(f.ctx, marker.RecordID)
	case RoleClient.String():
		err = o.directory.Leave(f.ctx, marker.RecordID, participant)
	default:
		return
	}
	switch {
	case err == nil:
		o.logger.Info("released orphaned lobby",
			"flow_id", f.id,
			"record_id", marker.RecordID,
			"role", marker.Role,
		)
	case directory.IsCode(err, directory.CodeNotFound):
	default:
		o.logger.Warn("releasing orphaned lobby failed",
			"flow_id", f.id,
			"record_id", marker.RecordID,
			"error", err,
		)
	}
}
