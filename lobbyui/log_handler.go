// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a log record to the model for display under
// the lobby slots.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// TUILogHandler is a slog.Handler that shows records at or above its
// level in the lobby screen and forwards every record to an optional
// next handler (typically a log file). Records arriving before
// SetProgram are still forwarded but not shown.
//
// Handlers derived via WithAttrs/WithGroup share the program pointer,
// so one SetProgram call reaches all of them.
type TUILogHandler struct {
	level   slog.Level
	next    slog.Handler
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
}

// NewTUILogHandler creates a handler that shows records at or above
// level. next may be nil.
func NewTUILogHandler(level slog.Level, next slog.Handler) *TUILogHandler {
	return &TUILogHandler{
		level:   level,
		next:    next,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives log records.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *TUILogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= handler.level {
		return true
	}
	return handler.next != nil && handler.next.Enabled(ctx, level)
}

func (handler *TUILogHandler) Handle(ctx context.Context, record slog.Record) error {
	var forwardErr error
	if handler.next != nil && handler.next.Enabled(ctx, record.Level) {
		forwardErr = handler.next.Handle(ctx, record)
	}
	if record.Level < handler.level {
		return forwardErr
	}
	program := handler.program.Load()
	if program == nil {
		return forwardErr
	}
	program.Send(logRecordMsg{Summary: summarize(handler.attrs, record), Level: record.Level})
	return forwardErr
}

func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := &TUILogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   append(slices.Clone(handler.attrs), attrs...),
	}
	if handler.next != nil {
		derived.next = handler.next.WithAttrs(attrs)
	}
	return derived
}

// WithGroup only affects the forwarded records; the on-screen summary
// is flat.
func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	derived := &TUILogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   slices.Clone(handler.attrs),
	}
	if handler.next != nil {
		derived.next = handler.next.WithGroup(name)
	}
	return derived
}

// summarize renders "message (key=value, ...)".
func summarize(attrs []slog.Attr, record slog.Record) string {
	var parts []string
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}
