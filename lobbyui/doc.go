// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lobbyui renders quick play progress. It provides two
// [quickplay.Presenter] implementations: [Bridge], which drives a
// bubbletea terminal program showing the status line, the lobby slots,
// start cues, and the fade overlay; and [LogPresenter], which writes
// every presenter call to a structured logger for headless runs.
//
// The bubbletea side is built on [Model]. Presenter calls arrive as
// messages through tea.Program.Send, so they are safe from any
// goroutine. Keyboard actions reach the orchestrator through the
// [Controller] interface and always run as commands, never inside
// Update, because the orchestrator calls back into the presenter
// synchronously.
package lobbyui
