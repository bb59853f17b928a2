// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import "github.com/charmbracelet/lipgloss"

// Theme defines the lobby screen's colors. All colors use lipgloss
// ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Slot colors. LocalSlot marks this process's own slot.
	LocalSlot  lipgloss.Color
	RemoteSlot lipgloss.Color
	EmptySlot  lipgloss.Color

	// CueAccent tints a slot's background while its start cue glows.
	CueAccent lipgloss.Color

	// Status line colors for lobby states and faults.
	StateSearching lipgloss.Color
	StateStarting  lipgloss.Color
	StateInGame    lipgloss.Color
	StatusError    lipgloss.Color

	// FadeForeground draws the overlay's shade band.
	FadeForeground lipgloss.Color
}

// StateColor returns the color for a lobby state string, FaintText for
// unknown values.
func (theme Theme) StateColor(state string) lipgloss.Color {
	switch state {
	case "searching":
		return theme.StateSearching
	case "starting":
		return theme.StateStarting
	case "in_game":
		return theme.StateInGame
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	LocalSlot:  lipgloss.Color("114"), // green
	RemoteSlot: lipgloss.Color("75"),  // blue
	EmptySlot:  lipgloss.Color("238"),

	CueAccent: lipgloss.Color("58"), // dark amber background tint

	StateSearching: lipgloss.Color("220"), // yellow/amber
	StateStarting:  lipgloss.Color("141"), // light purple
	StateInGame:    lipgloss.Color("114"),
	StatusError:    lipgloss.Color("196"),

	FadeForeground: lipgloss.Color("236"),
}
