// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the lobby screen's key bindings.
type KeyMap struct {
	QuickPlay key.Binding
	Cancel    key.Binding
	Quit      key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	QuickPlay: key.NewBinding(
		key.WithKeys("enter", "p"),
		key.WithHelp("enter", "quick play"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("c", "esc"),
		key.WithHelp("c/esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp returns the bindings shown on the help line.
func (keys KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.QuickPlay, keys.Cancel, keys.Quit}
}
