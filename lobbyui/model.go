// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lobbyui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/quickplay/directory"
	"github.com/bureau-foundation/quickplay/quickplay"
)

// Controller is the orchestrator surface the lobby screen drives.
// [quickplay.Orchestrator] implements it.
type Controller interface {
	BeginQuickPlay() bool
	CancelQuickPlay(ctx context.Context)
	State() quickplay.Snapshot
}

// Messages delivered by [Bridge].
type (
	statusMsg struct{ text string }

	previewMsg struct {
		slots []quickplay.PreviewSlot
		state directory.State
	}

	clearPreviewMsg struct{}

	// fadeMsg starts an overlay transition. done is closed when the
	// transition finishes or is superseded by another fade.
	fadeMsg struct {
		opacity  float64
		duration time.Duration
		done     chan struct{}
	}

	cueMsg struct{ slot int }

	sceneMsg struct{ name string }
)

// Internal messages.
type (
	heatTickMsg struct{}
	fadeTickMsg struct{}

	beginResultMsg struct{ started bool }
	cancelDoneMsg  struct{}

	noticeFadeMsg struct{ generation int }
)

// fadeTickInterval is the overlay's animation step.
const fadeTickInterval = 50 * time.Millisecond

// noticeDelay is how long a notice or log line stays under the slots.
const noticeDelay = 5 * time.Second

// defaultCancelTimeout bounds a cancel started from the keyboard.
const defaultCancelTimeout = 5 * time.Second

// slotWidth is the rendered width of one lobby slot, borders included.
const slotWidth = 10

// Options configures a [Model]. The zero value is usable.
type Options struct {
	Theme *Theme
	Keys  *KeyMap

	// AutoStart begins quick play as soon as the program starts.
	AutoStart bool

	// CancelTimeout bounds a cancel started from the keyboard.
	// Defaults to five seconds.
	CancelTimeout time.Duration

	// Now replaces time.Now for animation timing.
	Now func() time.Time

	// Renderer styles the view. Defaults to lipgloss's renderer for
	// stdout.
	Renderer *lipgloss.Renderer
}

// fadeState is the overlay transition in progress, if any.
type fadeState struct {
	opacity  float64
	from     float64
	to       float64
	start    time.Time
	duration time.Duration
	done     chan struct{}
	ticking  bool
}

// Model is the bubbletea model for the lobby screen.
type Model struct {
	controller    Controller
	renderer      *lipgloss.Renderer
	theme         Theme
	keys          KeyMap
	autoStart     bool
	cancelTimeout time.Duration
	now           func() time.Time

	width int

	status     string
	slots      []quickplay.PreviewSlot
	lobbyState directory.State
	snapshot   quickplay.Snapshot
	scene      string
	cancelling bool

	// notice is a transient line under the slots: log records and
	// keyboard feedback. noticeGeneration discards stale fade timers.
	notice           string
	noticeLevel      slog.Level
	noticeGeneration int

	cues        *CueTracker
	heatTicking bool

	spinner spinner.Model
	fade    fadeState
}

// NewModel creates the lobby screen for controller.
func NewModel(controller Controller, options Options) Model {
	theme := DefaultTheme
	if options.Theme != nil {
		theme = *options.Theme
	}
	keys := DefaultKeyMap
	if options.Keys != nil {
		keys = *options.Keys
	}
	cancelTimeout := options.CancelTimeout
	if cancelTimeout <= 0 {
		cancelTimeout = defaultCancelTimeout
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	renderer := options.Renderer
	if renderer == nil {
		renderer = lipgloss.DefaultRenderer()
	}

	activity := spinner.New()
	activity.Spinner = spinner.Dot
	activity.Style = renderer.NewStyle().Foreground(theme.StateSearching)

	return Model{
		controller:    controller,
		renderer:      renderer,
		theme:         theme,
		keys:          keys,
		autoStart:     options.AutoStart,
		cancelTimeout: cancelTimeout,
		now:           now,
		width:         80,
		status:        "Ready.",
		cues:          NewCueTracker(),
		spinner:       activity,
	}
}

func (model Model) Init() tea.Cmd {
	commands := []tea.Cmd{model.spinner.Tick}
	if model.autoStart {
		commands = append(commands, model.begin())
	}
	return tea.Batch(commands...)
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)

	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		model.snapshot = model.controller.State()
		return model, command

	case statusMsg:
		model.status = message.text
		return model, nil

	case previewMsg:
		model.slots = message.slots
		model.lobbyState = message.state
		model.snapshot = model.controller.State()
		return model, nil

	case clearPreviewMsg:
		model.slots = nil
		model.lobbyState = ""
		model.scene = ""
		model.cues.Reset()
		model.finishFade()
		model.fade.opacity = 0
		return model, nil

	case cueMsg:
		model.cues.Ignite(message.slot, model.now())
		if model.heatTicking {
			return model, nil
		}
		model.heatTicking = true
		return model, scheduleHeatTick()

	case heatTickMsg:
		if model.cues.HasHot(model.now()) {
			return model, scheduleHeatTick()
		}
		model.heatTicking = false
		return model, nil

	case fadeMsg:
		return model.startFade(message)

	case fadeTickMsg:
		return model.handleFadeTick()

	case sceneMsg:
		model.scene = message.name
		model.finishFade()
		model.fade.opacity = 0
		return model, nil

	case beginResultMsg:
		model.snapshot = model.controller.State()
		if !message.started {
			return model.showNotice("Quick play is already running.", slog.LevelInfo)
		}
		return model, nil

	case cancelDoneMsg:
		model.cancelling = false
		model.snapshot = model.controller.State()
		return model, nil

	case logRecordMsg:
		return model.showNotice(message.Summary, message.Level)

	case noticeFadeMsg:
		if message.generation == model.noticeGeneration {
			model.notice = ""
		}
		return model, nil
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.QuickPlay):
		return model, model.begin()

	case key.Matches(message, model.keys.Cancel):
		if model.cancelling {
			return model, nil
		}
		model.cancelling = true
		return model, model.cancel()
	}
	return model, nil
}

// begin starts a flow off the event loop: BeginQuickPlay presents
// synchronously, and presenting sends to this program.
func (model Model) begin() tea.Cmd {
	controller := model.controller
	return func() tea.Msg {
		return beginResultMsg{started: controller.BeginQuickPlay()}
	}
}

func (model Model) cancel() tea.Cmd {
	controller := model.controller
	timeout := model.cancelTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		controller.CancelQuickPlay(ctx)
		return cancelDoneMsg{}
	}
}

func (model Model) showNotice(text string, level slog.Level) (tea.Model, tea.Cmd) {
	model.noticeGeneration++
	model.notice = text
	model.noticeLevel = level
	generation := model.noticeGeneration
	return model, tea.Tick(noticeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{generation: generation}
	})
}

func (model Model) startFade(message fadeMsg) (tea.Model, tea.Cmd) {
	model.finishFade()
	model.fade.from = model.fade.opacity
	model.fade.to = clamp(message.opacity)
	model.fade.start = model.now()
	model.fade.duration = message.duration
	model.fade.done = message.done

	if message.duration <= 0 {
		model.fade.opacity = model.fade.to
		model.finishFade()
		return model, nil
	}
	if model.fade.ticking {
		return model, nil
	}
	model.fade.ticking = true
	return model, scheduleFadeTick()
}

func (model Model) handleFadeTick() (tea.Model, tea.Cmd) {
	model.fade.ticking = false
	if model.fade.done == nil {
		return model, nil
	}
	elapsed := model.now().Sub(model.fade.start)
	if elapsed >= model.fade.duration {
		model.fade.opacity = model.fade.to
		model.finishFade()
		return model, nil
	}
	progress := float64(elapsed) / float64(model.fade.duration)
	model.fade.opacity = model.fade.from + (model.fade.to-model.fade.from)*progress
	model.fade.ticking = true
	return model, scheduleFadeTick()
}

// finishFade releases the waiter of the current transition.
func (model *Model) finishFade() {
	if model.fade.done != nil {
		close(model.fade.done)
		model.fade.done = nil
	}
}

// Opacity is the overlay's current opacity, 0 (clear) to 1 (opaque).
func (model Model) Opacity() float64 {
	return model.fade.opacity
}

// Status is the status line's current text.
func (model Model) Status() string {
	return model.status
}

// Scene is the gameplay scene loaded by the last handoff, if any.
func (model Model) Scene() string {
	return model.scene
}

func scheduleHeatTick() tea.Cmd {
	return tea.Tick(heatTickInterval, func(time.Time) tea.Msg {
		return heatTickMsg{}
	})
}

func scheduleFadeTick() tea.Cmd {
	return tea.Tick(fadeTickInterval, func(time.Time) tea.Msg {
		return fadeTickMsg{}
	})
}

func clamp(opacity float64) float64 {
	return min(max(opacity, 0), 1)
}

func (model Model) View() string {
	var sections []string
	sections = append(sections, model.renderHeader())

	if model.fade.opacity >= 1 {
		sections = append(sections, model.renderBlackout())
	} else {
		sections = append(sections,
			model.renderStatus(),
			model.renderSlots(),
			model.renderLobbyState(),
		)
		if band := model.renderFadeBand(); band != "" {
			sections = append(sections, band)
		}
	}
	if model.notice != "" {
		sections = append(sections, model.renderNotice())
	}
	sections = append(sections, model.renderHelp())
	return strings.Join(sections, "\n")
}

func (model Model) renderHeader() string {
	title := model.renderer.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground).
		Render("Quick Play")
	detail := ""
	if model.snapshot.InFlow {
		detail = fmt.Sprintf("  %s / %s", model.snapshot.Role, model.snapshot.Phase)
	}
	if model.scene != "" {
		detail = "  scene: " + model.scene
	}
	return title + model.renderer.NewStyle().Foreground(model.theme.FaintText).Render(detail)
}

func (model Model) renderStatus() string {
	prefix := "  "
	if model.snapshot.InFlow {
		prefix = model.spinner.View() + " "
	}
	color := model.theme.NormalText
	if model.snapshot.LastFault != nil && !model.snapshot.InFlow {
		color = model.theme.StatusError
	}
	available := max(model.width-ansi.StringWidth(prefix), 1)
	text := ansi.Truncate(model.status, available, "…")
	return prefix + model.renderer.NewStyle().Foreground(color).Render(text)
}

// renderSlots draws one box per lobby slot. Occupied slots read YOU or
// PLAYER; a slot whose start cue is glowing gets the cue tint.
func (model Model) renderSlots() string {
	capacity := max(model.snapshot.Capacity, len(model.slots))
	if capacity == 0 {
		return model.renderer.NewStyle().Foreground(model.theme.FaintText).Render("  no lobby")
	}

	now := model.now()
	perRow := max(model.width/slotWidth, 1)
	var rows []string
	var row []string
	for index := range capacity {
		label := "·"
		color := model.theme.EmptySlot
		if index < len(model.slots) {
			label = "PLAYER"
			color = model.theme.RemoteSlot
			if model.slots[index].Local {
				label = "YOU"
				color = model.theme.LocalSlot
			}
		}
		style := model.renderer.NewStyle().
			Width(slotWidth-2).
			Align(lipgloss.Center).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(model.theme.BorderColor).
			Foreground(color)
		if heat := model.cues.Heat(index, now); heat > 0 {
			style = style.Background(model.theme.CueAccent).Bold(true)
		}
		row = append(row, style.Render(label))
		if len(row) == perRow {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (model Model) renderLobbyState() string {
	if model.lobbyState == "" {
		return ""
	}
	players := len(model.slots)
	capacity := max(model.snapshot.Capacity, players)
	state := model.renderer.NewStyle().
		Foreground(model.theme.StateColor(string(model.lobbyState))).
		Render(string(model.lobbyState))
	return model.renderer.NewStyle().Foreground(model.theme.FaintText).
		Render(fmt.Sprintf("  %d/%d  ", players, capacity)) + state
}

// renderFadeBand draws a shade band whose density follows the overlay
// opacity. Empty when the overlay is clear.
func (model Model) renderFadeBand() string {
	var shade string
	switch opacity := model.fade.opacity; {
	case opacity <= 0:
		return ""
	case opacity < 0.25:
		shade = "░"
	case opacity < 0.5:
		shade = "▒"
	case opacity < 0.75:
		shade = "▓"
	default:
		shade = "█"
	}
	return model.renderer.NewStyle().
		Foreground(model.theme.FadeForeground).
		Render(strings.Repeat(shade, max(model.width, 1)))
}

func (model Model) renderBlackout() string {
	line := model.renderer.NewStyle().
		Foreground(model.theme.FadeForeground).
		Render(strings.Repeat("█", max(model.width, 1)))
	loading := model.renderer.NewStyle().Foreground(model.theme.FaintText).Render("  loading...")
	return line + "\n" + loading + "\n" + line
}

func (model Model) renderNotice() string {
	color := model.theme.FaintText
	if model.noticeLevel >= slog.LevelWarn {
		color = model.theme.StatusError
	}
	text := ansi.Truncate(model.notice, max(model.width-2, 1), "…")
	return "  " + model.renderer.NewStyle().Foreground(color).Render(text)
}

func (model Model) renderHelp() string {
	var parts []string
	for _, binding := range model.keys.ShortHelp() {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return model.renderer.NewStyle().
		Foreground(model.theme.HelpText).
		Render(ansi.Truncate(strings.Join(parts, " • "), max(model.width, 1), "…"))
}
