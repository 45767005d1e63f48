// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package requestui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/jhsmart/docsync/lib/submission"
	"github.com/jhsmart/docsync/lib/synccache"
)

// ToggleFunc requests a status change. It must not block on the store.
type ToggleFunc func(collection, id string, status submission.Status) error

// Config configures NewModel. Collections gives the tab order.
type Config struct {
	Collections []string
	Events      <-chan Event
	Toggle      ToggleFunc
	Keys        KeyMap
	Theme       Theme
}

// Column widths. Name and Email share what remains.
const (
	referenceWidth = 14
	dateWidth      = 16
	statusWidth    = 9
	chromeHeight   = 4 // tab bar, column header, status line, help line
)

// tab is the viewer state of one collection.
type tab struct {
	collection string
	state      synccache.State[[]Row]
	cursor     int
	offset     int
}

func (t *tab) rows() []Row {
	if t.state.Status != synccache.StatusReady || t.state.Value == nil {
		return nil
	}
	return t.state.Value.Data
}

// clamp keeps cursor on an existing row, preferring the row with the
// same id when the list changes underneath it.
func (t *tab) clamp(selectedID string) {
	rows := t.rows()
	if selectedID != "" {
		for index, row := range rows {
			if row.ID == selectedID {
				t.cursor = index
				return
			}
		}
	}
	t.cursor = max(0, min(t.cursor, len(rows)-1))
}

func (t *tab) selected() (Row, bool) {
	rows := t.rows()
	if t.cursor < 0 || t.cursor >= len(rows) {
		return Row{}, false
	}
	return rows[t.cursor], true
}

// eventMsg carries a Source event into Update.
type eventMsg struct {
	event Event
}

// toggledMsg reports the outcome of a Toggle call.
type toggledMsg struct {
	row    Row
	status submission.Status
	err    error
}

// Model is the bubbletea model of the viewer.
type Model struct {
	tabs   []tab
	active int

	events <-chan Event
	toggle ToggleFunc
	keys   KeyMap
	theme  Theme
	help   help.Model

	width  int
	height int

	// notice is the status line under the table.
	notice      string
	noticeError bool
}

// NewModel creates a model with every collection Loading.
func NewModel(cfg Config) Model {
	keys := cfg.Keys
	if len(keys.Quit.Keys()) == 0 {
		keys = DefaultKeyMap
	}
	theme := cfg.Theme
	if theme == (Theme{}) {
		theme = DefaultTheme
	}
	tabs := make([]tab, len(cfg.Collections))
	for index, collection := range cfg.Collections {
		tabs[index] = tab{collection: collection}
	}
	helpModel := help.New()
	helpModel.Styles.ShortKey = lipgloss.NewStyle().Foreground(theme.NormalText)
	helpModel.Styles.ShortDesc = lipgloss.NewStyle().Foreground(theme.FaintText)
	return Model{
		tabs:   tabs,
		events: cfg.Events,
		toggle: cfg.Toggle,
		keys:   keys,
		theme:  theme,
		help:   helpModel,
		width:  100,
		height: 24,
	}
}

// Init starts listening for source events.
func (model Model) Init() tea.Cmd {
	if model.events == nil {
		return nil
	}
	return listenForEvent(model.events)
}

func listenForEvent(channel <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-channel
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		model.scroll()
		return model, nil

	case eventMsg:
		model.apply(message.event)
		return model, listenForEvent(model.events)

	case toggledMsg:
		if message.err != nil {
			model.notice = fmt.Sprintf("could not mark %s %s: %v", message.row.Reference(), message.status, message.err)
			model.noticeError = true
		} else {
			model.notice = fmt.Sprintf("%s marked %s", message.row.Reference(), message.status)
			model.noticeError = false
		}
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model *Model) apply(event Event) {
	for index := range model.tabs {
		current := &model.tabs[index]
		if current.collection != event.Collection {
			continue
		}
		var selectedID string
		if row, ok := current.selected(); ok {
			selectedID = row.ID
		}
		current.state = event.State
		current.clamp(selectedID)
	}
	model.scroll()
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(model.tabs) == 0 {
		if key.Matches(message, model.keys.Quit) {
			return model, tea.Quit
		}
		return model, nil
	}
	current := &model.tabs[model.active]
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.Up):
		current.cursor = max(0, current.cursor-1)
	case key.Matches(message, model.keys.Down):
		current.cursor = max(0, min(current.cursor+1, len(current.rows())-1))
	case key.Matches(message, model.keys.Home):
		current.cursor = 0
	case key.Matches(message, model.keys.End):
		current.cursor = max(0, len(current.rows())-1)
	case key.Matches(message, model.keys.NextTab):
		model.active = (model.active + 1) % len(model.tabs)
		model.notice = ""
	case key.Matches(message, model.keys.Help):
		model.help.ShowAll = !model.help.ShowAll
	case key.Matches(message, model.keys.Toggle):
		return model, model.toggleSelected()
	}
	model.scroll()
	return model, nil
}

// toggleSelected returns a command flipping the selected record's
// status, or nil when nothing is selected.
func (model *Model) toggleSelected() tea.Cmd {
	row, ok := model.tabs[model.active].selected()
	if !ok || model.toggle == nil {
		return nil
	}
	next := submission.StatusResolved
	if row.Status == submission.StatusResolved {
		next = submission.StatusPending
	}
	toggle := model.toggle
	return func() tea.Msg {
		return toggledMsg{row: row, status: next, err: toggle(row.Collection, row.ID, next)}
	}
}

func (model *Model) visibleRows() int {
	return max(1, model.height-chromeHeight)
}

// scroll moves the active tab's window so the cursor stays visible.
func (model *Model) scroll() {
	if len(model.tabs) == 0 {
		return
	}
	current := &model.tabs[model.active]
	visible := model.visibleRows()
	if current.cursor < current.offset {
		current.offset = current.cursor
	}
	if current.cursor >= current.offset+visible {
		current.offset = current.cursor - visible + 1
	}
	current.offset = max(0, min(current.offset, len(current.rows())-visible))
}

// View implements tea.Model.
func (model Model) View() string {
	if len(model.tabs) == 0 {
		return "no collections to watch\n"
	}
	var builder strings.Builder
	builder.WriteString(model.renderTabs())
	builder.WriteByte('\n')

	current := model.tabs[model.active]
	switch current.state.Status {
	case synccache.StatusLoading:
		builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("Loading " + current.collection + "..."))
		builder.WriteByte('\n')
	case synccache.StatusError:
		builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(
			model.truncate(fmt.Sprintf("Error: %v", current.state.Err))))
		builder.WriteByte('\n')
	default:
		model.renderTable(&builder, current)
	}

	if model.notice != "" {
		color := model.theme.FaintText
		if model.noticeError {
			color = model.theme.ErrorText
		}
		builder.WriteString(lipgloss.NewStyle().Foreground(color).Render(model.truncate(model.notice)))
		builder.WriteByte('\n')
	}
	builder.WriteString(model.help.View(model.keys))
	return builder.String()
}

func (model Model) renderTabs() string {
	parts := make([]string, len(model.tabs))
	for index, current := range model.tabs {
		label := current.collection
		if rows := current.rows(); current.state.Status == synccache.StatusReady {
			label = fmt.Sprintf("%s (%d)", label, len(rows))
		}
		style := lipgloss.NewStyle().Padding(0, 1).Foreground(model.theme.FaintText)
		if index == model.active {
			style = style.Bold(true).Foreground(model.theme.ActiveTab)
		}
		parts[index] = style.Render(label)
	}
	return model.truncate(strings.Join(parts, " "))
}

func (model Model) renderTable(builder *strings.Builder, current tab) {
	rows := current.rows()
	nameWidth, emailWidth := model.flexibleWidths()

	header := strings.Join([]string{
		pad("REFERENCE", referenceWidth),
		pad("SUBMITTED", dateWidth),
		pad("STATUS", statusWidth),
		pad("NAME", nameWidth),
		pad("EMAIL", emailWidth),
	}, " ")
	builder.WriteString(lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render(model.truncate(header)))
	builder.WriteByte('\n')

	if len(rows) == 0 {
		builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no records"))
		builder.WriteByte('\n')
		return
	}

	end := min(len(rows), current.offset+model.visibleRows())
	for index := current.offset; index < end; index++ {
		row := rows[index]
		status := lipgloss.NewStyle().Foreground(model.theme.StatusColor(row.Status)).Render(pad(string(row.Status), statusWidth))
		line := strings.Join([]string{
			pad(row.Reference(), referenceWidth),
			pad(displayDate(row.SubmissionDate), dateWidth),
			status,
			pad(row.Name, nameWidth),
			pad(row.Email, emailWidth),
		}, " ")
		line = model.truncate(line)
		if index == current.cursor {
			line = lipgloss.NewStyle().
				Background(model.theme.SelectedBackground).
				Foreground(model.theme.SelectedForeground).
				Render(line)
		}
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
}

// flexibleWidths splits the space left after the fixed columns between
// name and email.
func (model Model) flexibleWidths() (int, int) {
	remaining := model.width - referenceWidth - dateWidth - statusWidth - 4
	remaining = max(remaining, 20)
	name := remaining * 2 / 5
	return name, remaining - name
}

func (model Model) truncate(line string) string {
	return ansi.Truncate(line, model.width, "…")
}

// pad truncates s to width cells and right-pads it with spaces.
func pad(s string, width int) string {
	s = ansi.Truncate(s, width, "…")
	if gap := width - ansi.StringWidth(s); gap > 0 {
		s += strings.Repeat(" ", gap)
	}
	return s
}

// displayDate shortens an RFC 3339 submission date to minutes.
func displayDate(value string) string {
	if len(value) < 16 {
		return value
	}
	return strings.Replace(value[:16], "T", " ", 1)
}
