package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tazhate/countdowns/internal/client"
	"github.com/tazhate/countdowns/internal/countdown"
)

// ReloadEvery is how many ticks pass between list refreshes. Every refresh also
// resamples the server clock.
const ReloadEvery = 60

const loadTimeout = 10 * time.Second

// EventLister is the slice of the API client the dashboard needs.
type EventLister interface {
	ListEvents(ctx context.Context, p client.ListParams) (*client.EventList, error)
}

// --- Messages ---
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(countdown.TickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

type eventsLoadedMsg struct {
	list *client.EventList
	err  error
}

// row is one event projected onto the adjusted clock.
type row struct {
	event client.Event
	frame countdown.Countdown
}

// --- Model ---
type Model struct {
	lister EventLister
	params client.ListParams
	local  countdown.LocalClock
	loc    *time.Location

	offset  countdown.Offset
	items   []client.Event
	rows    []row
	ticks   int
	loading bool
	pending bool
	cursor  int

	searching   bool
	searchInput textinput.Model
	keys        keyMap
	help        help.Model

	err           error
	Message       string
	width, height int
}

func New(lister EventLister, loc *time.Location) Model {
	if loc == nil {
		loc = time.Local
	}
	ti := textinput.New()
	ti.Placeholder = "Search titles..."
	ti.CharLimit = 120
	ti.Width = 40

	return Model{
		lister:      lister,
		local:       time.Now,
		loc:         loc,
		searchInput: ti,
		keys:        defaultKeys(),
		help:        help.New(),
	}
}

// WithLocalClock replaces the local clock, mostly for tests.
func (m Model) WithLocalClock(c countdown.LocalClock) Model {
	m.local = c
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), tickCmd())
}

func (m Model) loadCmd() tea.Cmd {
	lister, params := m.lister, m.params
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		list, err := lister.ListEvents(ctx, params)
		return eventsLoadedMsg{list: list, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TickMsg:
		return m.handleTick(msg)
	case eventsLoadedMsg:
		return m.handleLoaded(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// handleTick re-projects every row from the same adjusted now and schedules the
// next tick. Rows never keep their own timers.
func (m Model) handleTick(_ TickMsg) (Model, tea.Cmd) {
	m.project()
	m.ticks++

	cmds := []tea.Cmd{tickCmd()}
	if m.ticks%ReloadEvery == 0 && !m.loading {
		m.loading = true
		cmds = append(cmds, m.loadCmd())
	}
	return m, tea.Batch(cmds...)
}

// handleLoaded applies a list response. If the filters changed while it was in
// flight, only its clock sample is kept and the list is fetched again.
func (m Model) handleLoaded(msg eventsLoadedMsg) (Model, tea.Cmd) {
	m.loading = false
	if msg.err == nil && msg.list == nil {
		msg.err = errors.New("empty response")
	}
	if m.pending {
		m.pending = false
		if msg.err == nil {
			_ = m.offset.ObserveRaw(msg.list.ServerNow, m.local())
		}
		return m.reload()
	}
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}
	m.err = nil
	if err := m.offset.ObserveRaw(msg.list.ServerNow, m.local()); err != nil {
		m.Message = "clock sync skipped: " + err.Error()
	} else {
		m.Message = ""
	}
	m.items = msg.list.Items
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
	m.project()
	return m, nil
}

func (m *Model) project() {
	now := m.offset.Now(m.local())
	rows := make([]row, len(m.items))
	for i, e := range m.items {
		rows[i] = row{event: e, frame: countdown.Project(e.EffectiveDueAt, now)}
	}
	m.rows = rows
}

func (m Model) reload() (Model, tea.Cmd) {
	if m.loading {
		m.pending = true
		return m, nil
	}
	m.loading = true
	return m, m.loadCmd()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Reload):
		return m.reload()
	case key.Matches(msg, m.keys.Overdue):
		m.params.IncludeOverdue = !m.params.IncludeOverdue
		return m.reload()
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.searchInput.SetValue(m.params.Query)
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.searchInput.Blur()
		m.params.Query = m.searchInput.Value()
		m.cursor = 0
		return m.reload()
	case tea.KeyEsc:
		m.searching = false
		m.searchInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}
