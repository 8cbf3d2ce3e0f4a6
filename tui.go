package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/tomaslejdung/sharehost/pkg/capture"
	"github.com/tomaslejdung/sharehost/pkg/coordinator"
	"github.com/tomaslejdung/sharehost/pkg/device"
	"github.com/tomaslejdung/sharehost/pkg/session"
	"github.com/tomaslejdung/sharehost/pkg/settings"
)

const createTimeout = 15 * time.Second

// languages the viewer page can be switched to, cycled with L.
var languages = []string{"en", "de", "fr", "sv", "uk"}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	urlStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	viewerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	keySepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	activeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	inactiveBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)
)

// eventMsg carries a coordinator event into the update loop
type eventMsg coordinator.Event

// sessionCreatedMsg reports a new waiting session
type sessionCreatedMsg struct {
	info session.Info
}

// errMsg reports a failed background command
type errMsg struct {
	err error
}

type model struct {
	coord    *coordinator.Coordinator
	store    *settings.Store
	shareURL func(room string) string
	events   <-chan coordinator.Event
	cancel   func()

	// Snapshot of coordinator state, refreshed after every message
	waiting    *session.Info
	pending    *device.Device
	sessions   []session.Info
	sources    []capture.Source
	sourceIdx  int
	lang       string
	creating   bool
	lastError  string
	lastNotice string

	width  int
	height int
}

func newModel(coord *coordinator.Coordinator, store *settings.Store, shareURL func(string) string) model {
	events, cancel := coord.Subscribe(32)
	m := model{
		coord:    coord,
		store:    store,
		shareURL: shareURL,
		events:   events,
		cancel:   cancel,
		lang:     settings.DefaultSettings().Language,
	}
	if store != nil {
		if u, err := store.Load(); err == nil {
			m.lang = u.Language
			m.sync()
			m.selectSource(u.LastSourceID)
			return m
		}
	}
	m.sync()
	return m
}

func waitForEvent(ch <-chan coordinator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func createSession(coord *coordinator.Coordinator) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
		defer cancel()
		info, err := coord.CreateWaitingSession(ctx)
		if err != nil {
			return errMsg{err}
		}
		return sessionCreatedMsg{info}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), createSession(m.coord))
}

// sync copies the coordinator state the view needs.
func (m *model) sync() {
	m.waiting = nil
	if info, ok := m.coord.WaitingSession(); ok {
		m.waiting = &info
	}
	m.pending = nil
	if d, ok := m.coord.PendingDevice(); ok {
		m.pending = &d
	}
	m.sessions = m.coord.Sessions()
	m.sources = m.coord.Sources()
	if m.sourceIdx >= len(m.sources) {
		m.sourceIdx = max(len(m.sources)-1, 0)
	}
}

func (m *model) selectSource(id string) {
	for i, s := range m.sources {
		if s.ID == id {
			m.sourceIdx = i
			return
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.lastNotice = describeEvent(coordinator.Event(msg))
		if msg.Type == coordinator.EventTransportFailed {
			m.lastError = msg.Error
		}
		m.sync()
		return m, waitForEvent(m.events)

	case sessionCreatedMsg:
		m.creating = false
		m.lastError = ""
		m.lastNotice = "Room " + msg.info.ID + " is waiting for a viewer"
		m.sync()
		return m, nil

	case errMsg:
		m.creating = false
		if !errors.Is(msg.err, coordinator.ErrCreationSuperseded) {
			m.lastError = msg.err.Error()
		}
		m.sync()
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.coord.DisconnectAllAndReset()
		m.cancel()
		return m, tea.Quit

	case "n":
		m.creating = true
		m.lastError = ""
		return m, createSession(m.coord)

	case "r":
		m.coord.ResetWaitingSession()
		m.creating = false
		m.lastNotice = "Waiting session reset"

	case "a":
		m.coord.ConfirmConnected()

	case "enter":
		if len(m.sources) == 0 {
			m.lastError = "No sources to share"
			break
		}
		src := m.sources[m.sourceIdx]
		m.coord.StartSharing(src.ID)
		if m.store != nil {
			if _, err := m.store.Update(func(u *settings.UserSettings) { u.LastSourceID = src.ID }); err != nil {
				log.Warn().Err(err).Str("module", "tui").Msg("persist last source")
			}
		}

	case "up", "k":
		if m.sourceIdx > 0 {
			m.sourceIdx--
		}

	case "down", "j":
		if m.sourceIdx < len(m.sources)-1 {
			m.sourceIdx++
		}

	case "d":
		m.coord.DisconnectAllDevices()
		m.lastNotice = "All devices disconnected"

	case "x":
		m.coord.DisconnectAllAndReset()
		m.creating = false
		m.lastNotice = "Everything reset"

	case "L":
		m.lang = nextLanguage(m.lang)
		m.coord.AppLanguageChanged(m.lang)
		if m.store != nil {
			if _, err := m.store.Update(func(u *settings.UserSettings) { u.Language = m.lang }); err != nil {
				log.Warn().Err(err).Str("module", "tui").Msg("persist language")
			}
		}

	case "R":
		if err := m.coord.RefreshSources(context.Background()); err != nil {
			m.lastError = err.Error()
		}
	}

	m.sync()
	return m, nil
}

func nextLanguage(cur string) string {
	for i, l := range languages {
		if l == cur {
			return languages[(i+1)%len(languages)]
		}
	}
	return languages[0]
}

func describeEvent(ev coordinator.Event) string {
	switch ev.Type {
	case coordinator.EventDeviceConnected:
		if ev.Device != nil {
			return "Device " + deviceLabel(*ev.Device) + " joined " + ev.Room
		}
		return "Device joined " + ev.Room
	case coordinator.EventSharingStarted:
		return "Sharing " + ev.SourceID + " in " + ev.Room
	case coordinator.EventSessionDestroyed:
		return "Session " + ev.Room + " ended"
	case coordinator.EventPeerDisconnected:
		return "Viewer left " + ev.Room
	case coordinator.EventTransportFailed:
		return "Connection lost in " + ev.Room
	case coordinator.EventLanguageChanged:
		return "Language set to " + ev.Lang
	case coordinator.EventReset:
		return "All sessions reset"
	}
	return string(ev.Type)
}

func deviceLabel(d device.Device) string {
	var parts []string
	for _, p := range []string{d.Metadata.DeviceType, d.Metadata.OS, d.Metadata.Browser} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return d.ID
	}
	return strings.Join(parts, " · ")
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sharehost"))
	b.WriteString(dimStyle.Render("  lang " + m.lang))
	b.WriteString("\n\n")

	b.WriteString(m.renderRoom())
	b.WriteString("\n")
	b.WriteString(m.renderSources())
	b.WriteString("\n")

	if len(m.sessions) > 0 {
		b.WriteString(m.renderSessions())
		b.WriteString("\n")
	}

	if m.lastError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.lastError))
		b.WriteString("\n")
	} else if m.lastNotice != "" {
		b.WriteString(statusStyle.Render(m.lastNotice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m model) renderRoom() string {
	var b strings.Builder
	switch {
	case m.waiting != nil:
		b.WriteString(normalStyle.Render("Room  "))
		b.WriteString(selectedStyle.Render(m.waiting.ID))
		b.WriteString(dimStyle.Render("  " + m.waiting.Status.String()))
		if u := m.shareURL(m.waiting.ID); u != "" {
			b.WriteString("\n")
			b.WriteString(normalStyle.Render("Share "))
			b.WriteString(urlStyle.Render(u))
		}
		if m.pending != nil {
			b.WriteString("\n")
			b.WriteString(viewerStyle.Render("Device waiting: " + deviceLabel(*m.pending)))
			if m.waiting.Status == session.NotConnected {
				b.WriteString(dimStyle.Render("  (a to accept)"))
			}
		}
	case m.creating:
		b.WriteString(dimStyle.Render("Opening room..."))
	default:
		b.WriteString(dimStyle.Render("No room open. Press n to create one."))
	}
	style := inactiveBoxStyle
	if m.waiting != nil {
		style = activeBoxStyle
	}
	return style.Render(b.String())
}

func (m model) renderSources() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sources"))
	b.WriteString("\n")
	if len(m.sources) == 0 {
		b.WriteString(dimStyle.Render("  none configured"))
		return b.String()
	}
	for i, s := range m.sources {
		line := fmt.Sprintf("%d. %s", i+1, s.Name)
		if i == m.sourceIdx {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(normalStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m model) renderSessions() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions"))
	for _, s := range m.sessions {
		b.WriteString("\n  ")
		b.WriteString(normalStyle.Render(s.ID))
		b.WriteString(dimStyle.Render("  " + s.Status.String()))
		if s.CapturedSourceID != "" {
			b.WriteString(statusStyle.Render("  " + s.CapturedSourceID))
		}
	}
	return b.String()
}

func (m model) renderHelp() string {
	sep := keySepStyle.Render("  ")

	var actions []string
	actions = append(actions, keyStyle.Render("n")+helpStyle.Render(" new"))
	if m.waiting != nil {
		actions = append(actions, keyStyle.Render("r")+helpStyle.Render(" reset"))
	}
	if m.pending != nil {
		actions = append(actions, keyStyle.Render("a")+helpStyle.Render(" accept"))
	}
	actions = append(actions, keyStyle.Render("↑↓")+helpStyle.Render(" select"))
	actions = append(actions, keyStyle.Render("enter")+helpStyle.Render(" share"))
	actions = append(actions, keyStyle.Render("d")+helpStyle.Render(" drop devices"))
	actions = append(actions, keyStyle.Render("x")+helpStyle.Render(" reset all"))
	actions = append(actions, keyStyle.Render("L")+helpStyle.Render(" language"))
	actions = append(actions, keyStyle.Render("R")+helpStyle.Render(" refresh"))
	actions = append(actions, keyStyle.Render("q")+helpStyle.Render(" quit"))
	return strings.Join(actions, sep)
}

// runTUI starts the interactive host and tears everything down on exit.
func runTUI(cfg *Config) error {
	closeLog, err := setupLogging(cfg.Log, true)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	app := newApp(cfg)
	if err := app.Start(context.Background()); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Shutdown(ctx)
	}()

	p := tea.NewProgram(
		newModel(app.coord, app.settings, app.ShareURL),
		tea.WithAltScreen(),
	)
	_, runErr := p.Run()
	return runErr
}
