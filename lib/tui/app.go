// Package tui provides an interactive terminal user interface for wgtunnel.
// It uses BubbleTea for the application framework and observes a running
// tunnel coordinator directly.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	tkerrors "github.com/go-wg/tunnelkit/lib/errors"
	"github.com/go-wg/tunnelkit/lib/tunnel"
)

// Tab represents a UI tab.
type Tab int

const (
	TabStatus Tab = iota
	TabPeers
	TabEvents
)

func (t Tab) String() string {
	switch t {
	case TabStatus:
		return "Status"
	case TabPeers:
		return "Peers"
	case TabEvents:
		return "Events"
	default:
		return "Unknown"
	}
}

// Config holds TUI configuration.
type Config struct {
	// Coordinator is the tunnel to observe. Required.
	Coordinator *tunnel.Coordinator
	// RefreshInterval is how often to refresh data (default 2s).
	RefreshInterval time.Duration
	// Version is shown in the status view.
	Version string
}

// Model is the main TUI application model.
type Model struct {
	coord   *tunnel.Coordinator
	refresh time.Duration
	version string

	activeTab   Tab
	width       int
	height      int
	ready       bool
	err         error
	lastRefresh time.Time

	spinner    spinner.Model
	statusView StatusModel
	peersView  PeersModel
	eventsView EventsModel

	startedAt time.Time
}

// New creates a new TUI model.
func New(cfg Config) (*Model, error) {
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 2 * time.Second
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return &Model{
		coord:      cfg.Coordinator,
		refresh:    refresh,
		version:    cfg.Version,
		activeTab:  TabStatus,
		spinner:    s,
		statusView: NewStatusModel(cfg.Version),
		peersView:  NewPeersModel(),
		eventsView: NewEventsModel(),
		startedAt:  time.Now(),
	}, nil
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.refreshData,
		m.waitForEvent,
		tea.SetWindowTitle("wgtunnel"),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Tab):
			m.activeTab = Tab((int(m.activeTab) + 1) % 3)
		case key.Matches(msg, keys.ShiftTab):
			m.activeTab = Tab((int(m.activeTab) + 2) % 3)
		case key.Matches(msg, keys.Refresh):
			cmds = append(cmds, m.refreshData)
		case key.Matches(msg, keys.Status):
			m.activeTab = TabStatus
		case key.Matches(msg, keys.Peers):
			m.activeTab = TabPeers
		case key.Matches(msg, keys.Events):
			m.activeTab = TabEvents
		}

		switch m.activeTab {
		case TabPeers:
			var cmd tea.Cmd
			m.peersView, cmd = m.peersView.Update(msg)
			cmds = append(cmds, cmd)
		case TabEvents:
			var cmd tea.Cmd
			m.eventsView, cmd = m.eventsView.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		contentHeight := m.height - 4 // Header + footer
		m.statusView.SetDimensions(m.width, contentHeight)
		m.peersView.SetDimensions(m.width, contentHeight)
		m.eventsView.SetDimensions(m.width, contentHeight)

	case refreshMsg:
		m.err = msg.err
		m.lastRefresh = time.Now()
		m.statusView.SetData(msg.status)
		m.peersView.SetData(msg.peers)
		cmds = append(cmds, tea.Tick(m.refresh, func(t time.Time) tea.Msg {
			return tickMsg(t)
		}))

	case tickMsg:
		cmds = append(cmds, m.refreshData)

	case eventMsg:
		m.eventsView.Append(msg.event)
		cmds = append(cmds, m.waitForEvent, m.refreshData)

	case eventsClosedMsg:
		// Coordinator is gone; nothing more will arrive.

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return fmt.Sprintf("%s Loading...", m.spinner.View())
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.activeTab {
	case TabStatus:
		b.WriteString(m.statusView.View())
	case TabPeers:
		b.WriteString(m.peersView.View())
	case TabEvents:
		b.WriteString(m.eventsView.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the tab bar.
func (m Model) renderHeader() string {
	tabs := []Tab{TabStatus, TabPeers, TabEvents}

	var renderedTabs []string
	for _, tab := range tabs {
		style := styles.TabInactive
		if tab == m.activeTab {
			style = styles.TabActive
		}
		renderedTabs = append(renderedTabs, style.Render(tab.String()))
	}

	title := styles.Title.Render("wgtunnel")
	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)

	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", tabBar)
}

// renderFooter renders the help text and current tunnel state.
func (m Model) renderFooter() string {
	var helpItems []string
	switch m.activeTab {
	case TabPeers:
		helpItems = append(helpItems, "↑↓ navigate")
	case TabEvents:
		helpItems = append(helpItems, "↑↓ scroll", "f follow")
	}
	helpItems = append(helpItems, "tab switch", "r refresh", "q quit")
	help := strings.Join(helpItems, " • ")

	statusInfo := stateStyle(m.coord.State()).Render(string(m.coord.State()))
	if m.err != nil {
		statusInfo = styles.Error.Render(m.err.Error())
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		styles.HelpText.Render(help),
		strings.Repeat(" ", max(0, m.width-lipgloss.Width(help)-lipgloss.Width(statusInfo)-2)),
		styles.StatusText.Render(statusInfo),
	)
}

// refreshData takes a fresh snapshot of the coordinator.
func (m Model) refreshData() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	msg := refreshMsg{
		status: StatusData{
			State:         m.coord.State(),
			InterfaceName: m.coord.InterfaceName(),
			DroppedEvents: m.coord.DroppedEventCount(),
			Uptime:        time.Since(m.startedAt),
		},
	}

	runtime, err := m.coord.RuntimeConfiguration(ctx)
	switch {
	case err == nil:
		msg.peers = parseRuntime(runtime)
	case tkerrors.IsInvalidState(err):
		// Not started; an empty peer list is the truthful answer.
	default:
		msg.err = err
	}

	return msg
}

// waitForEvent blocks on the coordinator's event channel.
func (m Model) waitForEvent() tea.Msg {
	event, ok := <-m.coord.Events()
	if !ok {
		return eventsClosedMsg{}
	}
	return eventMsg{event: event}
}

// Messages

type refreshMsg struct {
	status StatusData
	peers  []PeerRow
	err    error
}

type tickMsg time.Time

type eventMsg struct {
	event tunnel.Event
}

type eventsClosedMsg struct{}

func stateStyle(state tunnel.State) lipgloss.Style {
	switch state {
	case tunnel.StateStarted:
		return styles.Success
	case tunnel.StateTemporaryShutdown:
		return styles.Warning
	default:
		return styles.Muted
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
