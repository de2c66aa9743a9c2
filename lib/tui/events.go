package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-wg/tunnelkit/lib/tunnel"
)

// maxEvents bounds the scrollback so a long-running session does not grow
// without limit.
const maxEvents = 500

// EventsModel is the model for the events view.
type EventsModel struct {
	events   []tunnel.Event
	viewport viewport.Model
	ready    bool
	width    int
	height   int
	follow   bool // auto-scroll to bottom
}

// NewEventsModel creates a new events view model.
func NewEventsModel() EventsModel {
	return EventsModel{
		follow: true,
	}
}

// Append adds one event to the scrollback.
func (m *EventsModel) Append(event tunnel.Event) {
	m.events = append(m.events, event)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if m.ready {
		m.updateViewport()
	}
}

// SetDimensions sets the view dimensions.
func (m *EventsModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
	if !m.ready {
		m.viewport = viewport.New(width, height-4)
		m.viewport.YPosition = 0
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = height - 4
	}
	m.updateViewport()
}

// Update handles messages for the events view.
func (m EventsModel) Update(msg tea.Msg) (EventsModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		case "g":
			m.viewport.GotoTop()
			m.follow = false
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			m.follow = true
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()

	return m, cmd
}

// View renders the events view.
func (m EventsModel) View() string {
	if !m.ready {
		return styles.Muted.Render("Initializing...")
	}

	if len(m.events) == 0 {
		return styles.Muted.Render("No events yet")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

// renderHeader renders the events header.
func (m EventsModel) renderHeader() string {
	followStatus := "OFF"
	if m.follow {
		followStatus = "ON"
	}
	return styles.Muted.Render(fmt.Sprintf(
		"Events ─ %d entries │ Follow: %s │ (g)top (G)bottom (f)toggle follow",
		len(m.events),
		followStatus,
	))
}

// renderFooter renders the scroll position footer.
func (m EventsModel) renderFooter() string {
	return styles.Muted.Render(fmt.Sprintf(
		"─── %.0f%% ───",
		m.viewport.ScrollPercent()*100,
	))
}

// updateViewport updates the viewport content.
func (m *EventsModel) updateViewport() {
	var content strings.Builder
	for _, event := range m.events {
		content.WriteString(m.formatEvent(event))
		content.WriteString("\n")
	}
	m.viewport.SetContent(content.String())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// formatEvent formats a single event line.
func (m EventsModel) formatEvent(event tunnel.Event) string {
	timestamp := event.Timestamp.Format("15:04:05")
	label := fmt.Sprintf("[%-18s]", event.Type)

	message := event.Message
	if event.Error != nil {
		message = fmt.Sprintf("%s: %v", message, event.Error)
	}
	if event.Path != nil && len(event.Path.Interfaces) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(event.Path.Interfaces, ", "))
	}

	return fmt.Sprintf("%s %s %s",
		styles.Muted.Render(timestamp),
		m.typeStyle(event.Type).Render(label),
		message,
	)
}

// typeStyle returns the style for an event type.
func (m EventsModel) typeStyle(t tunnel.EventType) lipgloss.Style {
	switch t {
	case tunnel.EventError:
		return styles.Error
	case tunnel.EventTemporaryShutdown:
		return styles.Warning
	case tunnel.EventStarted, tunnel.EventRestarted:
		return styles.Success
	default:
		return styles.Muted
	}
}
