package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-wg/tunnelkit/lib/tunnel"
)

// StatusData is the snapshot the status view renders.
type StatusData struct {
	State         tunnel.State
	InterfaceName string
	DroppedEvents uint64
	Uptime        time.Duration
}

// StatusModel is the model for the status view.
type StatusModel struct {
	data    *StatusData
	version string
	width   int
	height  int
}

// NewStatusModel creates a new status view model.
func NewStatusModel(version string) StatusModel {
	return StatusModel{version: version}
}

// SetData updates the status data.
func (m *StatusModel) SetData(data StatusData) {
	m.data = &data
}

// SetDimensions sets the view dimensions.
func (m *StatusModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// View renders the status view.
func (m StatusModel) View() string {
	if m.data == nil {
		return styles.Muted.Render("Loading status...")
	}

	var b strings.Builder

	mainBox := styles.Box.Width(60)

	mainContent := lipgloss.JoinVertical(lipgloss.Left,
		styles.BoxTitle.Render("Tunnel"),
		"",
		m.statusRow("State", stateStyle(m.data.State).Render(string(m.data.State))),
		m.statusRow("Interface", m.formatOptional(m.data.InterfaceName)),
		m.statusRow("Version", m.formatOptional(m.version)),
		m.statusRow("Session", m.data.Uptime.Truncate(time.Second).String()),
	)

	b.WriteString(mainBox.Render(mainContent))
	b.WriteString("\n\n")

	deliveryStyle := styles.Muted
	if m.data.DroppedEvents > 0 {
		deliveryStyle = styles.Warning
	}

	eventContent := lipgloss.JoinVertical(lipgloss.Left,
		styles.BoxTitle.Render("Event Delivery"),
		"",
		m.statusRow("Dropped", deliveryStyle.Render(fmt.Sprintf("%d", m.data.DroppedEvents))),
	)

	b.WriteString(styles.Box.Width(60).Render(eventContent))

	return b.String()
}

// statusRow formats a status row with label and value.
func (m StatusModel) statusRow(label, value string) string {
	labelStyle := styles.Muted.Width(12)
	return labelStyle.Render(label+":") + " " + value
}

// formatOptional formats an optional value.
func (m StatusModel) formatOptional(value string) string {
	if value == "" {
		return styles.Muted.Render("(not set)")
	}
	return value
}
