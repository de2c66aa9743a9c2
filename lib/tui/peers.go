package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// PeerRow is one peer parsed from the engine's runtime configuration.
type PeerRow struct {
	PublicKey     string
	Endpoint      string
	LastHandshake time.Time
	TxBytes       uint64
	RxBytes       uint64
}

// PeersModel is the model for the peers view.
type PeersModel struct {
	peers  []PeerRow
	cursor int
	width  int
	height int
}

// NewPeersModel creates a new peers view model.
func NewPeersModel() PeersModel {
	return PeersModel{}
}

// SetData updates the peers data.
func (m *PeersModel) SetData(peers []PeerRow) {
	m.peers = peers
	if m.cursor >= len(m.peers) {
		m.cursor = max(0, len(m.peers)-1)
	}
}

// SetDimensions sets the view dimensions.
func (m *PeersModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages for the peers view.
func (m PeersModel) Update(msg tea.KeyMsg) (PeersModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.peers)-1 {
			m.cursor++
		}
	}
	return m, nil
}

// View renders the peers view.
func (m PeersModel) View() string {
	if len(m.peers) == 0 {
		return renderEmptyState(m.width, m.height,
			"No Peers",
			"The tunnel is not running or has no configured peers.",
			nil)
	}

	var b strings.Builder

	header := fmt.Sprintf("%-18s %-22s %-14s %-10s %-10s", "PEER", "ENDPOINT", "HANDSHAKE", "SENT", "RECEIVED")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	for i, peer := range m.peers {
		row := fmt.Sprintf("%-18s %-22s %-14s %-10s %-10s",
			truncate(peer.PublicKey, 18),
			truncate(m.formatEndpoint(peer.Endpoint), 22),
			m.formatHandshake(peer.LastHandshake),
			formatBytes(peer.TxBytes),
			formatBytes(peer.RxBytes),
		)

		if i == m.cursor {
			row = styles.Selected.Render(row)
		} else {
			row = styles.TableRow.Render(row)
		}

		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.Muted.Render(fmt.Sprintf("Total: %d peers", len(m.peers))))

	return b.String()
}

// SelectedPeer returns the currently selected peer.
func (m PeersModel) SelectedPeer() *PeerRow {
	if m.cursor >= 0 && m.cursor < len(m.peers) {
		return &m.peers[m.cursor]
	}
	return nil
}

func (m PeersModel) formatEndpoint(endpoint string) string {
	if endpoint == "" {
		return "(unknown)"
	}
	return endpoint
}

func (m PeersModel) formatHandshake(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := time.Since(t).Truncate(time.Second)
	if age < 0 {
		age = 0
	}
	return age.String() + " ago"
}

// parseRuntime extracts peer rows from the engine's runtime configuration
// snapshot, which is UAPI key=value text. Interface-level keys are skipped;
// a public_key line opens a new peer stanza.
func parseRuntime(text string) []PeerRow {
	var peers []PeerRow
	var current *PeerRow

	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "public_key":
			peers = append(peers, PeerRow{PublicKey: v})
			current = &peers[len(peers)-1]
		case "endpoint":
			if current != nil {
				current.Endpoint = v
			}
		case "last_handshake_time_sec":
			if current != nil {
				if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
					current.LastHandshake = time.Unix(sec, 0)
				}
			}
		case "tx_bytes":
			if current != nil {
				current.TxBytes, _ = strconv.ParseUint(v, 10, 64)
			}
		case "rx_bytes":
			if current != nil {
				current.RxBytes, _ = strconv.ParseUint(v, 10, 64)
			}
		}
	}

	return peers
}
