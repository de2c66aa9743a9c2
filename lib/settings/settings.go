// Package settings transforms a tunnel configuration plus resolved endpoints
// into the two artifacts the rest of the system consumes: OS-level network
// settings (addresses, routes, DNS) and the backend engine's wire-format
// configuration text. Everything in this package is a pure function of its
// inputs; no I/O happens here.
package settings

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/go-wg/tunnelkit/lib/config"
	"github.com/go-wg/tunnelkit/lib/resolve"
)

// NetworkSettings describes what the host environment must install on the
// virtual interface while the tunnel is up.
type NetworkSettings struct {
	// Addresses are the interface's internal addresses.
	Addresses []netip.Prefix
	// Routes are the ranges to route into the tunnel, derived from the
	// peers' allowed IPs, deduplicated and sorted.
	Routes []netip.Prefix
	// DNS are the resolvers to install.
	DNS []netip.Addr
	// MTU is the interface MTU.
	MTU int
}

// PeerReport pairs one peer with its endpoint resolution outcome.
// Reports exist for logging only; they carry no control-flow significance.
type PeerReport struct {
	PublicKey string
	Outcome   resolve.Outcome
}

// Report describes how each peer's endpoint resolved.
type Report []PeerReport

// String renders the report for logs.
func (r Report) String() string {
	var b strings.Builder
	for i, pr := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		short := pr.PublicKey
		if len(short) > 8 {
			short = short[:8] + "..."
		}
		switch {
		case pr.Outcome.Absent():
			fmt.Fprintf(&b, "%s: no endpoint", short)
		case pr.Outcome.Failed():
			fmt.Fprintf(&b, "%s: failed (%v)", short, pr.Outcome.Err)
		default:
			fmt.Fprintf(&b, "%s: %s", short, pr.Outcome.Addr)
		}
	}
	return b.String()
}

// Generate produces the OS network settings, the backend configuration text,
// and a per-peer resolution report. The outcomes slice must be positionally
// aligned with the configuration's peers; a length mismatch is a caller bug
// and is reported as an error rather than silently misattributing endpoints.
func Generate(cfg *config.Config, outcomes []resolve.Outcome) (*NetworkSettings, string, Report, error) {
	if len(outcomes) != len(cfg.Peers) {
		return nil, "", nil, fmt.Errorf("resolution outcome count %d does not match peer count %d",
			len(outcomes), len(cfg.Peers))
	}

	ns := &NetworkSettings{
		Addresses: append([]netip.Prefix(nil), cfg.Addresses...),
		DNS:       append([]netip.Addr(nil), cfg.DNS...),
		MTU:       cfg.EffectiveMTU(),
		Routes:    deriveRoutes(cfg.Peers),
	}

	uapi := uapiConfig(cfg, outcomes)

	report := make(Report, len(cfg.Peers))
	for i := range cfg.Peers {
		report[i] = PeerReport{
			PublicKey: cfg.Peers[i].PublicKey.String(),
			Outcome:   outcomes[i],
		}
	}

	return ns, uapi, report, nil
}

// deriveRoutes flattens the peers' allowed IPs into a deduplicated,
// deterministically ordered route list.
func deriveRoutes(peers []config.Peer) []netip.Prefix {
	seen := make(map[netip.Prefix]struct{})
	var routes []netip.Prefix
	for _, peer := range peers {
		for _, ip := range peer.AllowedIPs {
			masked := ip.Masked()
			if _, dup := seen[masked]; dup {
				continue
			}
			seen[masked] = struct{}{}
			routes = append(routes, masked)
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if c := routes[i].Addr().Compare(routes[j].Addr()); c != 0 {
			return c < 0
		}
		return routes[i].Bits() < routes[j].Bits()
	})
	return routes
}
