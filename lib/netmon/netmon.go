// Package netmon observes network path changes: which usable interfaces
// exist and whether the network can currently carry tunnel traffic. Events
// are delivered asynchronously on the monitor's own goroutine; consumers
// must re-dispatch onto their own execution context before acting.
package netmon

import (
	"net"
	"slices"
)

// Status describes whether the current network path can carry traffic.
type Status int

const (
	// Satisfied means the path is usable.
	Satisfied Status = iota
	// Unsatisfied means no usable path exists.
	Unsatisfied
	// RequiresConnection means a path could exist but something must dial
	// first (e.g. on-demand VPN or PPPoE). Treated as unusable: the engine
	// itself cannot make that connection happen.
	RequiresConnection
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case Unsatisfied:
		return "unsatisfied"
	case RequiresConnection:
		return "requires-connection"
	default:
		return "unknown"
	}
}

// Satisfiable reports whether the tunnel can run over this path.
func (s Status) Satisfiable() bool {
	return s == Satisfied
}

// Path is one observation of the network: reachability status plus the
// ordered list of currently usable interfaces.
type Path struct {
	Status     Status
	Interfaces []string
}

// Equal reports whether two observations are identical.
func (p Path) Equal(other Path) bool {
	return p.Status == other.Status && slices.Equal(p.Interfaces, other.Interfaces)
}

// Handler receives path change events.
type Handler func(Path)

// Monitor emits path-change events. Implementations deliver events on
// their own goroutine, including one initial event describing the path at
// Start time.
type Monitor interface {
	// Start begins monitoring and delivering events to handler.
	Start(handler Handler) error
	// Stop halts monitoring. No events are delivered after Stop returns.
	Stop()
}

// usableInterfaces lists the names of interfaces that can carry traffic:
// up, not loopback, not point-to-point tunnels we created ourselves.
func usableInterfaces(ifaces []net.Interface, exclude string) []string {
	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if exclude != "" && iface.Name == exclude {
			continue
		}
		names = append(names, iface.Name)
	}
	return names
}
