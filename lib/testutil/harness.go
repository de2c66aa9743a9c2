// Package testutil provides stub collaborators for exercising the tunnel
// lifecycle without a real engine, host environment, or network. The stubs
// record every call so tests can assert ordering and payloads.
package testutil

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"github.com/go-wg/tunnelkit/lib/backend"
	"github.com/go-wg/tunnelkit/lib/netmon"
	"github.com/go-wg/tunnelkit/lib/settings"
)

// StubEngine is an in-memory backend.Engine.
type StubEngine struct {
	mu       sync.Mutex
	calls    []string
	configs  map[backend.Handle]string
	next     backend.Handle
	startErr error
}

// NewStubEngine creates a stub engine.
func NewStubEngine() *StubEngine {
	return &StubEngine{configs: make(map[backend.Handle]string)}
}

// Start implements backend.Engine.
func (e *StubEngine) Start(configText string, tunFD int) (backend.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "start")
	if e.startErr != nil {
		return backend.InvalidHandle, e.startErr
	}
	handle := e.next
	e.next++
	e.configs[handle] = configText
	return handle, nil
}

// Stop implements backend.Engine.
func (e *StubEngine) Stop(handle backend.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "stop")
	delete(e.configs, handle)
}

// SetConfig implements backend.Engine.
func (e *StubEngine) SetConfig(handle backend.Handle, configText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "setconfig")
	if _, ok := e.configs[handle]; !ok {
		return errors.New("unknown handle")
	}
	e.configs[handle] = configText
	return nil
}

// GetConfig implements backend.Engine.
func (e *StubEngine) GetConfig(handle backend.Handle) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	text, ok := e.configs[handle]
	return text, ok
}

// BumpSockets implements backend.Engine.
func (e *StubEngine) BumpSockets(handle backend.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "bump")
}

// Calls returns the ordered call log.
func (e *StubEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// CallCount returns how often the named call was made.
func (e *StubEngine) CallCount(name string) int {
	n := 0
	for _, call := range e.Calls() {
		if call == name {
			n++
		}
	}
	return n
}

// LastConfig returns the configuration of the single live instance, or
// empty if none.
func (e *StubEngine) LastConfig() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, text := range e.configs {
		return text
	}
	return ""
}

// FailStarts makes subsequent Start calls fail with err; nil restores
// normal behavior.
func (e *StubEngine) FailStarts(err error) {
	e.mu.Lock()
	e.startErr = err
	e.mu.Unlock()
}

// StubEnvironment is a host environment that acknowledges settings
// immediately unless told otherwise.
type StubEnvironment struct {
	mu         sync.Mutex
	installs   int
	installErr error
	neverAck   bool
	fd         int
	fdOK       bool
	reasserts  []bool
}

// NewStubEnvironment creates a stub environment whose engine owns the
// virtual interface (descriptor -1, available).
func NewStubEnvironment() *StubEnvironment {
	return &StubEnvironment{fd: -1, fdOK: true}
}

// InstallSettings implements the environment contract.
func (s *StubEnvironment) InstallSettings(ns *settings.NetworkSettings, done func(error)) {
	s.mu.Lock()
	s.installs++
	err := s.installErr
	hang := s.neverAck
	s.mu.Unlock()
	if !hang {
		done(err)
	}
}

// TunnelFileDescriptor implements the environment contract.
func (s *StubEnvironment) TunnelFileDescriptor() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd, s.fdOK
}

// SetReasserting implements the environment contract.
func (s *StubEnvironment) SetReasserting(active bool) {
	s.mu.Lock()
	s.reasserts = append(s.reasserts, active)
	s.mu.Unlock()
}

// FailInstalls makes settings installation report err.
func (s *StubEnvironment) FailInstalls(err error) {
	s.mu.Lock()
	s.installErr = err
	s.mu.Unlock()
}

// NeverAcknowledge makes InstallSettings never invoke its callback,
// exercising the caller's timeout.
func (s *StubEnvironment) NeverAcknowledge() {
	s.mu.Lock()
	s.neverAck = true
	s.mu.Unlock()
}

// SetDescriptor controls what TunnelFileDescriptor returns.
func (s *StubEnvironment) SetDescriptor(fd int, ok bool) {
	s.mu.Lock()
	s.fd = fd
	s.fdOK = ok
	s.mu.Unlock()
}

// InstallCount returns how many times settings were installed.
func (s *StubEnvironment) InstallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installs
}

// ReassertLog returns every SetReasserting value in order.
func (s *StubEnvironment) ReassertLog() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.reasserts...)
}

// ManualMonitor is a netmon.Monitor whose events a test fires by hand.
type ManualMonitor struct {
	mu      sync.Mutex
	handler netmon.Handler
	stops   int
}

// Start implements netmon.Monitor.
func (m *ManualMonitor) Start(handler netmon.Handler) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	return nil
}

// Stop implements netmon.Monitor.
func (m *ManualMonitor) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

// Fire delivers one path observation to the registered handler.
func (m *ManualMonitor) Fire(path netmon.Path) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(path)
	}
}

// StopCount returns how many times Stop was called.
func (m *ManualMonitor) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// CountingLookup resolves every host to a fixed address and counts calls.
// Plug its Lookup into resolve.NewWithLookup.
type CountingLookup struct {
	mu    sync.Mutex
	addr  netip.Addr
	calls int
	err   error
}

// NewCountingLookup creates a lookup answering with addr.
func NewCountingLookup(addr netip.Addr) *CountingLookup {
	return &CountingLookup{addr: addr}
}

// Lookup matches resolve.LookupFunc.
func (c *CountingLookup) Lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []netip.Addr{c.addr}, nil
}

// Count returns how many lookups were made.
func (c *CountingLookup) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Fail makes subsequent lookups return err; nil restores success.
func (c *CountingLookup) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
