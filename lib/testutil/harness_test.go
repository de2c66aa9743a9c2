package testutil

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/go-wg/tunnelkit/lib/backend"
	"github.com/go-wg/tunnelkit/lib/netmon"
	"github.com/go-wg/tunnelkit/lib/settings"
)

func TestStubEngineLifecycle(t *testing.T) {
	e := NewStubEngine()

	h1, err := e.Start("private_key=aa\n", -1)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h2, err := e.Start("private_key=bb\n", -1)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h1 == h2 {
		t.Error("handles must be unique")
	}

	if err := e.SetConfig(h1, "private_key=cc\n"); err != nil {
		t.Errorf("SetConfig() error = %v", err)
	}
	if text, ok := e.GetConfig(h1); !ok || text != "private_key=cc\n" {
		t.Errorf("GetConfig() = %q, %v", text, ok)
	}

	e.Stop(h1)
	if _, ok := e.GetConfig(h1); ok {
		t.Error("stopped handle must not be live")
	}
	if err := e.SetConfig(h1, "x"); err == nil {
		t.Error("SetConfig on stopped handle should fail")
	}

	e.BumpSockets(h2)
	if got := e.CallCount("bump"); got != 1 {
		t.Errorf("bump count = %d", got)
	}
}

func TestStubEngineFailStarts(t *testing.T) {
	e := NewStubEngine()
	e.FailStarts(errors.New("boom"))

	if h, err := e.Start("", -1); err == nil || h != backend.InvalidHandle {
		t.Errorf("Start() = %v, %v; want invalid handle and error", h, err)
	}

	e.FailStarts(nil)
	if _, err := e.Start("", -1); err != nil {
		t.Errorf("Start() after reset error = %v", err)
	}
}

func TestStubEnvironment(t *testing.T) {
	env := NewStubEnvironment()

	var got error = errors.New("sentinel not overwritten")
	env.InstallSettings(&settings.NetworkSettings{}, func(err error) { got = err })
	if got != nil {
		t.Errorf("install callback error = %v, want nil", got)
	}
	if env.InstallCount() != 1 {
		t.Errorf("InstallCount() = %d", env.InstallCount())
	}

	env.FailInstalls(errors.New("rejected"))
	env.InstallSettings(&settings.NetworkSettings{}, func(err error) { got = err })
	if got == nil {
		t.Error("install callback should receive the failure")
	}

	env.NeverAcknowledge()
	fired := false
	env.InstallSettings(&settings.NetworkSettings{}, func(error) { fired = true })
	if fired {
		t.Error("NeverAcknowledge must suppress the callback")
	}

	env.SetReasserting(true)
	env.SetReasserting(false)
	if log := env.ReassertLog(); len(log) != 2 || !log[0] || log[1] {
		t.Errorf("ReassertLog() = %v", log)
	}
}

func TestManualMonitor(t *testing.T) {
	m := &ManualMonitor{}

	// Firing before Start is a no-op.
	m.Fire(netmon.Path{Status: netmon.Satisfied})

	var received []netmon.Path
	if err := m.Start(func(p netmon.Path) { received = append(received, p) }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Fire(netmon.Path{Status: netmon.Unsatisfied})
	if len(received) != 1 || received[0].Status != netmon.Unsatisfied {
		t.Errorf("received = %+v", received)
	}

	m.Stop()
	m.Stop()
	if m.StopCount() != 2 {
		t.Errorf("StopCount() = %d", m.StopCount())
	}
}

func TestCountingLookup(t *testing.T) {
	lookup := NewCountingLookup(netip.MustParseAddr("192.0.2.1"))

	addrs, err := lookup.Lookup(context.Background(), "example.com")
	if err != nil || len(addrs) != 1 {
		t.Fatalf("Lookup() = %v, %v", addrs, err)
	}
	if lookup.Count() != 1 {
		t.Errorf("Count() = %d", lookup.Count())
	}

	lookup.Fail(errors.New("nxdomain"))
	if _, err := lookup.Lookup(context.Background(), "example.com"); err == nil {
		t.Error("Lookup() should fail after Fail()")
	}
}
