package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/go-wg/tunnelkit/lib/config"
)

// fakeLookup maps hostnames to fixed answers and records call counts.
type fakeLookup struct {
	answers map[string][]netip.Addr
	calls   map[string]int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		answers: make(map[string][]netip.Addr),
		calls:   make(map[string]int),
	}
}

func (f *fakeLookup) fn(_ context.Context, host string) ([]netip.Addr, error) {
	f.calls[host]++
	addrs, ok := f.answers[host]
	if !ok {
		return nil, fmt.Errorf("no such host %q", host)
	}
	return addrs, nil
}

func ep(host string, port uint16) *config.Endpoint {
	return &config.Endpoint{Host: host, Port: port}
}

func TestResolve_Alignment(t *testing.T) {
	lookup := newFakeLookup()
	lookup.answers["good.example.com"] = []netip.Addr{netip.MustParseAddr("192.0.2.10")}
	r := NewWithLookup(lookup.fn)

	endpoints := []*config.Endpoint{
		ep("good.example.com", 51820),
		nil,
		ep("bad.invalid", 51820),
	}

	outcomes, err := r.Resolve(context.Background(), endpoints)
	if err == nil {
		t.Fatal("Resolve should fail in aggregate when any entry fails")
	}
	if len(outcomes) != len(endpoints) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(endpoints))
	}

	if !outcomes[0].Resolved() {
		t.Error("outcome 0 should be resolved")
	}
	if got, want := outcomes[0].Addr.String(), "192.0.2.10:51820"; got != want {
		t.Errorf("outcome 0 addr = %q, want %q", got, want)
	}
	if !outcomes[1].Absent() {
		t.Error("outcome 1 should be absent")
	}
	if !outcomes[2].Failed() {
		t.Error("outcome 2 should be failed")
	}
	if outcomes[2].Err.Spec != "bad.invalid:51820" {
		t.Errorf("failed outcome spec = %q", outcomes[2].Err.Spec)
	}
}

func TestResolve_ExactlyOnePredicate(t *testing.T) {
	lookup := newFakeLookup()
	lookup.answers["ok.example.com"] = []netip.Addr{netip.MustParseAddr("203.0.113.7")}
	r := NewWithLookup(lookup.fn)

	endpoints := []*config.Endpoint{nil, ep("ok.example.com", 1), ep("nope.invalid", 2)}
	outcomes, _ := r.Resolve(context.Background(), endpoints)

	for i, o := range outcomes {
		n := 0
		for _, p := range []bool{o.Absent(), o.Resolved(), o.Failed()} {
			if p {
				n++
			}
		}
		if n != 1 {
			t.Errorf("outcome %d: %d predicates hold, want exactly 1", i, n)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	r := NewWithLookup(newFakeLookup().fn)
	outcomes, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Errorf("Resolve(nil) error = %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("len(outcomes) = %d, want 0", len(outcomes))
	}
}

func TestResolve_AllFailing(t *testing.T) {
	r := NewWithLookup(newFakeLookup().fn)
	endpoints := []*config.Endpoint{ep("a.invalid", 1), ep("b.invalid", 2)}

	outcomes, err := r.Resolve(context.Background(), endpoints)
	if err == nil {
		t.Fatal("Resolve should fail in aggregate")
	}
	for i, o := range outcomes {
		if !o.Failed() {
			t.Errorf("outcome %d should be failed", i)
		}
	}

	// Both failures must be visible in the aggregate error.
	var re *Error
	if !errors.As(err, &re) {
		t.Fatal("aggregate error should contain *Error entries")
	}
}

func TestResolve_DuplicateHostsLookedUpOnce(t *testing.T) {
	lookup := newFakeLookup()
	lookup.answers["dup.example.com"] = []netip.Addr{netip.MustParseAddr("198.51.100.3")}
	r := NewWithLookup(lookup.fn)

	endpoints := []*config.Endpoint{
		ep("dup.example.com", 100),
		ep("dup.example.com", 200),
	}

	outcomes, err := r.Resolve(context.Background(), endpoints)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if lookup.calls["dup.example.com"] != 1 {
		t.Errorf("host looked up %d times, want 1", lookup.calls["dup.example.com"])
	}
	// Ports must still come from each entry, not the cache.
	if outcomes[0].Addr.Port() != 100 || outcomes[1].Addr.Port() != 200 {
		t.Errorf("ports = %d, %d", outcomes[0].Addr.Port(), outcomes[1].Addr.Port())
	}
}

func TestResolve_PrefersIPv4(t *testing.T) {
	lookup := newFakeLookup()
	lookup.answers["dual.example.com"] = []netip.Addr{
		netip.MustParseAddr("2001:db8::5"),
		netip.MustParseAddr("192.0.2.5"),
	}
	r := NewWithLookup(lookup.fn)

	outcomes, err := r.Resolve(context.Background(), []*config.Endpoint{ep("dual.example.com", 51820)})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := outcomes[0].Addr.Addr().String(); got != "192.0.2.5" {
		t.Errorf("resolved %q, want the IPv4 answer", got)
	}
}

func TestResolve_IPLiteralSkipsLookup(t *testing.T) {
	lookup := newFakeLookup()
	r := NewWithLookup(lookup.fn)

	outcomes, err := r.Resolve(context.Background(), []*config.Endpoint{ep("192.0.2.99", 51820)})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !outcomes[0].Resolved() {
		t.Fatal("IP literal should resolve")
	}
	if len(lookup.calls) != 0 {
		t.Error("IP literal should not hit DNS")
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("no such host")
	e := &Error{Spec: "bad.invalid:51820", Err: cause}
	if e.Error() != `resolving "bad.invalid:51820": no such host` {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Error("Error should unwrap to its cause")
	}
}
