// Package resolve turns peer endpoint specifications (host:port) into
// concrete network addresses. Resolution is synchronous and per-entry:
// one entry failing never aborts the others, and the caller receives an
// outcome for every entry, positionally aligned with its input.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-wg/tunnelkit/lib/config"
)

var log = logger.GetGoI2PLogger()

// DefaultLookupTimeout bounds a single hostname lookup.
const DefaultLookupTimeout = 10 * time.Second

// Error is a structured resolution failure for one endpoint. It carries the
// offending address string and the underlying cause.
type Error struct {
	// Spec is the endpoint specification that failed, in host:port form.
	Spec string
	// Err is the underlying lookup error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Spec, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Outcome is the resolution result for one endpoint specification.
// Exactly one of the three predicates (Absent, Resolved, Failed) holds.
type Outcome struct {
	// Endpoint is the original specification. Nil when the peer had no
	// endpoint at all.
	Endpoint *config.Endpoint
	// Addr is the resolved address. Valid only when Resolved() is true.
	Addr netip.AddrPort
	// Err is the per-entry failure. Non-nil only when Failed() is true.
	Err *Error
}

// Absent reports whether the input had no endpoint.
func (o Outcome) Absent() bool { return o.Endpoint == nil }

// Resolved reports whether the endpoint resolved to a concrete address.
func (o Outcome) Resolved() bool { return o.Endpoint != nil && o.Err == nil }

// Failed reports whether resolution of this entry failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// LookupFunc resolves a hostname to IP addresses. It matches the shape of
// net.Resolver.LookupNetIP with the network fixed to "ip".
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver resolves endpoint specifications using DNS.
type Resolver struct {
	lookup  LookupFunc
	timeout time.Duration
}

// New creates a Resolver backed by the system resolver.
func New() *Resolver {
	return &Resolver{
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
		timeout: DefaultLookupTimeout,
	}
}

// NewWithLookup creates a Resolver with a custom lookup function.
// Used by tests and by embedders with their own DNS path.
func NewWithLookup(lookup LookupFunc) *Resolver {
	return &Resolver{lookup: lookup, timeout: DefaultLookupTimeout}
}

// Resolve resolves every endpoint specification, returning one outcome per
// entry in input order. The outcomes slice always has len(endpoints)
// entries. The aggregate error is non-nil iff at least one entry failed;
// it joins all per-entry errors so no failed peer is silently dropped.
func (r *Resolver) Resolve(ctx context.Context, endpoints []*config.Endpoint) ([]Outcome, error) {
	outcomes := make([]Outcome, len(endpoints))

	// Hostnames may repeat across peers; resolve each distinct host once.
	cache := make(map[string]addrResult)

	var failures []error
	for i, ep := range endpoints {
		if ep == nil {
			continue
		}

		outcome := Outcome{Endpoint: ep}
		res, ok := cache[ep.Host]
		if !ok {
			res.addr, res.err = r.resolveHost(ctx, ep.Host)
			cache[ep.Host] = res
		}

		if res.err != nil {
			outcome.Err = &Error{Spec: ep.String(), Err: res.err}
			failures = append(failures, outcome.Err)
			log.WithField("endpoint", ep.String()).WithError(res.err).Debug("endpoint resolution failed")
		} else {
			outcome.Addr = netip.AddrPortFrom(res.addr, ep.Port)
		}
		outcomes[i] = outcome
	}

	if len(failures) > 0 {
		return outcomes, errors.Join(failures...)
	}
	return outcomes, nil
}

type addrResult struct {
	addr netip.Addr
	err  error
}

// resolveHost resolves a single host to one address, preferring IPv4.
// IP literals short-circuit without a DNS round trip.
func (r *Resolver) resolveHost(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no addresses for host %q", host)
	}

	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return addrs[0].Unmap(), nil
}
