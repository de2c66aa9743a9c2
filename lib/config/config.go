// Package config defines the declarative tunnel configuration consumed by
// the lifecycle coordinator. A Config is supplied by the user, validated
// once, and treated as immutable afterwards: the coordinator and settings
// generator only ever read it.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-wg/tunnelkit/lib/validation"
)

// DefaultMTU is used when the interface MTU is not set.
const DefaultMTU = 1420

// Endpoint is a peer's unresolved network address: a host (DNS name or IP
// literal) and a UDP port. Resolution happens in lib/resolve.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// ParseEndpoint parses a host:port endpoint specification.
func ParseEndpoint(s string) (Endpoint, error) {
	if err := validation.Endpoint("endpoint", s); err != nil {
		return Endpoint{}, err
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint port %q: %w", portStr, err)
	}

	return Endpoint{Host: host, Port: uint16(port)}, nil
}

// Peer describes one remote tunnel peer.
type Peer struct {
	// PublicKey identifies the peer.
	PublicKey wgtypes.Key
	// PresharedKey is an optional extra symmetric key.
	PresharedKey *wgtypes.Key
	// AllowedIPs are the ranges routed to this peer.
	AllowedIPs []netip.Prefix
	// Endpoint is where to send traffic for this peer. Nil means the peer
	// has no fixed address and will be learned from incoming traffic.
	Endpoint *Endpoint
	// PersistentKeepalive is the keepalive interval in seconds (0 = off).
	PersistentKeepalive uint16
}

// Config is a complete tunnel configuration.
type Config struct {
	// Name is the tunnel name (also used as the interface name hint).
	Name string
	// PrivateKey is the local interface key.
	PrivateKey wgtypes.Key
	// ListenPort is the local UDP port (0 = ephemeral).
	ListenPort uint16
	// MTU is the tunnel MTU (0 = DefaultMTU).
	MTU int
	// Addresses are the interface's internal addresses.
	Addresses []netip.Prefix
	// DNS are the resolvers to install while the tunnel is up.
	DNS []netip.Addr
	// Peers is the ordered peer list. Order is significant: endpoint
	// resolution outcomes are positionally aligned with it.
	Peers []Peer
}

// EffectiveMTU returns the MTU to use, applying the default.
func (c *Config) EffectiveMTU() int {
	if c.MTU <= 0 {
		return DefaultMTU
	}
	return c.MTU
}

// Endpoints returns the peers' endpoint specifications, positionally
// aligned with Peers. Entries are nil for peers without an endpoint.
func (c *Config) Endpoints() []*Endpoint {
	eps := make([]*Endpoint, len(c.Peers))
	for i := range c.Peers {
		eps[i] = c.Peers[i].Endpoint
	}
	return eps
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validation.Required("name", c.Name); err != nil {
		return err
	}
	if err := validation.MaxLength("name", c.Name, validation.MaxTunnelNameLength); err != nil {
		return err
	}
	if c.PrivateKey == (wgtypes.Key{}) {
		return validation.NewResult("private_key", "is required", validation.ErrRequired)
	}
	if err := validation.MTU("mtu", c.MTU); err != nil {
		return err
	}
	if len(c.Addresses) == 0 {
		return validation.NewResult("addresses", "at least one interface address is required", validation.ErrRequired)
	}

	for i, peer := range c.Peers {
		field := fmt.Sprintf("peer[%d]", i)
		if peer.PublicKey == (wgtypes.Key{}) {
			return validation.NewResult(field+".public_key", "is required", validation.ErrRequired)
		}
		if len(peer.AllowedIPs) == 0 {
			return validation.NewResult(field+".allowed_ips", "at least one range is required", validation.ErrRequired)
		}
		if err := validation.Keepalive(field+".persistent_keepalive", int(peer.PersistentKeepalive)); err != nil {
			return err
		}
		if peer.Endpoint != nil {
			if err := validation.Endpoint(field+".endpoint", peer.Endpoint.String()); err != nil {
				return err
			}
		}
	}

	return nil
}
