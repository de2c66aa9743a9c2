package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/go-i2p/logger"
	"github.com/pelletier/go-toml/v2"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

var log = logger.GetGoI2PLogger()

// Profile is the on-disk TOML representation of a tunnel configuration.
// All fields are strings or scalars so profiles stay hand-editable;
// ToConfig performs the parsing and validation.
type Profile struct {
	Interface InterfaceProfile `toml:"interface"`
	Peers     []PeerProfile    `toml:"peer"`
}

// InterfaceProfile contains the local interface settings.
type InterfaceProfile struct {
	// Name is the tunnel name.
	Name string `toml:"name"`
	// PrivateKey is the base64-encoded interface private key.
	PrivateKey string `toml:"private_key"`
	// ListenPort is the local UDP port (0 for ephemeral).
	ListenPort int `toml:"listen_port,omitempty"`
	// MTU is the tunnel MTU (0 for default).
	MTU int `toml:"mtu,omitempty"`
	// Addresses are the interface addresses in CIDR form.
	Addresses []string `toml:"addresses"`
	// DNS are resolver IP addresses.
	DNS []string `toml:"dns,omitempty"`
}

// PeerProfile contains one peer's settings.
type PeerProfile struct {
	// PublicKey is the base64-encoded peer public key.
	PublicKey string `toml:"public_key"`
	// PresharedKey is an optional base64-encoded preshared key.
	PresharedKey string `toml:"preshared_key,omitempty"`
	// Endpoint is the peer's host:port address, empty if none.
	Endpoint string `toml:"endpoint,omitempty"`
	// AllowedIPs are the ranges routed to this peer in CIDR form.
	AllowedIPs []string `toml:"allowed_ips"`
	// PersistentKeepalive is the keepalive interval in seconds (0 = off).
	PersistentKeepalive int `toml:"persistent_keepalive,omitempty"`
}

// Load reads and parses a TOML profile, returning the validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	log.WithField("path", path).WithField("peers", len(cfg.Peers)).Debug("loaded tunnel profile")
	return cfg, nil
}

// Parse parses TOML profile data, returning the validated Config.
func Parse(data []byte) (*Config, error) {
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	return p.ToConfig()
}

// ToConfig converts the profile to a validated Config.
func (p *Profile) ToConfig() (*Config, error) {
	privateKey, err := wgtypes.ParseKey(p.Interface.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("interface private_key: %w", err)
	}
	if err := portInRange(p.Interface.ListenPort); err != nil {
		return nil, fmt.Errorf("interface listen_port: %w", err)
	}

	cfg := &Config{
		Name:       p.Interface.Name,
		PrivateKey: privateKey,
		ListenPort: uint16(p.Interface.ListenPort),
		MTU:        p.Interface.MTU,
	}

	for _, addr := range p.Interface.Addresses {
		prefix, err := netip.ParsePrefix(addr)
		if err != nil {
			return nil, fmt.Errorf("interface address %q: %w", addr, err)
		}
		cfg.Addresses = append(cfg.Addresses, prefix)
	}

	for _, dns := range p.Interface.DNS {
		addr, err := netip.ParseAddr(dns)
		if err != nil {
			return nil, fmt.Errorf("dns server %q: %w", dns, err)
		}
		cfg.DNS = append(cfg.DNS, addr)
	}

	for i, pp := range p.Peers {
		peer, err := pp.toPeer()
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
		cfg.Peers = append(cfg.Peers, peer)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toPeer converts one peer profile entry.
func (pp *PeerProfile) toPeer() (Peer, error) {
	publicKey, err := wgtypes.ParseKey(pp.PublicKey)
	if err != nil {
		return Peer{}, fmt.Errorf("public_key: %w", err)
	}

	peer := Peer{PublicKey: publicKey}

	if pp.PresharedKey != "" {
		psk, err := wgtypes.ParseKey(pp.PresharedKey)
		if err != nil {
			return Peer{}, fmt.Errorf("preshared_key: %w", err)
		}
		peer.PresharedKey = &psk
	}

	if pp.Endpoint != "" {
		ep, err := ParseEndpoint(pp.Endpoint)
		if err != nil {
			return Peer{}, err
		}
		peer.Endpoint = &ep
	}

	for _, cidr := range pp.AllowedIPs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return Peer{}, fmt.Errorf("allowed_ip %q: %w", cidr, err)
		}
		peer.AllowedIPs = append(peer.AllowedIPs, prefix)
	}

	if pp.PersistentKeepalive < 0 || pp.PersistentKeepalive > 65535 {
		return Peer{}, fmt.Errorf("persistent_keepalive %d out of range", pp.PersistentKeepalive)
	}
	peer.PersistentKeepalive = uint16(pp.PersistentKeepalive)

	return peer, nil
}

// ToProfile converts a Config back to its TOML profile representation.
func (c *Config) ToProfile() *Profile {
	p := &Profile{
		Interface: InterfaceProfile{
			Name:       c.Name,
			PrivateKey: c.PrivateKey.String(),
			ListenPort: int(c.ListenPort),
			MTU:        c.MTU,
		},
	}
	for _, addr := range c.Addresses {
		p.Interface.Addresses = append(p.Interface.Addresses, addr.String())
	}
	for _, dns := range c.DNS {
		p.Interface.DNS = append(p.Interface.DNS, dns.String())
	}
	for _, peer := range c.Peers {
		pp := PeerProfile{
			PublicKey:           peer.PublicKey.String(),
			PersistentKeepalive: int(peer.PersistentKeepalive),
		}
		if peer.PresharedKey != nil {
			pp.PresharedKey = peer.PresharedKey.String()
		}
		if peer.Endpoint != nil {
			pp.Endpoint = peer.Endpoint.String()
		}
		for _, ip := range peer.AllowedIPs {
			pp.AllowedIPs = append(pp.AllowedIPs, ip.String())
		}
		p.Peers = append(p.Peers, pp)
	}
	return p
}

// Save writes the configuration to a TOML profile file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c.ToProfile())
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	log.WithField("path", path).Debug("saved tunnel profile")
	return nil
}

func portInRange(p int) error {
	if p < 0 || p > 65535 {
		return fmt.Errorf("port %d out of range", p)
	}
	return nil
}
