package config

import (
	"errors"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-wg/tunnelkit/lib/validation"
)

func testKey(t *testing.T) wgtypes.Key {
	t.Helper()
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	ep := Endpoint{Host: "vpn.example.com", Port: 51820}
	return &Config{
		Name:       "wg0",
		PrivateKey: testKey(t),
		ListenPort: 0,
		MTU:        1420,
		Addresses:  []netip.Prefix{netip.MustParsePrefix("10.8.0.2/32")},
		DNS:        []netip.Addr{netip.MustParseAddr("1.1.1.1")},
		Peers: []Peer{
			{
				PublicKey:           testKey(t).PublicKey(),
				AllowedIPs:          []netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")},
				Endpoint:            &ep,
				PersistentKeepalive: 25,
			},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing name", func(c *Config) { c.Name = "" }, validation.ErrRequired},
		{"zero private key", func(c *Config) { c.PrivateKey = wgtypes.Key{} }, validation.ErrRequired},
		{"no addresses", func(c *Config) { c.Addresses = nil }, validation.ErrRequired},
		{"bad mtu", func(c *Config) { c.MTU = 100 }, validation.ErrOutOfRange},
		{"zero peer key", func(c *Config) { c.Peers[0].PublicKey = wgtypes.Key{} }, validation.ErrRequired},
		{"peer without allowed ips", func(c *Config) { c.Peers[0].AllowedIPs = nil }, validation.ErrRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestConfig_Endpoints_Alignment(t *testing.T) {
	cfg := validConfig(t)
	cfg.Peers = append(cfg.Peers, Peer{
		PublicKey:  testKey(t).PublicKey(),
		AllowedIPs: []netip.Prefix{netip.MustParsePrefix("10.9.0.0/24")},
		// No endpoint.
	})

	eps := cfg.Endpoints()
	if len(eps) != len(cfg.Peers) {
		t.Fatalf("len(Endpoints()) = %d, want %d", len(eps), len(cfg.Peers))
	}
	if eps[0] == nil {
		t.Error("first peer should have an endpoint")
	}
	if eps[1] != nil {
		t.Error("second peer should have no endpoint")
	}
}

func TestConfig_EffectiveMTU(t *testing.T) {
	cfg := validConfig(t)
	cfg.MTU = 0
	if got := cfg.EffectiveMTU(); got != DefaultMTU {
		t.Errorf("EffectiveMTU() = %d, want %d", got, DefaultMTU)
	}
	cfg.MTU = 1380
	if got := cfg.EffectiveMTU(); got != 1380 {
		t.Errorf("EffectiveMTU() = %d, want 1380", got)
	}
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("demo.wireguard.com:51820")
	if err != nil {
		t.Fatalf("ParseEndpoint() error = %v", err)
	}
	if ep.Host != "demo.wireguard.com" || ep.Port != 51820 {
		t.Errorf("ParseEndpoint() = %+v", ep)
	}
	if ep.String() != "demo.wireguard.com:51820" {
		t.Errorf("String() = %q", ep.String())
	}

	if _, err := ParseEndpoint("no-port"); err == nil {
		t.Error("ParseEndpoint without port should fail")
	}
}

func TestParseEndpoint_IPv6(t *testing.T) {
	ep, err := ParseEndpoint("[2001:db8::1]:51820")
	if err != nil {
		t.Fatalf("ParseEndpoint() error = %v", err)
	}
	if ep.Host != "2001:db8::1" {
		t.Errorf("Host = %q", ep.Host)
	}
	// String must re-bracket for the dial path.
	if ep.String() != "[2001:db8::1]:51820" {
		t.Errorf("String() = %q", ep.String())
	}
}

func TestProfile_RoundTrip(t *testing.T) {
	cfg := validConfig(t)
	path := filepath.Join(t.TempDir(), "wg0.toml")

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Name != cfg.Name {
		t.Errorf("Name = %q, want %q", loaded.Name, cfg.Name)
	}
	if loaded.PrivateKey != cfg.PrivateKey {
		t.Error("private key did not survive the round trip")
	}
	if len(loaded.Peers) != 1 {
		t.Fatalf("len(Peers) = %d, want 1", len(loaded.Peers))
	}
	if loaded.Peers[0].Endpoint == nil || loaded.Peers[0].Endpoint.String() != "vpn.example.com:51820" {
		t.Errorf("peer endpoint = %v", loaded.Peers[0].Endpoint)
	}
	if loaded.Peers[0].PersistentKeepalive != 25 {
		t.Errorf("keepalive = %d, want 25", loaded.Peers[0].PersistentKeepalive)
	}
}

func TestParse_InvalidKey(t *testing.T) {
	data := `
[interface]
name = "wg0"
private_key = "not-a-key"
addresses = ["10.8.0.2/32"]
`
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse should reject an invalid private key")
	}
	if !strings.Contains(err.Error(), "private_key") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestParse_InvalidTOML(t *testing.T) {
	if _, err := Parse([]byte("not toml [")); err == nil {
		t.Fatal("Parse should reject malformed TOML")
	}
}
