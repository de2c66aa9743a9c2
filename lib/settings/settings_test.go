package settings

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-wg/tunnelkit/lib/config"
	"github.com/go-wg/tunnelkit/lib/resolve"
)

func testKey(t *testing.T) wgtypes.Key {
	t.Helper()
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	ep := config.Endpoint{Host: "vpn.example.com", Port: 51820}
	return &config.Config{
		Name:       "wg0",
		PrivateKey: testKey(t),
		ListenPort: 51821,
		Addresses:  []netip.Prefix{netip.MustParsePrefix("10.8.0.2/32")},
		DNS:        []netip.Addr{netip.MustParseAddr("1.1.1.1")},
		Peers: []config.Peer{
			{
				PublicKey:           testKey(t).PublicKey(),
				AllowedIPs:          []netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")},
				Endpoint:            &ep,
				PersistentKeepalive: 25,
			},
			{
				PublicKey:  testKey(t).PublicKey(),
				AllowedIPs: []netip.Prefix{netip.MustParsePrefix("10.9.0.0/24")},
				// No endpoint.
			},
		},
	}
}

func resolvedOutcomes(cfg *config.Config) []resolve.Outcome {
	outcomes := make([]resolve.Outcome, len(cfg.Peers))
	for i, peer := range cfg.Peers {
		if peer.Endpoint == nil {
			continue
		}
		outcomes[i] = resolve.Outcome{
			Endpoint: peer.Endpoint,
			Addr:     netip.AddrPortFrom(netip.MustParseAddr("192.0.2.10"), peer.Endpoint.Port),
		}
	}
	return outcomes
}

func TestGenerate_UAPI(t *testing.T) {
	cfg := testConfig(t)
	ns, uapi, report, err := Generate(cfg, resolvedOutcomes(cfg))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	wantLines := []string{
		fmt.Sprintf("private_key=%x", cfg.PrivateKey[:]),
		"listen_port=51821",
		"replace_peers=true",
		fmt.Sprintf("public_key=%x", cfg.Peers[0].PublicKey[:]),
		"endpoint=192.0.2.10:51820",
		"replace_allowed_ips=true",
		"allowed_ip=0.0.0.0/0",
		"persistent_keepalive_interval=25",
		fmt.Sprintf("public_key=%x", cfg.Peers[1].PublicKey[:]),
		"allowed_ip=10.9.0.0/24",
	}
	for _, line := range wantLines {
		if !strings.Contains(uapi, line+"\n") {
			t.Errorf("uapi config missing line %q\nconfig:\n%s", line, uapi)
		}
	}

	// The endpoint-less peer must not get an endpoint line.
	stanzas := strings.Split(uapi, fmt.Sprintf("public_key=%x\n", cfg.Peers[1].PublicKey[:]))
	if len(stanzas) != 2 {
		t.Fatal("second peer stanza not found")
	}
	if strings.Contains(stanzas[1], "endpoint=") {
		t.Error("peer without endpoint must not get an endpoint line")
	}

	if ns.MTU != config.DefaultMTU {
		t.Errorf("MTU = %d, want default %d", ns.MTU, config.DefaultMTU)
	}
	if len(report) != len(cfg.Peers) {
		t.Errorf("len(report) = %d, want %d", len(report), len(cfg.Peers))
	}
}

func TestGenerate_NoPresharedKeyLineWhenAbsent(t *testing.T) {
	cfg := testConfig(t)
	_, uapi, _, err := Generate(cfg, resolvedOutcomes(cfg))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(uapi, "preshared_key=") {
		t.Error("preshared_key must only appear when configured")
	}

	psk := testKey(t)
	cfg.Peers[0].PresharedKey = &psk
	_, uapi, _, err = Generate(cfg, resolvedOutcomes(cfg))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(uapi, fmt.Sprintf("preshared_key=%x\n", psk[:])) {
		t.Error("preshared_key line missing")
	}
}

func TestGenerate_CountMismatch(t *testing.T) {
	cfg := testConfig(t)
	if _, _, _, err := Generate(cfg, nil); err == nil {
		t.Fatal("Generate should reject mismatched outcome count")
	}
}

func TestGenerate_FailedEndpointOmitted(t *testing.T) {
	cfg := testConfig(t)
	outcomes := resolvedOutcomes(cfg)
	outcomes[0] = resolve.Outcome{
		Endpoint: cfg.Peers[0].Endpoint,
		Err:      &resolve.Error{Spec: "vpn.example.com:51820", Err: fmt.Errorf("no such host")},
	}

	_, uapi, report, err := Generate(cfg, outcomes)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(uapi, "endpoint=") {
		t.Error("failed endpoint must not be emitted")
	}
	if !strings.Contains(report.String(), "failed") {
		t.Errorf("report should mention the failure: %s", report)
	}
}

func TestDeriveRoutes_Dedup(t *testing.T) {
	peers := []config.Peer{
		{AllowedIPs: []netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("192.168.1.0/24"),
		}},
		{AllowedIPs: []netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/8"),     // duplicate
			netip.MustParsePrefix("192.168.1.5/24"), // same masked range
		}},
	}

	routes := deriveRoutes(peers)
	if len(routes) != 2 {
		t.Fatalf("len(routes) = %d, want 2: %v", len(routes), routes)
	}
	if routes[0].String() != "10.0.0.0/8" || routes[1].String() != "192.168.1.0/24" {
		t.Errorf("routes = %v", routes)
	}
}

func TestEndpointUpdate(t *testing.T) {
	cfg := testConfig(t)
	update, err := EndpointUpdate(cfg, resolvedOutcomes(cfg))
	if err != nil {
		t.Fatalf("EndpointUpdate() error = %v", err)
	}

	want := fmt.Sprintf("public_key=%x\nupdate_only=true\nendpoint=192.0.2.10:51820\n", cfg.Peers[0].PublicKey[:])
	if update != want {
		t.Errorf("EndpointUpdate() = %q, want %q", update, want)
	}

	// Only endpoint data may appear in the narrow variant.
	for _, forbidden := range []string{"private_key", "allowed_ip", "replace_peers", "persistent_keepalive"} {
		if strings.Contains(update, forbidden) {
			t.Errorf("narrow update must not contain %q", forbidden)
		}
	}
}

func TestEndpointUpdate_AllAbsent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Peers = cfg.Peers[1:] // only the endpoint-less peer
	update, err := EndpointUpdate(cfg, make([]resolve.Outcome, 1))
	if err != nil {
		t.Fatalf("EndpointUpdate() error = %v", err)
	}
	if update != "" {
		t.Errorf("EndpointUpdate() = %q, want empty", update)
	}
}

func TestReport_String(t *testing.T) {
	cfg := testConfig(t)
	_, _, report, err := Generate(cfg, resolvedOutcomes(cfg))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	s := report.String()
	if !strings.Contains(s, "192.0.2.10:51820") {
		t.Errorf("report should include the resolved address: %s", s)
	}
	if !strings.Contains(s, "no endpoint") {
		t.Errorf("report should mark the endpoint-less peer: %s", s)
	}
}
