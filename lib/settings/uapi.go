package settings

import (
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-wg/tunnelkit/lib/config"
	"github.com/go-wg/tunnelkit/lib/resolve"
)

// uapiConfig builds the full engine configuration in UAPI key=value form:
// global interface keys first, then one stanza per peer. Endpoints are
// emitted only for peers whose resolution succeeded.
func uapiConfig(cfg *config.Config, outcomes []resolve.Outcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "private_key=%s\n", hexKey(cfg.PrivateKey))
	if cfg.ListenPort > 0 {
		fmt.Fprintf(&b, "listen_port=%d\n", cfg.ListenPort)
	}
	b.WriteString("replace_peers=true\n")

	for i, peer := range cfg.Peers {
		fmt.Fprintf(&b, "public_key=%s\n", hexKey(peer.PublicKey))
		if peer.PresharedKey != nil {
			fmt.Fprintf(&b, "preshared_key=%s\n", hexKey(*peer.PresharedKey))
		}
		if outcomes[i].Resolved() {
			fmt.Fprintf(&b, "endpoint=%s\n", outcomes[i].Addr)
		}
		b.WriteString("replace_allowed_ips=true\n")
		for _, ip := range peer.AllowedIPs {
			fmt.Fprintf(&b, "allowed_ip=%s\n", ip)
		}
		if peer.PersistentKeepalive > 0 {
			fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", peer.PersistentKeepalive)
		}
	}

	return b.String()
}

// EndpointUpdate builds the narrow configuration variant that refreshes only
// peer endpoints, leaving keys, allowed IPs and keepalives untouched. It is
// used on network path changes where a full reconfiguration would be
// needless churn. Peers whose endpoint is absent or failed to resolve are
// skipped entirely.
func EndpointUpdate(cfg *config.Config, outcomes []resolve.Outcome) (string, error) {
	if len(outcomes) != len(cfg.Peers) {
		return "", fmt.Errorf("resolution outcome count %d does not match peer count %d",
			len(outcomes), len(cfg.Peers))
	}

	var b strings.Builder
	for i, peer := range cfg.Peers {
		if !outcomes[i].Resolved() {
			continue
		}
		fmt.Fprintf(&b, "public_key=%s\n", hexKey(peer.PublicKey))
		b.WriteString("update_only=true\n")
		fmt.Fprintf(&b, "endpoint=%s\n", outcomes[i].Addr)
	}
	return b.String(), nil
}

// hexKey converts a WireGuard key to hex format for the UAPI protocol.
func hexKey(key wgtypes.Key) string {
	return fmt.Sprintf("%x", key[:])
}
