// wgtunnel runs a userspace WireGuard tunnel from a TOML profile.
//
// It resolves peer endpoints, drives the wireguard-go engine, reacts to
// network path changes, and keeps the tunnel alive across interface
// handoffs until interrupted.
//
// Usage:
//
//	wgtunnel [flags]
//	wgtunnel check
//	wgtunnel qr
//	wgtunnel tui
//
// Flags:
//
//	-config string
//	    Path to the tunnel profile (default "~/.wgtunnel/tunnel.toml")
//	-metrics string
//	    Listen address for the Prometheus metrics endpoint (disabled if empty)
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-i2p/logger"
	"github.com/mdp/qrterminal/v3"

	"github.com/go-wg/tunnelkit/lib/backend"
	"github.com/go-wg/tunnelkit/lib/config"
	"github.com/go-wg/tunnelkit/lib/metrics"
	"github.com/go-wg/tunnelkit/lib/netmon"
	"github.com/go-wg/tunnelkit/lib/resolve"
	"github.com/go-wg/tunnelkit/lib/settings"
	"github.com/go-wg/tunnelkit/lib/tui"
	"github.com/go-wg/tunnelkit/lib/tunnel"
	"github.com/go-wg/tunnelkit/version"
)

var log = logger.GetGoI2PLogger()

func main() {
	os.Exit(run())
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultConfigPath := filepath.Join(homeDir, ".wgtunnel", "tunnel.toml")

	configPath := flag.String("config", defaultConfigPath, "Path to the tunnel profile")
	metricsAddr := flag.String("metrics", "", "Listen address for the metrics endpoint (disabled if empty)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "wgtunnel - Userspace WireGuard tunnel manager\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  wgtunnel [flags]          Run the tunnel\n")
		fmt.Fprintf(os.Stderr, "  wgtunnel check            Validate the profile and resolve endpoints\n")
		fmt.Fprintf(os.Stderr, "  wgtunnel qr               Render the profile as a terminal QR code\n")
		fmt.Fprintf(os.Stderr, "  wgtunnel tui              Run the tunnel with an interactive TUI\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("wgtunnel version %s\n", version.Full())
		return 0
	}

	if *verbose {
		os.Setenv("DEBUG_I2P", "debug")
	}

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "check":
			return handleCheck(*configPath)
		case "qr":
			return handleQR(*configPath)
		case "tui":
			return runTunnel(*configPath, *metricsAddr, true)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			flag.Usage()
			return 1
		}
	}

	return runTunnel(*configPath, *metricsAddr, false)
}

// runTunnel brings the tunnel up and keeps it running until a signal
// arrives (or the TUI quits, when withTUI is set).
func runTunnel(configPath, metricsAddr string, withTUI bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading profile: %v\n", err)
		return 1
	}

	coord, err := tunnel.New(tunnel.Options{
		Engine:      newEngine(cfg),
		Environment: hostEnvironment{},
		Monitor:     netmon.NewPoller(netmon.PollerConfig{ExcludeInterface: cfg.Name}),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer coord.Close()

	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = coord.Start(startCtx, cfg)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting tunnel: %v\n", err)
		return 1
	}

	log.WithField("tunnel", cfg.Name).WithField("version", version.Version).Info("wgtunnel started")

	if withTUI {
		app, err := tui.New(tui.Config{
			Coordinator: coord,
			Version:     version.Version,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		p := tea.NewProgram(app, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			return 1
		}
	} else {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("received signal, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := coord.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		return 1
	}

	log.Info("wgtunnel stopped")
	return 0
}

// handleCheck validates the profile and resolves every peer endpoint,
// without starting anything.
func handleCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Profile invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Profile:   %s\n", configPath)
	fmt.Printf("Tunnel:    %s\n", cfg.Name)
	fmt.Printf("MTU:       %d\n", cfg.EffectiveMTU())
	fmt.Printf("Peers:     %d\n\n", len(cfg.Peers))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcomes, resolveErr := resolve.New().Resolve(ctx, cfg.Endpoints())
	_, _, report, err := settings.Generate(cfg, outcomes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, pr := range report {
		fmt.Printf("  %s\n", pr.PublicKey)
		switch {
		case pr.Outcome.Absent():
			fmt.Printf("    endpoint: (none, learned from incoming traffic)\n")
		case pr.Outcome.Failed():
			fmt.Printf("    endpoint: FAILED: %v\n", pr.Outcome.Err)
		default:
			fmt.Printf("    endpoint: %s -> %s\n", pr.Outcome.Endpoint, pr.Outcome.Addr)
		}
	}

	if resolveErr != nil {
		fmt.Fprintln(os.Stderr, "\nSome endpoints failed to resolve.")
		return 1
	}
	fmt.Println("\nProfile OK.")
	return 0
}

// handleQR renders the profile file as a QR code for transferring it to
// another device.
func handleQR(configPath string) int {
	// Validate before rendering so a broken profile is caught here.
	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Profile invalid: %v\n", err)
		return 1
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading profile: %v\n", err)
		return 1
	}

	qrterminal.GenerateWithConfig(string(data), qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	return 0
}

// newEngine builds a userspace engine seeded with the profile's interface
// settings, used when the engine has to create its own netstack device.
func newEngine(cfg *config.Config) backend.Engine {
	var addrs []netip.Addr
	for _, prefix := range cfg.Addresses {
		addrs = append(addrs, prefix.Addr())
	}
	return backend.NewUserspaceEngine(backend.Options{
		Addresses: addrs,
		DNS:       cfg.DNS,
		MTU:       cfg.EffectiveMTU(),
	})
}

// serveMetrics exposes the Prometheus metrics endpoint.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.WithField("addr", addr).Info("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics endpoint failed")
	}
}

// hostEnvironment is the CLI's host integration. The engine owns the
// virtual interface (netstack or host TUN), so there are no settings for
// the host to install and no descriptor to look up.
type hostEnvironment struct{}

func (hostEnvironment) InstallSettings(ns *settings.NetworkSettings, done func(error)) {
	log.WithField("mtu", ns.MTU).WithField("routes", len(ns.Routes)).Debug("network settings accepted")
	done(nil)
}

func (hostEnvironment) TunnelFileDescriptor() (int, bool) {
	return -1, true
}

func (hostEnvironment) SetReasserting(active bool) {
	log.WithField("reasserting", active).Debug("connection reasserting state changed")
}
