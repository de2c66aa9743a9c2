package netmon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// DefaultPollInterval is how often the poller samples the interface list.
const DefaultPollInterval = 2 * time.Second

// PollerConfig configures the polling monitor.
type PollerConfig struct {
	// Interval is the sampling period.
	Interval time.Duration
	// ExcludeInterface is an interface name to ignore, typically the
	// tunnel's own interface so bringing it up doesn't look like a path
	// change.
	ExcludeInterface string
	// ListInterfaces overrides interface discovery. Used by tests.
	ListInterfaces func() ([]net.Interface, error)
}

// Poller is a Monitor that samples the system interface list and emits an
// event whenever the observed path changes. It is a portable stand-in for
// platform path monitors (netlink, NWPathMonitor); the event contract is
// identical.
type Poller struct {
	mu       sync.Mutex
	config   PollerConfig
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastPath Path
}

// NewPoller creates a polling monitor.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.ListInterfaces == nil {
		cfg.ListInterfaces = net.Interfaces
	}
	return &Poller{config: cfg}
}

// Start implements Monitor. The first event fires immediately with the
// current path.
func (p *Poller) Start(handler Handler) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.lastPath = p.observe()
	initial := p.lastPath
	p.mu.Unlock()

	log.WithField("interval", p.config.Interval).Debug("path monitor starting")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		handler(initial)
		p.pollLoop(ctx, handler)
	}()

	return nil
}

// Stop implements Monitor.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Debug("path monitor stopped")
}

// pollLoop samples until the context is cancelled.
func (p *Poller) pollLoop(ctx context.Context, handler Handler) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path := p.observe()

			p.mu.Lock()
			changed := !path.Equal(p.lastPath)
			if changed {
				p.lastPath = path
			}
			p.mu.Unlock()

			if changed {
				log.WithField("status", path.Status).WithField("interfaces", path.Interfaces).Debug("network path changed")
				handler(path)
			}
		}
	}
}

// observe samples the current path.
func (p *Poller) observe() Path {
	ifaces, err := p.config.ListInterfaces()
	if err != nil {
		log.WithError(err).Warn("listing network interfaces")
		return Path{Status: Unsatisfied}
	}

	names := usableInterfaces(ifaces, p.config.ExcludeInterface)
	status := Satisfied
	if len(names) == 0 {
		status = Unsatisfied
	}
	return Path{Status: status, Interfaces: names}
}
