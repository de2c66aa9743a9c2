package tunnel

import (
	"github.com/go-wg/tunnelkit/lib/backend"
	"github.com/go-wg/tunnelkit/lib/config"
	"github.com/go-wg/tunnelkit/lib/resolve"
	"github.com/go-wg/tunnelkit/lib/settings"
)

// State is the externally visible lifecycle state.
type State string

const (
	// StateStopped means no engine instance exists.
	StateStopped State = "stopped"
	// StateStarted means an engine instance is live and forwarding.
	StateStarted State = "started"
	// StateTemporaryShutdown means the tunnel was brought down because the
	// network path became unusable, and will restart when it recovers.
	StateTemporaryShutdown State = "temporary-shutdown"
)

// lifecycleState is the closed set of internal states. Started and
// TemporaryShutdown retain the generator so a restart can rebuild the
// tunnel without the caller resupplying configuration.
type lifecycleState interface {
	external() State
}

type stateStopped struct{}

func (stateStopped) external() State { return StateStopped }

type stateStarted struct {
	handle backend.Handle
	gen    *generator
}

func (stateStarted) external() State { return StateStarted }

type stateTemporaryShutdown struct {
	gen *generator
}

func (stateTemporaryShutdown) external() State { return StateTemporaryShutdown }

// generator wraps a validated configuration and produces the artifacts a
// bring-up needs: network settings, engine configuration text, and the
// narrow endpoint-refresh variant.
type generator struct {
	cfg *config.Config
}

func newGenerator(cfg *config.Config) *generator {
	return &generator{cfg: cfg}
}

// endpoints returns the peers' endpoint specifications for resolution.
func (g *generator) endpoints() []*config.Endpoint {
	return g.cfg.Endpoints()
}

// generate builds the full settings and engine configuration from a set of
// resolution outcomes.
func (g *generator) generate(outcomes []resolve.Outcome) (*settings.NetworkSettings, string, settings.Report, error) {
	return settings.Generate(g.cfg, outcomes)
}

// endpointUpdate builds the endpoint-only configuration variant used on
// network path changes.
func (g *generator) endpointUpdate(outcomes []resolve.Outcome) (string, error) {
	return settings.EndpointUpdate(g.cfg, outcomes)
}

// interfaceName returns the configured tunnel name.
func (g *generator) interfaceName() string {
	return g.cfg.Name
}
