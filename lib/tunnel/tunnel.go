// Package tunnel coordinates the lifecycle of one VPN tunnel: it resolves
// peer endpoints, generates network settings and engine configuration,
// drives the backend engine, and reacts to network path changes. All
// operations are serialized onto a single worker goroutine so that starts,
// stops, updates and path reactions never observe each other half-done.
package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-wg/tunnelkit/lib/backend"
	"github.com/go-wg/tunnelkit/lib/config"
	tkerrors "github.com/go-wg/tunnelkit/lib/errors"
	"github.com/go-wg/tunnelkit/lib/metrics"
	"github.com/go-wg/tunnelkit/lib/netmon"
	"github.com/go-wg/tunnelkit/lib/ratelimit"
	"github.com/go-wg/tunnelkit/lib/resolve"
	"github.com/go-wg/tunnelkit/lib/settings"
)

var log = logger.GetGoI2PLogger()

// DefaultInstallTimeout bounds how long the coordinator waits for the host
// environment to acknowledge network settings.
const DefaultInstallTimeout = 5 * time.Second

// Environment is the host-side surface the coordinator drives. It is
// implemented by the platform integration (a packet tunnel provider, a
// system service, or a test harness).
type Environment interface {
	// InstallSettings asks the host to apply network settings to the
	// virtual interface. The host calls done exactly once, from any
	// goroutine, with nil on success. The coordinator enforces its own
	// deadline; a host that never calls done produces a timeout error,
	// not a hang.
	InstallSettings(ns *settings.NetworkSettings, done func(error))

	// TunnelFileDescriptor returns the raw descriptor of the virtual
	// interface's socket. Implementations that delegate interface
	// creation to the engine return (-1, true). The second return is
	// false only when a descriptor was expected but could not be found.
	TunnelFileDescriptor() (int, bool)

	// SetReasserting tells the host the tunnel is re-establishing itself
	// after a path loss, so it can reflect that in connection UI.
	SetReasserting(active bool)
}

// Options configures a Coordinator.
type Options struct {
	// Engine is the packet-forwarding backend. Required.
	Engine backend.Engine

	// Environment is the host integration. Required.
	Environment Environment

	// Monitor observes network path changes. Nil disables path reactions.
	Monitor netmon.Monitor

	// Resolver resolves peer endpoints. Nil uses the system resolver.
	Resolver *resolve.Resolver

	// InstallTimeout overrides DefaultInstallTimeout when positive.
	InstallTimeout time.Duration

	// EventBufferSize is the event channel depth (default 64).
	EventBufferSize int

	// RefreshRate and RefreshBurst bound how often a satisfied-path event
	// may trigger an endpoint refresh. Defaults: one refresh per two
	// seconds with a burst of three.
	RefreshRate  float64
	RefreshBurst int
}

// Coordinator owns one tunnel's lifecycle.
type Coordinator struct {
	engine   backend.Engine
	env      Environment
	monitor  netmon.Monitor
	resolver *resolve.Resolver

	installTimeout time.Duration
	refreshLimiter *ratelimit.Limiter

	queue   *workQueue
	emitter *eventEmitter

	// mu guards state for readers; mutation happens only on the queue
	// goroutine.
	mu    sync.RWMutex
	state lifecycleState

	closeOnce sync.Once
}

// New creates a Coordinator in the stopped state.
func New(opts Options) (*Coordinator, error) {
	if opts.Engine == nil {
		return nil, tkerrors.Wrap(tkerrors.CodeValidation, "engine is required", tkerrors.ErrInvalidInput)
	}
	if opts.Environment == nil {
		return nil, tkerrors.Wrap(tkerrors.CodeValidation, "environment is required", tkerrors.ErrInvalidInput)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = resolve.New()
	}
	installTimeout := opts.InstallTimeout
	if installTimeout <= 0 {
		installTimeout = DefaultInstallTimeout
	}
	rate := opts.RefreshRate
	if rate <= 0 {
		rate = 0.5
	}
	burst := opts.RefreshBurst
	if burst <= 0 {
		burst = 3
	}

	return &Coordinator{
		engine:         opts.Engine,
		env:            opts.Environment,
		monitor:        opts.Monitor,
		resolver:       resolver,
		installTimeout: installTimeout,
		refreshLimiter: ratelimit.New(rate, burst),
		queue:          newWorkQueue(16),
		emitter:        newEventEmitter(opts.EventBufferSize),
		state:          stateStopped{},
	}, nil
}

// Start brings the tunnel up. Valid only in the stopped state. The context
// bounds how long the caller waits; the operation itself is bounded by
// endpoint resolution and settings installation timeouts.
func (c *Coordinator) Start(ctx context.Context, cfg *config.Config) error {
	return c.perform(ctx, func() error { return c.doStart(cfg) })
}

// StartAsync is Start with a completion callback instead of blocking.
// The callback runs on the coordinator's worker goroutine.
func (c *Coordinator) StartAsync(cfg *config.Config, completion func(error)) {
	c.performAsync(func() error { return c.doStart(cfg) }, completion)
}

// Stop tears the tunnel down. Valid in the started and temporary-shutdown
// states.
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.perform(ctx, c.doStop)
}

// StopAsync is Stop with a completion callback instead of blocking.
func (c *Coordinator) StopAsync(completion func(error)) {
	c.performAsync(c.doStop, completion)
}

// Update replaces the live configuration without restarting the engine.
// Valid in the started and temporary-shutdown states; during a temporary
// shutdown the new configuration is staged for the next path-recovery
// restart and the engine is not touched.
func (c *Coordinator) Update(ctx context.Context, cfg *config.Config) error {
	return c.perform(ctx, func() error { return c.doUpdate(cfg) })
}

// UpdateAsync is Update with a completion callback instead of blocking.
func (c *Coordinator) UpdateAsync(cfg *config.Config, completion func(error)) {
	c.performAsync(func() error { return c.doUpdate(cfg) }, completion)
}

// RuntimeConfiguration returns a snapshot of the engine's live
// configuration. Valid only in the started state.
func (c *Coordinator) RuntimeConfiguration(ctx context.Context) (string, error) {
	var snapshot string
	err := c.perform(ctx, func() error {
		st, ok := c.currentState().(stateStarted)
		if !ok {
			return tkerrors.Wrap(tkerrors.CodeState, "tunnel is not started", tkerrors.ErrInvalidState)
		}
		text, live := c.engine.GetConfig(st.handle)
		if !live {
			return tkerrors.Wrap(tkerrors.CodeBackend, "engine instance is gone", tkerrors.ErrUnavailable)
		}
		snapshot = text
		return nil
	})
	return snapshot, err
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return c.currentState().external()
}

// InterfaceName returns the configured tunnel name, or empty when stopped.
func (c *Coordinator) InterfaceName() string {
	switch st := c.currentState().(type) {
	case stateStarted:
		return st.gen.interfaceName()
	case stateTemporaryShutdown:
		return st.gen.interfaceName()
	default:
		return ""
	}
}

// Events returns the event channel. The channel is buffered and drops
// events when the consumer falls behind; see DroppedEventCount.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.channel()
}

// DroppedEventCount returns how many events were dropped due to a full
// buffer.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.emitter.droppedEvents()
}

// Close stops the tunnel if running and releases the coordinator. After
// Close, all operations fail with a closed error.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.perform(context.Background(), func() error {
			if _, stopped := c.currentState().(stateStopped); stopped {
				return nil
			}
			return c.doStop()
		})
		c.queue.close()
		c.emitter.close()
	})
	return err
}

// perform runs op on the worker goroutine and waits for its result. An op
// whose task is aborted by a concurrent Close reports the closed error
// instead of leaving the caller waiting.
func (c *Coordinator) perform(ctx context.Context, op func() error) error {
	result := make(chan error, 1)
	ok := c.queue.submit(
		func() { result <- op() },
		func() { result <- errClosed() },
	)
	if !ok {
		return errClosed()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// performAsync runs op on the worker goroutine and delivers its result to
// completion, which may be nil.
func (c *Coordinator) performAsync(op func() error, completion func(error)) {
	ok := c.queue.submit(
		func() {
			err := op()
			if completion != nil {
				completion(err)
			}
		},
		func() {
			if completion != nil {
				completion(errClosed())
			}
		},
	)
	if !ok && completion != nil {
		completion(errClosed())
	}
}

func errClosed() error {
	return tkerrors.Wrap(tkerrors.CodeUnavailable, "coordinator is closed", tkerrors.ErrClosed)
}

func (c *Coordinator) currentState() lifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s lifecycleState) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()

	switch s.(type) {
	case stateStopped:
		metrics.TunnelState.Set(0)
	case stateStarted:
		metrics.TunnelState.Set(1)
	case stateTemporaryShutdown:
		metrics.TunnelState.Set(2)
	}
	log.WithField("oldState", old.external()).WithField("newState", s.external()).Debug("tunnel state transition")
}

// doStart runs on the worker goroutine.
func (c *Coordinator) doStart(cfg *config.Config) error {
	if _, stopped := c.currentState().(stateStopped); !stopped {
		log.WithField("state", c.State()).Warn("cannot start tunnel in current state")
		return tkerrors.Wrap(tkerrors.CodeState, "tunnel is already running", tkerrors.ErrInvalidState)
	}
	metrics.TunnelStarts.Inc()

	if err := cfg.Validate(); err != nil {
		return tkerrors.Wrap(tkerrors.CodeValidation, "invalid tunnel configuration", err)
	}

	gen := newGenerator(cfg)
	log.WithField("tunnel", gen.interfaceName()).Info("starting tunnel")

	// Path observation begins before the tunnel comes up, so a path that
	// dies during bring-up is reacted to as soon as the start completes.
	// Events delivered while bring-up runs queue behind this task.
	if c.monitor != nil {
		if err := c.monitor.Start(c.onPathEvent); err != nil {
			wrapped := tkerrors.Wrap(tkerrors.CodeInternal, "starting path monitor", err)
			c.emitter.emitError(wrapped, StateStopped, "tunnel start failed")
			return wrapped
		}
	}

	handle, err := c.bringUp(gen)
	if err != nil {
		if c.monitor != nil {
			c.monitor.Stop()
		}
		c.emitter.emitError(err, StateStopped, "tunnel start failed")
		return err
	}

	c.setState(stateStarted{handle: handle, gen: gen})
	c.emitter.emitSimple(EventStarted, StateStarted, "tunnel is up")
	log.WithField("tunnel", gen.interfaceName()).WithField("handle", handle).Info("tunnel started")
	return nil
}

// bringUp resolves endpoints, installs settings and starts an engine
// instance. Shared by doStart and the temporary-shutdown restart path.
func (c *Coordinator) bringUp(gen *generator) (backend.Handle, error) {
	outcomes, err := c.resolver.Resolve(context.Background(), gen.endpoints())
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return backend.InvalidHandle, tkerrors.Wrap(tkerrors.CodeResolution,
			"resolving peer endpoints", tkerrors.Join(tkerrors.ErrResolution, err))
	}

	ns, configText, report, err := gen.generate(outcomes)
	if err != nil {
		return backend.InvalidHandle, tkerrors.WrapInternal(err)
	}
	log.WithField("endpoints", report.String()).Debug("peer endpoints resolved")

	if err := c.installSettings(ns); err != nil {
		return backend.InvalidHandle, err
	}

	fd, ok := c.env.TunnelFileDescriptor()
	if !ok {
		return backend.InvalidHandle, tkerrors.Wrap(tkerrors.CodeBackend,
			"locating tunnel descriptor", tkerrors.ErrDescriptorUnavailable)
	}

	backend.SetLogSink(engineLogSink)
	handle, err := c.engine.Start(configText, fd)
	if err != nil {
		backend.ClearLogSink()
		return backend.InvalidHandle, tkerrors.Wrap(tkerrors.CodeBackend,
			"starting engine", tkerrors.Join(tkerrors.ErrBackendStart, err))
	}
	return handle, nil
}

// installSettings hands the settings to the host and waits for its
// acknowledgement, bounded by the install timeout.
func (c *Coordinator) installSettings(ns *settings.NetworkSettings) error {
	began := time.Now()
	done := make(chan error, 1)
	var once sync.Once
	c.env.InstallSettings(ns, func(err error) {
		once.Do(func() { done <- err })
	})

	select {
	case err := <-done:
		metrics.SettingsInstallSeconds.ObserveDuration(time.Since(began))
		if err != nil {
			return tkerrors.Wrap(tkerrors.CodeSettings, "installing network settings",
				tkerrors.Join(tkerrors.ErrSettingsInstall, err))
		}
		return nil
	case <-time.After(c.installTimeout):
		log.WithField("timeout", c.installTimeout).Error("host did not acknowledge network settings")
		return tkerrors.Wrap(tkerrors.CodeSettings, "installing network settings",
			tkerrors.ErrSettingsTimeout)
	}
}

// doStop runs on the worker goroutine. Teardown order matters: the engine
// log sink is cleared before anything it might reference is released, the
// path monitor stops before the engine so no restart races the teardown,
// and the engine stops last.
func (c *Coordinator) doStop() error {
	switch st := c.currentState().(type) {
	case stateStarted:
		log.WithField("tunnel", st.gen.interfaceName()).Info("stopping tunnel")
		backend.ClearLogSink()
		if c.monitor != nil {
			c.monitor.Stop()
		}
		c.engine.Stop(st.handle)
	case stateTemporaryShutdown:
		log.WithField("tunnel", st.gen.interfaceName()).Info("stopping tunnel during temporary shutdown")
		if c.monitor != nil {
			c.monitor.Stop()
		}
	default:
		log.Warn("cannot stop tunnel: not running")
		return tkerrors.Wrap(tkerrors.CodeState, "tunnel is not running", tkerrors.ErrInvalidState)
	}

	c.setState(stateStopped{})
	metrics.TunnelStops.Inc()
	c.emitter.emitSimple(EventStopped, StateStopped, "tunnel is down")
	return nil
}

// doUpdate runs on the worker goroutine. While started the new
// configuration is pushed into the live engine; during a temporary
// shutdown there is no engine instance, so the new settings are installed
// and the generator replaced, and the next path-recovery restart brings
// the engine up with the updated configuration.
func (c *Coordinator) doUpdate(cfg *config.Config) error {
	var handle backend.Handle
	var live bool
	switch st := c.currentState().(type) {
	case stateStarted:
		handle, live = st.handle, true
	case stateTemporaryShutdown:
	default:
		log.WithField("state", c.State()).Warn("cannot update tunnel in current state")
		return tkerrors.Wrap(tkerrors.CodeState, "tunnel is not running", tkerrors.ErrInvalidState)
	}

	if err := cfg.Validate(); err != nil {
		return tkerrors.Wrap(tkerrors.CodeValidation, "invalid tunnel configuration", err)
	}
	gen := newGenerator(cfg)

	// The tunnel is momentarily in flux while the new configuration lands;
	// the flag is cleared on every exit path.
	c.env.SetReasserting(true)
	defer c.env.SetReasserting(false)

	outcomes, err := c.resolver.Resolve(context.Background(), gen.endpoints())
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return tkerrors.Wrap(tkerrors.CodeResolution, "resolving peer endpoints",
			tkerrors.Join(tkerrors.ErrResolution, err))
	}

	ns, configText, report, err := gen.generate(outcomes)
	if err != nil {
		return tkerrors.WrapInternal(err)
	}
	log.WithField("endpoints", report.String()).Debug("peer endpoints resolved")

	if err := c.installSettings(ns); err != nil {
		return err
	}

	if live {
		if err := c.engine.SetConfig(handle, configText); err != nil {
			return tkerrors.Wrap(tkerrors.CodeBackend, "applying engine configuration", err)
		}
		c.setState(stateStarted{handle: handle, gen: gen})
		c.emitter.emitSimple(EventUpdated, StateStarted, "tunnel configuration updated")
	} else {
		c.setState(stateTemporaryShutdown{gen: gen})
		c.emitter.emitSimple(EventUpdated, StateTemporaryShutdown, "tunnel configuration staged for restart")
	}
	metrics.TunnelUpdates.Inc()
	log.WithField("tunnel", gen.interfaceName()).Info("tunnel configuration updated")
	return nil
}

// onPathEvent is invoked on the monitor's goroutine. It re-dispatches onto
// the worker queue without blocking; monitors must never stall on a busy
// coordinator, so an event that finds the queue full is dropped. A later
// observation supersedes it anyway.
func (c *Coordinator) onPathEvent(path netmon.Path) {
	if !c.queue.trySubmit(func() { c.reactToPath(path) }) {
		metrics.DroppedEvents.Inc()
		log.WithField("status", path.Status).Debug("path event dropped: queue full or closed")
	}
}

// reactToPath runs on the worker goroutine.
func (c *Coordinator) reactToPath(path netmon.Path) {
	metrics.PathEvents.Inc()
	c.emitter.emitPath(path, c.State())
	log.WithField("status", path.Status).WithField("interfaces", path.Interfaces).Debug("network path changed")

	switch st := c.currentState().(type) {
	case stateStarted:
		if !path.Status.Satisfiable() {
			c.shutdownForPath(st)
			return
		}
		c.refreshEndpoints(st)

	case stateTemporaryShutdown:
		if !path.Status.Satisfiable() {
			return
		}
		c.restartFromShutdown(st)

	case stateStopped:
		// Nothing to react to.
	}
}

// shutdownForPath brings the engine down while retaining the generator for
// a later restart. Network settings stay installed so traffic keeps hitting
// the dead interface instead of leaking around the tunnel.
func (c *Coordinator) shutdownForPath(st stateStarted) {
	log.WithField("tunnel", st.gen.interfaceName()).Info("network path lost, shutting tunnel down temporarily")
	backend.ClearLogSink()
	c.engine.Stop(st.handle)
	c.setState(stateTemporaryShutdown{gen: st.gen})
	c.emitter.emitSimple(EventTemporaryShutdown, StateTemporaryShutdown, "network path lost")
}

// refreshEndpoints re-resolves peer endpoints and pushes only the endpoint
// changes into the running engine, then rebinds its sockets. Rate limited:
// platform monitors can fire bursts of satisfied-path events during a
// handoff, and each refresh costs a DNS round trip.
func (c *Coordinator) refreshEndpoints(st stateStarted) {
	if !c.refreshLimiter.Allow() {
		log.Debug("endpoint refresh suppressed by rate limit")
		c.engine.BumpSockets(st.handle)
		return
	}

	outcomes, err := c.resolver.Resolve(context.Background(), st.gen.endpoints())
	if err != nil {
		// Stale endpoints are better than no tunnel; keep running and
		// rebind so traffic can flow over the new path.
		metrics.ResolutionFailures.Inc()
		log.WithError(err).Warn("endpoint re-resolution failed, keeping previous endpoints")
	} else if update, uerr := st.gen.endpointUpdate(outcomes); uerr == nil && update != "" {
		if serr := c.engine.SetConfig(st.handle, update); serr != nil {
			log.WithError(serr).Warn("endpoint refresh rejected by engine")
		} else {
			metrics.EndpointRefreshes.Inc()
		}
	}

	c.engine.BumpSockets(st.handle)
}

// restartFromShutdown rebuilds the tunnel from the retained generator after
// the path recovers. Configuration is re-resolved from scratch: addresses
// handed out on the previous network are worthless on the new one. Failure
// is logged and swallowed; the coordinator stays in temporary shutdown and
// the next satisfied-path event tries again.
func (c *Coordinator) restartFromShutdown(st stateTemporaryShutdown) {
	log.WithField("tunnel", st.gen.interfaceName()).Info("network path recovered, restarting tunnel")
	c.env.SetReasserting(true)
	defer c.env.SetReasserting(false)

	handle, err := c.bringUp(st.gen)
	if err != nil {
		log.WithError(err).Error("tunnel restart failed, staying in temporary shutdown")
		c.emitter.emitError(err, StateTemporaryShutdown, "tunnel restart failed")
		return
	}

	c.setState(stateStarted{handle: handle, gen: st.gen})
	metrics.PathRestarts.Inc()
	c.emitter.emitSimple(EventRestarted, StateStarted, "tunnel restarted after path recovery")
}

// engineLogSink forwards engine log messages into the structured logger.
func engineLogSink(level backend.LogLevel, message string) {
	entry := log.WithField("source", "engine")
	switch level {
	case backend.LevelError:
		entry.Error(message)
	case backend.LevelInfo:
		entry.Info(message)
	default:
		entry.Debug(message)
	}
}
