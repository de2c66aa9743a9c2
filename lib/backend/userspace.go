package backend

import (
	"fmt"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
	"golang.zx2c4.com/wireguard/tun/netstack"
)

// Options configures the userspace engine.
type Options struct {
	// Addresses are the tunnel-internal addresses, used when an instance
	// is started without a host TUN descriptor and the engine falls back
	// to its netstack device.
	Addresses []netip.Addr
	// DNS are the netstack device's resolvers.
	DNS []netip.Addr
	// MTU is the tunnel MTU.
	MTU int
}

// normalizeOptions sets default values for missing configuration.
func normalizeOptions(opts *Options) {
	if opts.MTU <= 0 {
		opts.MTU = 1420
	}
}

// UserspaceEngine runs WireGuard instances in-process via wireguard-go.
// When Start receives a non-negative descriptor the instance attaches to the
// host-provided TUN device; otherwise it runs on an in-process netstack,
// which needs no privileges and is what tests use.
type UserspaceEngine struct {
	mu        sync.Mutex
	opts      Options
	next      Handle
	instances map[Handle]*instance
}

type instance struct {
	dev *device.Device
	net *netstack.Net
}

// NewUserspaceEngine creates a userspace engine.
func NewUserspaceEngine(opts Options) *UserspaceEngine {
	normalizeOptions(&opts)
	return &UserspaceEngine{
		opts:      opts,
		instances: make(map[Handle]*instance),
	}
}

// Start implements Engine.
func (e *UserspaceEngine) Start(configText string, tunFD int) (Handle, error) {
	var (
		tdev  tun.Device
		nsNet *netstack.Net
		err   error
	)

	if tunFD >= 0 {
		tdev, err = tunFromFD(tunFD, e.opts.MTU)
		if err != nil {
			return InvalidHandle, &StartError{Code: StatusUnsupportedTUN, Err: err}
		}
	} else {
		tdev, nsNet, err = netstack.CreateNetTUN(e.opts.Addresses, e.opts.DNS, e.opts.MTU)
		if err != nil {
			return InvalidHandle, &StartError{Code: StatusDeviceFailure, Err: fmt.Errorf("creating netstack TUN: %w", err)}
		}
	}

	dev := device.NewDevice(tdev, conn.NewDefaultBind(), engineLogger())

	if err := dev.IpcSet(configText); err != nil {
		dev.Close()
		return InvalidHandle, &StartError{Code: StatusInvalidConfig, Err: fmt.Errorf("configuring device: %w", err)}
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return InvalidHandle, &StartError{Code: StatusSocketFailure, Err: fmt.Errorf("bringing up device: %w", err)}
	}

	e.mu.Lock()
	handle := e.next
	e.next++
	e.instances[handle] = &instance{dev: dev, net: nsNet}
	e.mu.Unlock()

	log.WithField("handle", handle).WithField("mtu", e.opts.MTU).Info("engine instance started")
	return handle, nil
}

// Stop implements Engine.
func (e *UserspaceEngine) Stop(handle Handle) {
	e.mu.Lock()
	inst, ok := e.instances[handle]
	delete(e.instances, handle)
	e.mu.Unlock()

	if !ok {
		log.WithField("handle", handle).Warn("stop for unknown engine handle")
		return
	}

	inst.dev.Close()
	log.WithField("handle", handle).Info("engine instance stopped")
}

// SetConfig implements Engine.
func (e *UserspaceEngine) SetConfig(handle Handle, configText string) error {
	inst, ok := e.get(handle)
	if !ok {
		return fmt.Errorf("unknown engine handle %d", handle)
	}
	if err := inst.dev.IpcSet(configText); err != nil {
		return fmt.Errorf("updating device configuration: %w", err)
	}
	return nil
}

// GetConfig implements Engine.
func (e *UserspaceEngine) GetConfig(handle Handle) (string, bool) {
	inst, ok := e.get(handle)
	if !ok {
		return "", false
	}
	cfg, err := inst.dev.IpcGet()
	if err != nil {
		log.WithField("handle", handle).WithError(err).Error("reading device configuration")
		return "", false
	}
	return cfg, true
}

// BumpSockets implements Engine.
func (e *UserspaceEngine) BumpSockets(handle Handle) {
	inst, ok := e.get(handle)
	if !ok {
		return
	}
	if err := inst.dev.BindUpdate(); err != nil {
		log.WithField("handle", handle).WithError(err).Error("rebinding device sockets")
	}
}

// Net returns the netstack network of a running instance, for dialing
// through the tunnel in-process. Nil when the instance is attached to a
// host TUN descriptor instead.
func (e *UserspaceEngine) Net(handle Handle) *netstack.Net {
	inst, ok := e.get(handle)
	if !ok {
		return nil
	}
	return inst.net
}

// InstanceCount returns the number of live instances.
func (e *UserspaceEngine) InstanceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *UserspaceEngine) get(handle Handle) (*instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[handle]
	return inst, ok
}

// engineLogger bridges wireguard-go's logger to the process-wide log sink.
// The sink is consulted per message, so ClearLogSink takes effect
// immediately even while instances keep running.
func engineLogger() *device.Logger {
	return &device.Logger{
		Verbosef: func(format string, args ...any) {
			emitLog(LevelDebug, fmt.Sprintf(format, args...))
		},
		Errorf: func(format string, args ...any) {
			emitLog(LevelError, fmt.Sprintf(format, args...))
		},
	}
}
