// Package backend defines the contract between the tunnel lifecycle
// coordinator and the packet-forwarding engine, and provides a userspace
// implementation backed by wireguard-go. The engine is addressed through
// opaque integer handles; at most one handle is live per tunnel and the
// coordinator owns it exclusively while the tunnel runs.
package backend

import (
	"fmt"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Handle identifies one running engine instance. Valid handles are
// non-negative; InvalidHandle is returned alongside start errors.
type Handle int32

// InvalidHandle is the sentinel returned when Start fails.
const InvalidHandle Handle = -1

// Engine status codes returned inside StartError. Negative by convention,
// mirroring the engine's wire-level contract.
const (
	StatusInvalidConfig  int32 = -1
	StatusDeviceFailure  int32 = -2
	StatusSocketFailure  int32 = -3
	StatusUnsupportedTUN int32 = -4
)

// StartError reports an engine start failure with its status code.
type StartError struct {
	// Code is the engine's negative status code.
	Code int32
	// Err is the underlying cause, if known.
	Err error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine start failed (status %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("engine start failed (status %d)", e.Code)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error {
	return e.Err
}

// Engine is the packet-forwarding backend consumed by the lifecycle
// coordinator. All operations are synchronous and block until complete.
//
// Stop must not be called twice for the same handle; the engine's behavior
// on double-stop is undefined and the coordinator guarantees single
// ownership instead of relying on it.
type Engine interface {
	// Start brings up a forwarding instance from UAPI configuration text.
	// The engine takes ownership of tunFD when it is non-negative.
	// On failure the returned error carries the engine status code and
	// the handle is InvalidHandle.
	Start(configText string, tunFD int) (Handle, error)

	// Stop tears down the instance. Unknown handles are ignored.
	Stop(handle Handle)

	// SetConfig replaces the live configuration of a running instance.
	SetConfig(handle Handle, configText string) error

	// GetConfig returns a snapshot of the instance's runtime configuration.
	// The second return is false if the handle is not live.
	GetConfig(handle Handle) (string, bool)

	// BumpSockets makes the instance re-bind its sockets after an
	// interface or connectivity change, without reconfiguration.
	BumpSockets(handle Handle)
}

// LogLevel is the severity of an engine log message.
type LogLevel int

const (
	// LevelDebug is verbose engine chatter.
	LevelDebug LogLevel = iota
	// LevelInfo is normal operational logging.
	LevelInfo
	// LevelError is an engine error report.
	LevelError
)

// LogSink receives engine log messages. The engine may invoke it from its
// own goroutines at any time between SetLogSink and ClearLogSink.
type LogSink func(level LogLevel, message string)

var (
	sinkMu  sync.RWMutex
	logSink LogSink
)

// SetLogSink registers the process-wide engine log sink.
func SetLogSink(sink LogSink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	logSink = sink
}

// ClearLogSink deregisters the engine log sink. After ClearLogSink returns,
// no further messages are delivered; callers tear this down before
// releasing anything the sink captures.
func ClearLogSink() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	logSink = nil
}

// emitLog delivers one engine message to the sink, if any.
func emitLog(level LogLevel, message string) {
	sinkMu.RLock()
	sink := logSink
	sinkMu.RUnlock()

	if sink != nil {
		sink(level, message)
	}
}
