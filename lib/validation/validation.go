// Package validation provides reusable input validation functions for the
// tunnelkit VPN client. All validators follow a consistent pattern: they
// return nil on success and a descriptive error on failure. Errors are
// designed to be safe to return to callers (no internal details).
package validation

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrTooLong indicates a string exceeds the maximum length.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")
)

// Constraints for common field types.
const (
	// MaxTunnelNameLength is the maximum length for tunnel names.
	MaxTunnelNameLength = 64

	// MinMTU is the smallest MTU the engine accepts (IPv6 minimum link MTU).
	MinMTU = 1280

	// MaxMTU is the largest MTU the engine accepts.
	MaxMTU = 65535

	// MaxKeepalive is the largest persistent keepalive interval in seconds.
	MaxKeepalive = 65535
)

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string doesn't exceed the maximum length.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewResult(field, fmt.Sprintf("exceeds maximum length of %d characters", max), ErrTooLong)
	}
	return nil
}

// IntRange validates that an integer is within the given range (inclusive).
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that an integer is non-negative (>= 0).
func NonNegative(field string, value int) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// Port validates a UDP/TCP port number. Zero is allowed (means "any port").
func Port(field string, value int) error {
	if value < 0 || value > 65535 {
		return NewResult(field, "must be between 0 and 65535", ErrOutOfRange)
	}
	return nil
}

// MTU validates a tunnel MTU. Zero is allowed (means "use default").
func MTU(field string, value int) error {
	if value == 0 {
		return nil
	}
	if value < MinMTU || value > MaxMTU {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", MinMTU, MaxMTU), ErrOutOfRange)
	}
	return nil
}

// Keepalive validates a persistent keepalive interval in seconds.
// Zero is allowed (means "disabled").
func Keepalive(field string, value int) error {
	if value < 0 || value > MaxKeepalive {
		return NewResult(field, fmt.Sprintf("must be between 0 and %d seconds", MaxKeepalive), ErrOutOfRange)
	}
	return nil
}

// Endpoint validates a host:port endpoint specification. The host may be a
// DNS name, an IPv4 address, or a bracketed IPv6 address; it is not resolved
// here, only checked syntactically.
func Endpoint(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}

	host, port, err := net.SplitHostPort(value)
	if err != nil {
		return NewResult(field, "must be host:port", ErrInvalidFormat)
	}
	if host == "" {
		return NewResult(field, "host must not be empty", ErrInvalidFormat)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return NewResult(field, "port must be numeric", ErrInvalidFormat)
	}
	if p < 1 || p > 65535 {
		return NewResult(field, "port must be between 1 and 65535", ErrOutOfRange)
	}

	return nil
}

// Prefix validates a CIDR prefix (e.g. "10.0.0.0/24", "fd00::/64").
func Prefix(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, err := netip.ParsePrefix(value); err != nil {
		return NewResult(field, "must be a CIDR prefix", ErrInvalidFormat)
	}
	return nil
}

// Address validates a bare IP address (e.g. a DNS server).
func Address(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, err := netip.ParseAddr(value); err != nil {
		return NewResult(field, "must be an IP address", ErrInvalidFormat)
	}
	return nil
}

// All runs validators in order and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
