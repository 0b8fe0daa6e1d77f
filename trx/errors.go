package trx

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports a missing or invalid property or parameter.
	ErrConfig = errors.New("trx: invalid configuration")
	// ErrUnsupportedBandwidth is returned when no sample rate covers a bandwidth.
	ErrUnsupportedBandwidth = errors.New("trx: unsupported bandwidth")
	// ErrHardware reports a failure to acquire or drive the radio.
	ErrHardware = errors.New("trx: hardware error")
	// ErrState is returned for a lifecycle call made in the wrong state.
	ErrState = errors.New("trx: invalid driver state")
	// ErrNotStarted is returned by streaming and control calls before Start.
	ErrNotStarted = errors.New("trx: driver not started")
	// ErrClosed is returned by streaming calls once End has been called.
	ErrClosed = errors.New("trx: driver ended")
	// ErrUnavailable means no value can be produced right now.
	ErrUnavailable = errors.New("trx: unavailable")
	// ErrFlagConflict is returned for a write carrying both padding and
	// end-of-burst.
	ErrFlagConflict = errors.New("trx: padding and end-of-burst are mutually exclusive")
	ErrInvalidPort    = errors.New("trx: invalid rf port")
	ErrInvalidChannel = errors.New("trx: invalid channel")
	ErrInvalidCount   = errors.New("trx: invalid sample count")
	// ErrBufferShape is returned when a sample buffer does not match the
	// port's channel layout.
	ErrBufferShape = errors.New("trx: sample buffer does not match port layout")
	// ErrParamPhase is logged when a parameter lookup happens outside Init.
	ErrParamPhase = errors.New("trx: parameter lookup outside initialization")
	ErrVersion    = errors.New("trx: unsupported api version")
)

// ConfigError names the property or parameter that failed validation.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("trx: %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func configErrorf(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
