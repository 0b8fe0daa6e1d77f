package sdr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rjboer/GoTRX/internal/logging"
)

var (
	// ErrLate is returned by Transmit when the block starts at or behind the
	// hardware transmit clock.
	ErrLate = errors.New("sdr: transmit time already passed")
	// ErrClosed is returned once the radio has been closed.
	ErrClosed = errors.New("sdr: radio closed")
	// ErrTimeout is returned by Receive when no samples arrived in time.
	ErrTimeout = errors.New("sdr: receive timed out")
)

// Direction selects the transmit or receive chain of a channel.
type Direction int

const (
	TX Direction = iota
	RX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// PortConfig describes one RF port as negotiated with the host.
type PortConfig struct {
	TXChannels      int
	RXChannels      int
	SampleRate      float64
	MaxTXPacket     int
	RXBufferSamples int
}

// Config carries everything a backend needs to acquire the hardware.
type Config struct {
	Ports  []PortConfig
	Addr   string
	Logger logging.Logger
}

// UplinkControl is the HARQ and timing advance metadata a host attaches
// to a block, for radio heads that emulate a UE towards an eNodeB under
// test. The zero value carries nothing.
type UplinkControl struct {
	HARQPresent bool
	HARQAck0    bool
	HARQAck1    bool
	TAPresent   bool
	// TimingAdvance is a 6-bit value.
	TimingAdvance uint8
}

// TXBlock is one transmit request. Samples is nil for a padding span.
type TXBlock struct {
	Timestamp    int64
	Count        int
	Samples      [][]complex64
	StartOfBurst bool
	EndOfBurst   bool
	Control      UplinkControl
}

// Padding reports whether the block carries no RF energy.
func (b TXBlock) Padding() bool { return b.Samples == nil }

// RXBlock describes the samples copied by Receive.
type RXBlock struct {
	Timestamp int64
	Count     int
	// Overflow is set when samples were dropped since the previous receive.
	Overflow bool
}

// Radio is the opaque RF sink/source below the driver core. Transmit and
// Receive for distinct ports may run concurrently; calls for one port are
// serialized by the caller.
type Radio interface {
	Open(ctx context.Context, cfg Config) error
	Transmit(port int, blk TXBlock) error
	Receive(port int, dst [][]complex64, count int, timeout time.Duration) (RXBlock, error)
	Close() error
}

// GainSetter is implemented by radios (or side channels) that can program
// analog gain. Channel indices are global across ports.
type GainSetter interface {
	SetGain(ctx context.Context, dir Direction, channel int, gainDB float64) error
}

// Tuner is implemented by radios (or side channels) that program carrier
// frequencies. Channel indices are global across ports.
type Tuner interface {
	Tune(ctx context.Context, dir Direction, channel int, freqHz int64) error
}

// Factory builds an unopened radio.
type Factory func() Radio

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"loopback": func() Radio { return NewLoopback() },
		"null":     func() Radio { return NewNull() },
		"remote":   func() Radio { return NewRemote() },
	}
)

// Register adds or replaces a named backend.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown rf backend %q", name)
	}
	return f, nil
}

// New builds the backend registered under name.
func New(name string) (Radio, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateConfig(cfg Config) error {
	if len(cfg.Ports) == 0 {
		return fmt.Errorf("no rf ports configured")
	}
	for i, p := range cfg.Ports {
		if p.SampleRate <= 0 {
			return fmt.Errorf("port %d: sample rate must be positive", i)
		}
		if p.RXBufferSamples <= 0 {
			return fmt.Errorf("port %d: rx buffer must be positive", i)
		}
		if p.TXChannels < 0 || p.RXChannels < 0 {
			return fmt.Errorf("port %d: negative channel count", i)
		}
	}
	return nil
}
