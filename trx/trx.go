// Package trx defines the contract between a baseband host and a
// transceiver driver, and provides Transceiver, the reference driver core
// that streams timestamped IQ samples through an internal/sdr backend.
package trx

import (
	"fmt"
	"math/big"
)

// APIVersion is the driver interface version advertised to hosts.
const APIVersion = 11

const (
	MaxChannels = 16
	MaxRFPorts  = MaxChannels
)

// Timestamp is an absolute sample-clock count on one port.
type Timestamp int64

// Fraction is a rational number, used for sample rates that are not an
// integral number of Hz.
type Fraction struct {
	Num int
	Den int
}

func (f Fraction) Valid() bool { return f.Num > 0 && f.Den > 0 }

func (f Fraction) Float64() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// Reduce returns f in lowest terms.
func (f Fraction) Reduce() Fraction {
	if f.Den == 0 {
		return f
	}
	r := new(big.Rat).SetFrac64(int64(f.Num), int64(f.Den))
	return Fraction{Num: int(r.Num().Int64()), Den: int(r.Denom().Int64())}
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// Statistics is a snapshot of the streaming degradation counters. Counters
// only grow and are reset only when the driver is created.
type Statistics struct {
	// TXUnderflowCount counts writes that arrived too late to be sent.
	TXUnderflowCount int64
	// RXOverflowCount counts receive buffer overruns.
	RXOverflowCount int64
}

// Driver is the capability set a host uses once a driver is initialized.
// Write, Read, the gain setters and the power queries may be called
// concurrently from any goroutine.
type Driver interface {
	APIVersion() int
	SampleRate(bandwidthHz int) (Fraction, int, error)
	Start(p *DriverParams) error
	TXSamplesPerPacket(port int) int
	Write(ts Timestamp, samples [][]complex64, count int, flags WriteFlags, port int) error
	Read(samples [][]complex64, count int, port int) (Timestamp, int, error)
	SetTXGain(gainDB float64, channel int) error
	SetRXGain(gainDB float64, channel int) error
	AbsTXPower(channel int) (float32, error)
	AbsRXPower(channel int) (float32, error)
	Stats() (Statistics, error)
	Info() (string, error)
	End() error
}

// CheckVersion rejects drivers built against another interface version.
func CheckVersion(v int) error {
	if v != APIVersion {
		return fmt.Errorf("%w: driver api %d, host supports %d", ErrVersion, v, APIVersion)
	}
	return nil
}
