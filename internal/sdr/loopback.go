package sdr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Loopback routes every transmitted block of port p into the receive ring
// of the same port: TX channel i appears on RX channel i. Padding spans
// come back as silence. The ring is bounded by RXBufferSamples, so a host
// that stops reading sees overflows exactly like real hardware.
type Loopback struct {
	rings   []*Ring
	scratch [][][]complex64
	opened  bool
	closed  atomic.Bool

	ctlMu sync.Mutex
	gains map[chanKey]float64
	freqs map[chanKey]int64
}

type chanKey struct {
	dir Direction
	ch  int
}

func NewLoopback() *Loopback {
	return &Loopback{gains: make(map[chanKey]float64), freqs: make(map[chanKey]int64)}
}

func (l *Loopback) Open(_ context.Context, cfg Config) error {
	if l.opened {
		return fmt.Errorf("loopback already opened")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	l.rings = make([]*Ring, len(cfg.Ports))
	l.scratch = make([][][]complex64, len(cfg.Ports))
	for i, p := range cfg.Ports {
		l.rings[i] = NewRing(p.RXChannels, p.RXBufferSamples)
		l.scratch[i] = make([][]complex64, p.RXChannels)
	}
	l.opened = true
	return nil
}

func (l *Loopback) Transmit(port int, blk TXBlock) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if port < 0 || port >= len(l.rings) {
		return fmt.Errorf("loopback: no port %d", port)
	}
	if blk.Padding() {
		l.rings[port].Push(blk.Timestamp, nil, blk.Count)
		return nil
	}
	mapped := l.scratch[port]
	for i := range mapped {
		mapped[i] = nil
		if i < len(blk.Samples) {
			mapped[i] = blk.Samples[i][:blk.Count]
		}
	}
	l.rings[port].Push(blk.Timestamp, mapped, blk.Count)
	return nil
}

func (l *Loopback) Receive(port int, dst [][]complex64, count int, timeout time.Duration) (RXBlock, error) {
	if l.closed.Load() {
		return RXBlock{}, ErrClosed
	}
	if port < 0 || port >= len(l.rings) {
		return RXBlock{}, fmt.Errorf("loopback: no port %d", port)
	}
	return l.rings[port].Pop(dst, count, timeout)
}

func (l *Loopback) SetGain(_ context.Context, dir Direction, channel int, gainDB float64) error {
	l.ctlMu.Lock()
	l.gains[chanKey{dir, channel}] = gainDB
	l.ctlMu.Unlock()
	return nil
}

// Gain returns the last value programmed for the channel.
func (l *Loopback) Gain(dir Direction, channel int) (float64, bool) {
	l.ctlMu.Lock()
	defer l.ctlMu.Unlock()
	v, ok := l.gains[chanKey{dir, channel}]
	return v, ok
}

func (l *Loopback) Tune(_ context.Context, dir Direction, channel int, freqHz int64) error {
	l.ctlMu.Lock()
	l.freqs[chanKey{dir, channel}] = freqHz
	l.ctlMu.Unlock()
	return nil
}

// Frequency returns the last carrier programmed for the channel.
func (l *Loopback) Frequency(dir Direction, channel int) (int64, bool) {
	l.ctlMu.Lock()
	defer l.ctlMu.Unlock()
	v, ok := l.freqs[chanKey{dir, channel}]
	return v, ok
}

func (l *Loopback) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	for _, r := range l.rings {
		r.Close()
	}
	return nil
}
