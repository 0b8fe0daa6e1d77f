package sdr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Null discards transmitted samples and produces silence, both paced by the
// wall clock at each port's sample rate. Sample time zero is the moment the
// radio was opened. Transmit requests that start at or behind the clock are
// rejected with ErrLate, and a reader that falls more than the RX buffer
// behind loses samples.
type Null struct {
	epoch     time.Time
	ports     []nullPort
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

type nullPort struct {
	rate     float64
	capacity int64
	nextRX   int64
	started  bool
}

func NewNull() *Null { return &Null{done: make(chan struct{})} }

func (n *Null) Open(_ context.Context, cfg Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	n.ports = make([]nullPort, len(cfg.Ports))
	for i, p := range cfg.Ports {
		n.ports[i] = nullPort{rate: p.SampleRate, capacity: int64(p.RXBufferSamples)}
	}
	n.epoch = time.Now()
	return nil
}

// Now returns the current hardware sample time of a port.
func (n *Null) Now(port int) int64 {
	return int64(time.Since(n.epoch).Seconds() * n.ports[port].rate)
}

func (n *Null) Transmit(port int, blk TXBlock) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if port < 0 || port >= len(n.ports) {
		return fmt.Errorf("null: no port %d", port)
	}
	if blk.Timestamp <= n.Now(port) {
		return ErrLate
	}
	return nil
}

func (n *Null) Receive(port int, dst [][]complex64, count int, timeout time.Duration) (RXBlock, error) {
	if n.closed.Load() {
		return RXBlock{}, ErrClosed
	}
	if port < 0 || port >= len(n.ports) {
		return RXBlock{}, fmt.Errorf("null: no port %d", port)
	}
	p := &n.ports[port]
	if !p.started {
		p.nextRX = n.Now(port)
		p.started = true
	}

	var blk RXBlock
	if now := n.Now(port); now-p.nextRX > p.capacity {
		p.nextRX = now - int64(count)
		blk.Overflow = true
	}

	ahead := p.nextRX + int64(count) - n.Now(port)
	if ahead > 0 {
		wait := time.Duration(float64(ahead) / p.rate * float64(time.Second))
		timer := time.NewTimer(min(wait, timeout))
		select {
		case <-timer.C:
		case <-n.done:
			timer.Stop()
			return RXBlock{}, ErrClosed
		}
	}

	avail := min(int64(count), n.Now(port)-p.nextRX)
	if avail <= 0 {
		return blk, ErrTimeout
	}
	for _, ch := range dst {
		clear(ch[:avail])
	}
	blk.Timestamp = p.nextRX
	blk.Count = int(avail)
	p.nextRX += avail
	return blk, nil
}

func (n *Null) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		close(n.done)
	})
	return nil
}
