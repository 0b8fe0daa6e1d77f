package trx

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rjboer/GoTRX/internal/dsp"
	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/sdr"
)

const (
	levelEvery    = 16
	spectrumEvery = 64
	spectrumSize  = 256
)

type txPort struct {
	channels     int
	firstChannel int
	packet       int

	// Guarded by mu. Writes on one port are serialized by the host; the
	// lock only keeps a misbehaving host from corrupting burst state.
	mu        sync.Mutex
	committed int64
	primed    bool
	inBurst   bool
	announced bool

	writes  atomic.Int64
	padding atomic.Int64
}

type rxPort struct {
	channels     int
	firstChannel int
	rate         float64
	maxRead      int

	mu       sync.Mutex
	reads    int64
	meter    dsp.Meter
	spectrum *dsp.Spectrum

	samples  atomic.Int64
	measured atomic.Bool
	level    atomic.Uint64
	peakHz   atomic.Uint64
	peakDB   atomic.Uint64
	hasPeak  atomic.Bool
}

func newRXPort(channels, first int, rate float64, maxRead int) *rxPort {
	return &rxPort{
		channels:     channels,
		firstChannel: first,
		rate:         rate,
		maxRead:      maxRead,
		spectrum:     dsp.NewSpectrum(spectrumSize),
	}
}

// Write transmits count samples of every channel of port starting at sample
// time ts. With FlagPadding, samples is ignored and nothing is radiated for
// the span. A write that starts before the end of the previous one on the
// same port, or that the radio reports as late, is dropped and counted as a
// TX underflow; it is not an error.
func (t *Transceiver) Write(ts Timestamp, samples [][]complex64, count int, flags WriteFlags, port int) error {
	if err := t.streaming(); err != nil {
		return err
	}
	if port < 0 || port >= len(t.tx) {
		return fmt.Errorf("%w: tx port %d", ErrInvalidPort, port)
	}
	p := t.tx[port]
	if count <= 0 || count > p.packet {
		return fmt.Errorf("%w: %d outside 1..%d", ErrInvalidCount, count, p.packet)
	}
	if err := flags.Validate(); err != nil {
		return err
	}
	padding := flags.Has(FlagPadding)
	eob := flags.Has(FlagEndOfBurst)
	if !padding {
		if err := checkShape(samples, p.channels, count); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.primed && int64(ts) < p.committed {
		t.countUnderflow(port, ts, p.committed)
		return nil
	}
	if p.announced && !padding {
		t.burstViolations.Add(1)
		t.log.Debug("end of burst not followed by padding", logging.F("port", port), logging.F("ts", int64(ts)))
	}

	blk := sdr.TXBlock{Timestamp: int64(ts), Count: count, EndOfBurst: eob, Control: uplinkControl(flags)}
	if !padding {
		blk.Samples = samples
		blk.StartOfBurst = !p.inBurst
	}
	if err := t.radio.Transmit(port, blk); err != nil {
		switch {
		case errors.Is(err, sdr.ErrLate):
			t.countUnderflow(port, ts, p.committed)
			return nil
		case errors.Is(err, sdr.ErrClosed):
			return ErrClosed
		default:
			return fmt.Errorf("%w: transmit on port %d: %v", ErrHardware, port, err)
		}
	}

	p.committed = int64(ts) + int64(count)
	p.primed = true
	p.inBurst = !padding && !eob
	p.announced = eob
	p.writes.Add(1)
	if padding {
		p.padding.Add(1)
	}
	return nil
}

func uplinkControl(flags WriteFlags) sdr.UplinkControl {
	var c sdr.UplinkControl
	c.HARQAck0, c.HARQAck1, c.HARQPresent = flags.HARQAck()
	if ta, ok := flags.TimingAdvance(); ok {
		c.TAPresent = true
		c.TimingAdvance = uint8(ta)
	}
	return c
}

func (t *Transceiver) countUnderflow(port int, ts Timestamp, committed int64) {
	t.txUnderflow.Add(1)
	t.log.Debug("late write dropped", logging.F("port", port), logging.F("ts", int64(ts)), logging.F("committed", committed))
}

// Read blocks until count samples of every channel of port are available or
// the configured receive timeout passes. It returns the timestamp of the
// first sample and the number of samples copied, which is zero when
// nothing arrived in time. A receive buffer overrun is counted and the
// samples that survived are still returned.
func (t *Transceiver) Read(samples [][]complex64, count int, port int) (Timestamp, int, error) {
	if err := t.streaming(); err != nil {
		return 0, 0, err
	}
	if port < 0 || port >= len(t.rx) {
		return 0, 0, fmt.Errorf("%w: rx port %d", ErrInvalidPort, port)
	}
	p := t.rx[port]
	if count <= 0 || count > p.maxRead {
		return 0, 0, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidCount, count, p.maxRead)
	}
	if err := checkShape(samples, p.channels, count); err != nil {
		return 0, 0, err
	}

	blk, err := t.radio.Receive(port, samples, count, t.cfg.rxTimeout)
	switch {
	case err == nil:
	case errors.Is(err, sdr.ErrTimeout):
		t.rxTimeouts.Add(1)
		return 0, 0, nil
	case errors.Is(err, sdr.ErrClosed):
		return 0, 0, ErrClosed
	default:
		return 0, 0, fmt.Errorf("%w: receive on port %d: %v", ErrHardware, port, err)
	}

	if blk.Overflow {
		t.rxOverflow.Add(1)
		t.log.Debug("receive buffer overflow", logging.F("port", port), logging.F("ts", blk.Timestamp))
	}
	p.samples.Add(int64(blk.Count))
	if p.channels > 0 {
		p.measure(samples[0][:blk.Count])
	}
	return Timestamp(blk.Timestamp), blk.Count, nil
}

// measure updates the port's level every levelEvery reads and its spectral
// peak every spectrumEvery reads.
func (p *rxPort) measure(x []complex64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.reads%levelEvery == 0 {
		p.level.Store(math.Float64bits(p.meter.Level(x)))
		p.measured.Store(true)
	}
	if p.reads%spectrumEvery == 0 {
		if hz, db, ok := p.spectrum.Peak(x, p.rate); ok {
			p.peakHz.Store(math.Float64bits(hz))
			p.peakDB.Store(math.Float64bits(db))
			p.hasPeak.Store(true)
		}
	}
}

func checkShape(samples [][]complex64, channels, count int) error {
	if len(samples) != channels {
		return fmt.Errorf("%w: %d channel buffers, port has %d", ErrBufferShape, len(samples), channels)
	}
	for i, ch := range samples {
		if len(ch) < count {
			return fmt.Errorf("%w: channel %d holds %d samples, need %d", ErrBufferShape, i, len(ch), count)
		}
	}
	return nil
}
