package trx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/sdr"
)

// gainCell holds one channel's gain as float64 bits so the setters and
// power queries never take a lock.
type gainCell struct {
	want    atomic.Uint64
	applied atomic.Uint64
	dirty   atomic.Bool
	ready   atomic.Bool
}

// gainBank is the shared gain state. Setters store the clamped value, mark
// the cell dirty and poke notify; the applier goroutine drains dirty cells
// into the radio. notify has capacity one so bursts of updates coalesce.
type gainBank struct {
	tx, rx   []gainCell
	min, max float64
	clamps   atomic.Int64
	notify   chan struct{}
}

func newGainBank(tx, rx []float64, lo, hi float64) *gainBank {
	b := &gainBank{
		tx:     make([]gainCell, len(tx)),
		rx:     make([]gainCell, len(rx)),
		min:    lo,
		max:    hi,
		notify: make(chan struct{}, 1),
	}
	for ch, v := range tx {
		b.set(sdr.TX, ch, v)
	}
	for ch, v := range rx {
		b.set(sdr.RX, ch, v)
	}
	return b
}

func (b *gainBank) cells(dir sdr.Direction) []gainCell {
	if dir == sdr.TX {
		return b.tx
	}
	return b.rx
}

func (b *gainBank) set(dir sdr.Direction, ch int, v float64) float64 {
	if math.IsNaN(v) {
		v = b.min
		b.clamps.Add(1)
	}
	if v < b.min || v > b.max {
		v = min(max(v, b.min), b.max)
		b.clamps.Add(1)
	}
	c := &b.cells(dir)[ch]
	c.want.Store(math.Float64bits(v))
	c.dirty.Store(true)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return v
}

func (b *gainBank) requested(dir sdr.Direction, ch int) float64 {
	return math.Float64frombits(b.cells(dir)[ch].want.Load())
}

func (b *gainBank) applied(dir sdr.Direction, ch int) (float64, bool) {
	c := &b.cells(dir)[ch]
	if !c.ready.Load() {
		return 0, false
	}
	return math.Float64frombits(c.applied.Load()), true
}

// runGainApplier programs dirty gains into every setter until ctx is done.
func (t *Transceiver) runGainApplier(ctx context.Context, b *gainBank, setters []sdr.GainSetter, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
		}
		for _, dir := range []sdr.Direction{sdr.TX, sdr.RX} {
			cells := b.cells(dir)
			for ch := range cells {
				c := &cells[ch]
				if !c.dirty.Swap(false) {
					continue
				}
				bits := c.want.Load()
				v := math.Float64frombits(bits)
				ok := true
				for _, s := range setters {
					if err := s.SetGain(ctx, dir, ch, v); err != nil {
						if ctx.Err() != nil || errors.Is(err, sdr.ErrClosed) {
							return
						}
						ok = false
						t.gainFailures.Add(1)
						t.log.Warn("gain update failed", logging.F("dir", dir), logging.F("channel", ch), logging.F("gain_db", v), logging.Err(err))
					}
				}
				if ok {
					c.applied.Store(bits)
					c.ready.Store(true)
				}
			}
		}
	}
}

// SetTXGain requests a transmit gain in dB for a global TX channel. Values
// outside the configured range are clamped and counted. The call never
// blocks; the gain reaches the hardware asynchronously.
func (t *Transceiver) SetTXGain(gainDB float64, channel int) error {
	return t.setGain(sdr.TX, gainDB, channel)
}

// SetRXGain is the receive counterpart of SetTXGain.
func (t *Transceiver) SetRXGain(gainDB float64, channel int) error {
	return t.setGain(sdr.RX, gainDB, channel)
}

func (t *Transceiver) setGain(dir sdr.Direction, gainDB float64, channel int) error {
	if err := t.streaming(); err != nil {
		return err
	}
	if channel < 0 || channel >= len(t.gains.cells(dir)) {
		return fmt.Errorf("%w: %s channel %d", ErrInvalidChannel, dir, channel)
	}
	if got := t.gains.set(dir, channel, gainDB); got != gainDB {
		t.log.Debug("gain clamped", logging.F("dir", dir), logging.F("channel", channel), logging.F("requested", gainDB), logging.F("gain_db", got))
	}
	return nil
}

// TXGain returns the last gain requested for a TX channel, after clamping.
func (t *Transceiver) TXGain(channel int) (float64, error) {
	return t.gain(sdr.TX, channel)
}

// RXGain returns the last gain requested for an RX channel, after clamping.
func (t *Transceiver) RXGain(channel int) (float64, error) {
	return t.gain(sdr.RX, channel)
}

func (t *Transceiver) gain(dir sdr.Direction, channel int) (float64, error) {
	if err := t.streaming(); err != nil {
		return 0, err
	}
	if channel < 0 || channel >= len(t.gains.cells(dir)) {
		return 0, fmt.Errorf("%w: %s channel %d", ErrInvalidChannel, dir, channel)
	}
	return t.gains.requested(dir, channel), nil
}

// AbsTXPower estimates the output power in dBm of a full-scale square wave
// on a TX channel: tx_power_ref plus the gain currently programmed. It
// returns ErrUnavailable when no reference is configured or the gain has not
// reached the hardware yet.
func (t *Transceiver) AbsTXPower(channel int) (float32, error) {
	return t.absPower(sdr.TX, channel)
}

// AbsRXPower estimates the input power in dBm that reads as a full-scale
// square wave on an RX channel: rx_power_ref minus the programmed gain.
func (t *Transceiver) AbsRXPower(channel int) (float32, error) {
	return t.absPower(sdr.RX, channel)
}

func (t *Transceiver) absPower(dir sdr.Direction, channel int) (float32, error) {
	if t.State() != StateStarted {
		return 0, ErrUnavailable
	}
	if channel < 0 || channel >= len(t.gains.cells(dir)) {
		return 0, fmt.Errorf("%w: %s channel %d", ErrInvalidChannel, dir, channel)
	}
	g, ok := t.gains.applied(dir, channel)
	if !ok {
		return 0, ErrUnavailable
	}
	if dir == sdr.TX {
		if !t.cfg.hasTXPowerRef {
			return 0, ErrUnavailable
		}
		return float32(t.cfg.txPowerRef + g), nil
	}
	if !t.cfg.hasRXPowerRef {
		return 0, ErrUnavailable
	}
	return float32(t.cfg.rxPowerRef - g), nil
}
