package trx

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/GoTRX/internal/sdr"
)

// Stats returns a snapshot of the degradation counters.
func (t *Transceiver) Stats() (Statistics, error) {
	if t.State() == StateUninitialized {
		return Statistics{}, ErrUnavailable
	}
	return Statistics{
		TXUnderflowCount: t.txUnderflow.Load(),
		RXOverflowCount:  t.rxOverflow.Load(),
	}, nil
}

// Info renders a fresh human-readable status report.
func (t *Transceiver) Info() (string, error) {
	state := t.State()
	if state == StateUninitialized {
		return "", ErrUnavailable
	}

	var b strings.Builder
	fmt.Fprintf(&b, "trx api %d, backend %s, %s", APIVersion, t.cfg.backend, state)
	if state == StateStarted {
		fmt.Fprintf(&b, " for %s", time.Since(t.startedAt).Truncate(time.Millisecond))
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "rate range %s to %s, packet %s samples, rx timeout %s\n",
		hz(t.cfg.minRate), hz(t.cfg.maxRate), humanize.Comma(int64(t.cfg.packet)), t.cfg.rxTimeout)

	if state == StateStarted {
		for port := 0; port < t.p.RFPortCount; port++ {
			t.writePortInfo(&b, port)
		}
	}

	fmt.Fprintf(&b, "tx underflow %s, rx overflow %s, burst violations %s, rx timeouts %s",
		humanize.Comma(t.txUnderflow.Load()), humanize.Comma(t.rxOverflow.Load()),
		humanize.Comma(t.burstViolations.Load()), humanize.Comma(t.rxTimeouts.Load()))
	if state != StateInitialized && t.gains != nil {
		fmt.Fprintf(&b, ", gain clamps %s, gain failures %s",
			humanize.Comma(t.gains.clamps.Load()), humanize.Comma(t.gainFailures.Load()))
	}
	if late := t.lateParamLookups(); late > 0 {
		fmt.Fprintf(&b, ", late parameter lookups %d", late)
	}
	b.WriteByte('\n')
	return b.String(), nil
}

func (t *Transceiver) writePortInfo(b *strings.Builder, port int) {
	tx, rx := t.tx[port], t.rx[port]
	rate := t.p.SampleRate[port]
	fmt.Fprintf(b, "port %d: %d tx / %d rx channels at %s (%s), rx buffer %s, %s writes (%s padding), %s samples read\n",
		port, tx.channels, rx.channels, hz(rate.Float64()), rate, humanize.Comma(int64(rx.maxRead)),
		humanize.Comma(tx.writes.Load()), humanize.Comma(tx.padding.Load()), humanize.Comma(rx.samples.Load()))
	if cell, ok := t.p.PortCell(port); ok {
		fmt.Fprintf(b, "  cell %s dl earfcn %d ul earfcn %d, %d/%d rb", cell.Type, cell.DLEARFCN, cell.ULEARFCN, cell.NRBDL, cell.NRBUL)
		if cell.TDD != nil {
			fmt.Fprintf(b, ", uldl %d %s, special %d", cell.TDD.ULDLConfig, cell.TDD.Pattern(), cell.TDD.SpecialSubframeConfig)
		}
		b.WriteByte('\n')
	}
	for i := 0; i < tx.channels; i++ {
		ch := tx.firstChannel + i
		fmt.Fprintf(b, "  tx%d %s gain %s\n", ch, hz(float64(t.p.TXFreq[ch])), t.gainText(sdr.TX, ch))
	}
	for i := 0; i < rx.channels; i++ {
		ch := rx.firstChannel + i
		fmt.Fprintf(b, "  rx%d %s gain %s\n", ch, hz(float64(t.p.RXFreq[ch])), t.gainText(sdr.RX, ch))
	}
	if rx.measured.Load() {
		fmt.Fprintf(b, "  rx level %s", dbfs(math.Float64frombits(rx.level.Load())))
		if rx.hasPeak.Load() {
			fmt.Fprintf(b, ", peak %s at %s", dbfs(math.Float64frombits(rx.peakDB.Load())), hz(math.Float64frombits(rx.peakHz.Load())))
		}
		b.WriteByte('\n')
	}
}

func (t *Transceiver) gainText(dir sdr.Direction, ch int) string {
	want := t.gains.requested(dir, ch)
	got, ok := t.gains.applied(dir, ch)
	switch {
	case !ok:
		return fmt.Sprintf("%.1f dB (pending)", want)
	case got != want:
		return fmt.Sprintf("%.1f dB (applying %.1f)", got, want)
	default:
		return fmt.Sprintf("%.1f dB", got)
	}
}

func (t *Transceiver) lateParamLookups() int64 {
	if t.params == nil {
		return 0
	}
	return t.params.late.Load()
}

func hz(v float64) string { return humanize.SIWithDigits(v, 3, "Hz") }

func dbfs(v float64) string {
	if math.IsInf(v, -1) {
		return "silent"
	}
	return fmt.Sprintf("%.1f dBFS", v)
}
