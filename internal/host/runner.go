package host

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/trx"
)

// toneCyclesPerSubframe puts the test tone 15 kHz above the carrier.
const toneCyclesPerSubframe = 15

// Options tune a Runner.
type Options struct {
	// Lead is how far ahead of the receive clock transmit blocks are
	// timestamped.
	Lead time.Duration
	// StatsInterval is the period of OnStats callbacks; zero disables them.
	StatsInterval time.Duration
	OnStats       func(at time.Time, s trx.Statistics)
	Logger        logging.Logger
}

// PortReport summarizes the traffic of one port.
type PortReport struct {
	Blocks      int64
	Padding     int64
	EndOfBurst  int64
	SamplesRead int64
}

// Report is returned by Run once the driver has ended.
type Report struct {
	Rate  trx.Fraction
	Ports []PortReport
	Stats trx.Statistics
	Info  string
}

// Runner drives a trx.Driver the way a baseband host does: one writer and
// one reader goroutine per port, transmit timestamps derived from the
// receive clock, and TDD padding in uplink subframes.
type Runner struct {
	drv    trx.Driver
	layout Layout
	opts   Options
	log    logging.Logger

	rate   trx.Fraction
	params *trx.DriverParams
	ports  []*portState
}

type portState struct {
	rxEnd    atomic.Int64
	progress chan struct{}

	blocks     atomic.Int64
	padding    atomic.Int64
	endOfBurst atomic.Int64
	read       atomic.Int64
}

func NewRunner(drv trx.Driver, layout Layout, opts Options) *Runner {
	if opts.Lead <= 0 {
		opts.Lead = 4 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Runner{drv: drv, layout: layout, opts: opts, log: log}
}

// Start negotiates the sample rate and starts the driver.
func (r *Runner) Start() error {
	if err := trx.CheckVersion(r.drv.APIVersion()); err != nil {
		return err
	}
	rate, n, err := r.drv.SampleRate(r.layout.Bandwidth)
	if err != nil {
		return fmt.Errorf("negotiate %d Hz: %w", r.layout.Bandwidth, err)
	}
	params := r.layout.Params(rate)
	if err := r.drv.Start(params); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	r.rate = rate
	r.params = params
	r.ports = make([]*portState, params.RFPortCount)
	for i := range r.ports {
		r.ports[i] = &portState{progress: make(chan struct{}, 1)}
	}
	r.log.Info("driver started", logging.F("rate", rate.String()), logging.F("n", n), logging.F("ports", params.RFPortCount))
	return nil
}

// Run streams until ctx is done or a loop fails, then ends the driver.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if r.params == nil {
		return Report{}, errors.New("host: runner not started")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		cancel()
	}
	for port := range r.ports {
		port := port
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := r.readLoop(ctx, port); err != nil {
				fail(fmt.Errorf("port %d reader: %w", port, err))
			}
		}()
		go func() {
			defer wg.Done()
			if err := r.writeLoop(ctx, port); err != nil {
				fail(fmt.Errorf("port %d writer: %w", port, err))
			}
		}()
	}
	if r.opts.StatsInterval > 0 && r.opts.OnStats != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.statsLoop(ctx)
		}()
	}

	<-ctx.Done()
	// Ending the driver unblocks readers and writers.
	info, _ := r.drv.Info()
	endErr := r.drv.End()
	wg.Wait()

	report := Report{Rate: r.rate, Info: info, Ports: make([]PortReport, len(r.ports))}
	for i, p := range r.ports {
		report.Ports[i] = PortReport{
			Blocks:      p.blocks.Load(),
			Padding:     p.padding.Load(),
			EndOfBurst:  p.endOfBurst.Load(),
			SamplesRead: p.read.Load(),
		}
	}
	report.Stats, _ = r.drv.Stats()
	if firstErr != nil {
		return report, firstErr
	}
	return report, endErr
}

func (r *Runner) subframeLen() int { return int(math.Round(r.rate.Float64() / 1000)) }

// blockLen is the largest divisor of a subframe that fits in one packet,
// so blocks never straddle subframes.
func blockLen(subframe, packet int) int {
	for d := 1; d <= subframe; d++ {
		if subframe%d == 0 && subframe/d <= packet {
			return subframe / d
		}
	}
	return 1
}

func (r *Runner) readLoop(ctx context.Context, port int) error {
	_, channels := r.params.PortChannels(port, false)
	block := blockLen(r.subframeLen(), r.drv.TXSamplesPerPacket(port))
	buf := make([][]complex64, channels)
	for i := range buf {
		buf[i] = make([]complex64, block)
	}
	p := r.ports[port]
	for ctx.Err() == nil {
		ts, n, err := r.drv.Read(buf, block, port)
		if errors.Is(err, trx.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		p.rxEnd.Store(int64(ts) + int64(n))
		p.read.Add(int64(n))
		select {
		case p.progress <- struct{}{}:
		default:
		}
	}
	return nil
}

func (r *Runner) writeLoop(ctx context.Context, port int) error {
	sf := r.subframeLen()
	block := blockLen(sf, r.drv.TXSamplesPerPacket(port))
	_, channels := r.params.PortChannels(port, true)
	lead := int64(r.opts.Lead.Seconds() * r.rate.Float64())
	window := int64(sf)

	tone := make([]complex64, sf)
	for i := range tone {
		phase := 2 * math.Pi * toneCyclesPerSubframe * float64(i) / float64(sf)
		tone[i] = complex64(complex(0.5*math.Cos(phase), 0.5*math.Sin(phase)))
	}
	samples := make([][]complex64, channels)

	var tdd *trx.TDDConfig
	if cell, ok := r.params.PortCell(port); ok && cell.Type == trx.CellTDD {
		tdd = cell.TDD
	}

	p := r.ports[port]
	next := (lead + int64(block) - 1) / int64(block) * int64(block)
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()
	for {
		// A block may start up to one subframe past the lead, whatever the
		// alignment of the first timestamp.
		for next > p.rxEnd.Load()+lead+window {
			select {
			case <-ctx.Done():
				return nil
			case <-p.progress:
			case <-poll.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		subframe := int(next / int64(sf))
		var flags trx.WriteFlags
		if tdd != nil {
			if tdd.Subframe(subframe) == trx.Uplink {
				flags = trx.FlagPadding
			} else if lastBlock := (next+int64(block))%int64(sf) == 0; lastBlock && tdd.Subframe(subframe+1) == trx.Uplink {
				flags = trx.FlagEndOfBurst
			}
		}

		var data [][]complex64
		if !flags.Has(trx.FlagPadding) {
			off := int(next % int64(sf))
			for i := range samples {
				samples[i] = tone[off : off+block]
			}
			data = samples
		}
		err := r.drv.Write(trx.Timestamp(next), data, block, flags, port)
		if errors.Is(err, trx.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		p.blocks.Add(1)
		if flags.Has(trx.FlagPadding) {
			p.padding.Add(1)
		}
		if flags.Has(trx.FlagEndOfBurst) {
			p.endOfBurst.Add(1)
		}
		next += int64(block)
	}
}

func (r *Runner) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s, err := r.drv.Stats()
			if err != nil {
				r.log.Debug("stats unavailable", logging.Err(err))
				continue
			}
			r.opts.OnStats(now, s)
		}
	}
}
