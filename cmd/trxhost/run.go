package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoTRX/internal/config"
	"github.com/rjboer/GoTRX/internal/host"
	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/statsdb"
	"github.com/rjboer/GoTRX/trx"
)

type runOptions struct {
	bandwidth     int
	ports         int
	channels      int
	tdd           int
	duration      time.Duration
	statsInterval time.Duration
	statsDB       string
	mlock         bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream a test cell through the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, root)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.bandwidth, "bandwidth", "b", 0, "channel bandwidth in Hz")
	f.IntVar(&opts.ports, "ports", 0, "number of RF ports")
	f.IntVar(&opts.channels, "channels", 0, "channels per port")
	f.IntVar(&opts.tdd, "tdd", -1, "TDD uplink-downlink configuration 0..6 (FDD when negative)")
	f.DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long (until interrupted when zero)")
	f.DurationVar(&opts.statsInterval, "stats-interval", 0, "statistics poll period")
	f.StringVar(&opts.statsDB, "stats-db", "", "record statistics in this sqlite database")
	f.BoolVar(&opts.mlock, "mlock", false, "lock process memory to avoid page faults while streaming")
	return cmd
}

// layout merges the flags over the host section of the configuration.
func (o *runOptions) layout(cfg *host.Layout, h config.HostConfig) error {
	*cfg = host.Layout{
		Bandwidth: h.Bandwidth,
		Ports:     h.Ports,
		Channels:  h.Channels,
		DLFreq:    h.DLFreq,
		ULFreq:    h.ULFreq,
		DLEARFCN:  h.DLEARFCN,
		ULEARFCN:  h.ULEARFCN,
		TXGain:    h.TXGain,
		RXGain:    h.RXGain,
	}
	if h.TDD != nil {
		cfg.TDD = &trx.TDDConfig{ULDLConfig: h.TDD.ULDLConfig, SpecialSubframeConfig: h.TDD.SpecialSubframe}
	}
	if o.bandwidth > 0 {
		cfg.Bandwidth = o.bandwidth
	}
	if o.ports > 0 {
		cfg.Ports = o.ports
	}
	if o.channels > 0 {
		cfg.Channels = o.channels
	}
	if cfg.Ports*cfg.Channels > trx.MaxChannels {
		return fmt.Errorf("%d ports of %d channels exceed %d channels", cfg.Ports, cfg.Channels, trx.MaxChannels)
	}
	if o.tdd >= 0 {
		tdd := trx.TDDConfig{ULDLConfig: uint8(o.tdd)}
		if err := tdd.Validate(); err != nil {
			return fmt.Errorf("--tdd: %w", err)
		}
		cfg.TDD = &tdd
	}
	return nil
}

func (o *runOptions) run(cmd *cobra.Command, root *rootOptions) error {
	log := root.log
	h := root.cfg.Host
	var layout host.Layout
	if err := o.layout(&layout, h); err != nil {
		return err
	}
	if o.duration == 0 {
		o.duration = h.Duration.Std()
	}
	if o.statsInterval == 0 {
		o.statsInterval = h.StatsInterval.Std()
	}
	if o.statsDB == "" && h.StatsDB != "" {
		o.statsDB = h.StatsDB
		if !filepath.IsAbs(o.statsDB) && root.cfg.Dir != "" {
			o.statsDB = filepath.Join(root.cfg.Dir, o.statsDB)
		}
	}

	if o.mlock {
		if err := lockMemory(); err != nil {
			return fmt.Errorf("mlock: %w", err)
		}
		log.Info("process memory locked")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	drv, err := trx.Open(&root.cfg.Driver, trx.WithConfigPath(root.cfg.Dir), trx.WithLogger(log))
	if err != nil {
		return err
	}

	var onStats func(time.Time, trx.Statistics)
	runner := host.NewRunner(drv, layout, host.Options{
		Lead:          h.Lead.Std(),
		StatsInterval: o.statsInterval,
		OnStats:       func(at time.Time, s trx.Statistics) { onStats(at, s) },
		Logger:        log,
	})
	if err := runner.Start(); err != nil {
		_ = drv.End()
		return err
	}

	onStats = func(_ time.Time, s trx.Statistics) {
		log.Debug("stats", logging.F("tx_underflow", s.TXUnderflowCount), logging.F("rx_overflow", s.RXOverflowCount))
	}
	if o.statsDB != "" {
		backend, ok := root.cfg.Driver.ParamString("rf_driver")
		if !ok || backend == "" {
			backend = "loopback"
		}
		rec, session, err := openRecorder(ctx, o.statsDB, drv, backend)
		if err != nil {
			_ = drv.End()
			return err
		}
		defer rec.Close()
		onStats = func(at time.Time, s trx.Statistics) {
			// The run context may already be done when the last tick lands.
			if err := rec.Record(context.Background(), session, at, s); err != nil {
				log.Warn("recording stats failed", logging.Err(err))
			}
		}
		log.Info("recording stats", logging.F("db", o.statsDB), logging.F("session", session))
	}

	report, err := runner.Run(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.Info)
	for i, p := range report.Ports {
		fmt.Fprintf(out, "port %d: %s blocks (%s padding, %s bursts ended), %s samples read\n", i,
			humanize.Comma(p.Blocks), humanize.Comma(p.Padding), humanize.Comma(p.EndOfBurst), humanize.Comma(p.SamplesRead))
	}
	fmt.Fprintf(out, "tx underflow %d, rx overflow %d\n", report.Stats.TXUnderflowCount, report.Stats.RXOverflowCount)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRecorder(ctx context.Context, path string, drv *trx.Transceiver, backend string) (*statsdb.Recorder, int64, error) {
	rec, err := statsdb.Open(path)
	if err != nil {
		return nil, 0, err
	}
	params, err := drv.Params()
	if err != nil {
		_ = rec.Close()
		return nil, 0, err
	}
	session, err := rec.StartSession(ctx, backend, params)
	if err != nil {
		_ = rec.Close()
		return nil, 0, err
	}
	return rec, session, nil
}
