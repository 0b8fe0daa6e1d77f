package trx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/sdr"
)

// State is the lifecycle position of a Transceiver.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// startTimeout bounds hardware acquisition, including remote dial retries.
const startTimeout = 15 * time.Second

// Option configures a Transceiver.
type Option func(*Transceiver)

// WithLogger sets the driver logger. The default is logging.Default().
func WithLogger(l logging.Logger) Option {
	return func(t *Transceiver) {
		if l != nil {
			t.log = l
		}
	}
}

// WithConfigPath sets the directory of the host configuration file.
// Relative file properties such as ssh_key are resolved against it.
func WithConfigPath(dir string) Option {
	return func(t *Transceiver) { t.path = dir }
}

// WithBackend overrides the rf_driver property with a backend factory.
func WithBackend(name string, f sdr.Factory) Option {
	return func(t *Transceiver) {
		t.backendName = name
		t.factory = f
	}
}

// Transceiver is the reference driver core. Lifecycle calls are serialized
// by an internal mutex; the sample path, gain control and statistics use
// only atomics and per-port locks.
type Transceiver struct {
	log         logging.Logger
	path        string
	factory     sdr.Factory
	backendName string

	mu    sync.Mutex
	state atomic.Int32

	params *initParams
	cfg    driverConfig
	radio  sdr.Radio
	sysfs  *sdr.SysfsGainWriter
	p      *DriverParams
	tx     []*txPort
	rx     []*rxPort
	gains  *gainBank

	stopApplier context.CancelFunc
	applierDone chan struct{}
	startedAt   time.Time

	txUnderflow     atomic.Int64
	rxOverflow      atomic.Int64
	burstViolations atomic.Int64
	rxTimeouts      atomic.Int64
	gainFailures    atomic.Int64
}

var _ Driver = (*Transceiver)(nil)

// NewTransceiver returns an uninitialized driver.
func NewTransceiver(opts ...Option) *Transceiver {
	t := &Transceiver{log: logging.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open creates a driver and initializes it from src.
func Open(src ParamSource, opts ...Option) (*Transceiver, error) {
	t := NewTransceiver(opts...)
	if err := t.Init(src); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transceiver) APIVersion() int { return APIVersion }

func (t *Transceiver) State() State { return State(t.state.Load()) }

// Init reads the driver properties from src. It may succeed only once; on
// failure the driver stays uninitialized and Init may be retried.
func (t *Transceiver) Init(src ParamSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.State(); s != StateUninitialized {
		return fmt.Errorf("%w: init in state %s", ErrState, s)
	}

	params := newInitParams(src, t.log)
	defer params.close()

	cfg, err := loadDriverConfig(params, t.path)
	if err != nil {
		t.log.Error("driver configuration rejected", logging.Err(err))
		return err
	}

	factory := t.factory
	if factory != nil {
		cfg.backend = t.backendName
	} else {
		factory, err = sdr.Lookup(cfg.backend)
		if err != nil {
			return configErrorf("rf_driver", "%v", err)
		}
	}

	var sysfs *sdr.SysfsGainWriter
	if cfg.ssh != nil {
		sysfs, err = sdr.NewSysfsGainWriter(*cfg.ssh)
		if err != nil {
			return configErrorf("ssh_host", "%v", err)
		}
	}

	if cfg.hasLevel {
		t.log = logging.WithMinLevel(t.log, cfg.logLevel)
	}
	t.log = t.log.With(logging.F("backend", cfg.backend))
	params.log = t.log

	t.params = params
	t.cfg = cfg
	t.factory = factory
	t.sysfs = sysfs
	t.state.Store(int32(StateInitialized))
	t.log.Info("driver initialized",
		logging.F("api", APIVersion),
		logging.F("min_rate", cfg.minRate),
		logging.F("max_rate", cfg.maxRate),
		logging.F("packet", cfg.packet))
	return nil
}

// SampleRate negotiates the sample rate for a channel bandwidth within the
// configured hardware range. It has no side effects.
func (t *Transceiver) SampleRate(bandwidthHz int) (Fraction, int, error) {
	if t.State() == StateUninitialized {
		return Fraction{}, 0, fmt.Errorf("%w: negotiate before init", ErrState)
	}
	rate, n, err := NegotiateSampleRate(bandwidthHz, t.cfg.minRate, t.cfg.maxRate)
	if err != nil {
		return Fraction{}, 0, fmt.Errorf("%w: %d Hz", err, bandwidthHz)
	}
	return rate, n, nil
}

// Start validates p, acquires the radio and arms the per-port sample
// paths. On failure nothing stays acquired and Start may be retried.
func (t *Transceiver) Start(p *DriverParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.State(); s != StateInitialized {
		return fmt.Errorf("%w: start in state %s", ErrState, s)
	}
	if p == nil {
		return configErrorf("driver_params", "missing")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	params := p.Clone()

	cfg := sdr.Config{
		Addr:   t.cfg.addr,
		Logger: t.log,
		Ports:  make([]sdr.PortConfig, params.RFPortCount),
	}
	tx := make([]*txPort, params.RFPortCount)
	rx := make([]*rxPort, params.RFPortCount)
	for port := range cfg.Ports {
		rate := params.SampleRate[port].Float64()
		if rate < t.cfg.minRate || rate > t.cfg.maxRate {
			return configErrorf("sample_rate", "port %d: %g Hz outside %g..%g", port, rate, t.cfg.minRate, t.cfg.maxRate)
		}
		rxBuffer := t.cfg.rxBufferFor(rate)
		txFirst, txN := params.PortChannels(port, true)
		rxFirst, rxN := params.PortChannels(port, false)
		cfg.Ports[port] = sdr.PortConfig{
			TXChannels:      txN,
			RXChannels:      rxN,
			SampleRate:      rate,
			MaxTXPacket:     t.cfg.packet,
			RXBufferSamples: rxBuffer,
		}
		tx[port] = &txPort{channels: txN, firstChannel: txFirst, packet: t.cfg.packet}
		rx[port] = newRXPort(rxN, rxFirst, rate, rxBuffer)
	}

	radio := t.factory()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := radio.Open(ctx, cfg); err != nil {
		_ = radio.Close()
		t.log.Error("radio acquisition failed", logging.Err(err))
		return fmt.Errorf("%w: open %s backend: %v", ErrHardware, t.cfg.backend, err)
	}

	if err := t.tune(ctx, radio, params); err != nil {
		_ = radio.Close()
		t.log.Error("tuning failed", logging.Err(err))
		return fmt.Errorf("%w: %v", ErrHardware, err)
	}

	var setters []sdr.GainSetter
	if gs, ok := radio.(sdr.GainSetter); ok {
		setters = append(setters, gs)
	}
	if t.sysfs != nil {
		setters = append(setters, t.sysfs)
	}
	gains := newGainBank(params.TXGain, params.RXGain, t.cfg.minGain, t.cfg.maxGain)
	applierCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go t.runGainApplier(applierCtx, gains, setters, done)

	t.radio = radio
	t.p = params
	t.tx = tx
	t.rx = rx
	t.gains = gains
	t.stopApplier = stop
	t.applierDone = done
	t.startedAt = time.Now()
	t.state.Store(int32(StateStarted))

	t.log.Info("driver started",
		logging.F("ports", params.RFPortCount),
		logging.F("tx_channels", params.TXChannelCount),
		logging.F("rx_channels", params.RXChannelCount),
		logging.F("cells", len(params.Cells)))
	return nil
}

// tune programs every channel's carrier into the radio and the sysfs
// mirror, whichever of them can tune.
func (t *Transceiver) tune(ctx context.Context, radio sdr.Radio, p *DriverParams) error {
	var tuners []sdr.Tuner
	if tn, ok := radio.(sdr.Tuner); ok {
		tuners = append(tuners, tn)
	}
	if t.sysfs != nil {
		tuners = append(tuners, t.sysfs)
	}
	for _, tn := range tuners {
		for ch, f := range p.TXFreq {
			if err := tn.Tune(ctx, sdr.TX, ch, f); err != nil {
				return fmt.Errorf("tune tx channel %d to %d Hz: %w", ch, f, err)
			}
		}
		for ch, f := range p.RXFreq {
			if err := tn.Tune(ctx, sdr.RX, ch, f); err != nil {
				return fmt.Errorf("tune rx channel %d to %d Hz: %w", ch, f, err)
			}
		}
	}
	return nil
}

// TXSamplesPerPacket returns the largest count a Write on port accepts, or
// zero before Start.
func (t *Transceiver) TXSamplesPerPacket(port int) int {
	if t.State() != StateStarted || port < 0 || port >= len(t.tx) {
		return 0
	}
	return t.tx[port].packet
}

// Params returns a copy of the parameters the driver was started with.
func (t *Transceiver) Params() (*DriverParams, error) {
	if s := t.State(); s != StateStarted {
		return nil, fmt.Errorf("%w: state %s", ErrNotStarted, s)
	}
	return t.p.Clone(), nil
}

// End releases the radio and stops the gain applier. In-flight reads and
// writes return ErrClosed. The driver cannot be restarted.
func (t *Transceiver) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.State()
	if s != StateStarted && s != StateInitialized {
		return fmt.Errorf("%w: end in state %s", ErrState, s)
	}
	t.state.Store(int32(StateStopped))

	// Cancel the applier before closing the radio so an update cut short by
	// the close is not reported as a failure. Closing still unblocks an
	// update stuck on the radio.
	if t.stopApplier != nil {
		t.stopApplier()
	}
	var errs []error
	if t.radio != nil {
		if err := t.radio.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close radio: %w", err))
		}
	}
	if t.applierDone != nil {
		<-t.applierDone
	}
	if t.sysfs != nil {
		if err := t.sysfs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ssh: %w", err))
		}
	}

	t.log.Info("driver ended",
		logging.F("tx_underflow", t.txUnderflow.Load()),
		logging.F("rx_overflow", t.rxOverflow.Load()),
		logging.F("burst_violations", t.burstViolations.Load()))
	return errors.Join(errs...)
}

// streaming reports whether the sample path and gain control are usable.
func (t *Transceiver) streaming() error {
	switch t.State() {
	case StateStarted:
		return nil
	case StateStopped:
		return ErrClosed
	default:
		return ErrNotStarted
	}
}
