package trx

import (
	"math"
	"path/filepath"
	"time"

	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/sdr"
)

const (
	defaultBackend       = "loopback"
	defaultMinSampleRate = BaseRate
	defaultMaxSampleRate = 64 * BaseRate
	defaultPacketSize    = 4096
	defaultRXTimeout     = 20 * time.Millisecond
	defaultMinGain       = -90
	defaultMaxGain       = 90
	maxPacketSize        = 1 << 20
	maxRXBuffer          = 1 << 28
	maxRXTimeoutMS       = 60_000
)

// driverConfig holds every property the driver reads during Init.
type driverConfig struct {
	backend   string
	addr      string
	minRate   float64
	maxRate   float64
	packet    int
	// rxBuffer is zero when the buffer is sized per port at Start.
	rxBuffer  int
	rxTimeout time.Duration

	txPowerRef, rxPowerRef       float64
	hasTXPowerRef, hasRXPowerRef bool
	minGain, maxGain             float64

	ssh      *sdr.SSHConfig
	logLevel logging.Level
	hasLevel bool
}

// number looks up a double property and rejects NaN and infinities, which
// slip through every ordered range check.
func number(src ParamSource, key string) (float64, bool, error) {
	v, ok := src.ParamDouble(key)
	if !ok {
		return 0, false, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, configErrorf(key, "%g is not a finite number", v)
	}
	return v, true, nil
}

// loadDriverConfig reads and range-checks the driver properties. path is
// the directory of the host's configuration file, used to resolve a
// relative ssh_key.
func loadDriverConfig(src ParamSource, path string) (driverConfig, error) {
	cfg := driverConfig{
		backend:   defaultBackend,
		minRate:   defaultMinSampleRate,
		maxRate:   defaultMaxSampleRate,
		packet:    defaultPacketSize,
		rxTimeout: defaultRXTimeout,
		minGain:   defaultMinGain,
		maxGain:   defaultMaxGain,
	}

	if v, ok := src.ParamString("rf_driver"); ok && v != "" {
		cfg.backend = v
	}
	if v, ok := src.ParamString("rf_addr"); ok {
		cfg.addr = v
	}
	if cfg.backend == "remote" && cfg.addr == "" {
		return cfg, configErrorf("rf_addr", "required by the remote backend")
	}

	v, ok, err := number(src, "min_sample_rate")
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.minRate = v
	}
	if v, ok, err = number(src, "max_sample_rate"); err != nil {
		return cfg, err
	} else if ok {
		cfg.maxRate = v
	}
	if cfg.minRate <= 0 {
		return cfg, configErrorf("min_sample_rate", "%g must be positive", cfg.minRate)
	}
	if cfg.maxRate < cfg.minRate {
		return cfg, configErrorf("max_sample_rate", "%g below min_sample_rate %g", cfg.maxRate, cfg.minRate)
	}

	if v, ok, err = number(src, "tx_packet_size"); err != nil {
		return cfg, err
	} else if ok {
		if v < 1 || v > maxPacketSize {
			return cfg, configErrorf("tx_packet_size", "%g outside 1..%d", v, maxPacketSize)
		}
		cfg.packet = int(v)
	}
	if v, ok, err = number(src, "rx_buffer_samples"); err != nil {
		return cfg, err
	} else if ok {
		if v < float64(cfg.packet) || v > maxRXBuffer {
			return cfg, configErrorf("rx_buffer_samples", "%g outside tx_packet_size %d..%d", v, cfg.packet, maxRXBuffer)
		}
		cfg.rxBuffer = int(v)
	}
	if v, ok, err = number(src, "rx_timeout_ms"); err != nil {
		return cfg, err
	} else if ok {
		if v <= 0 || v > maxRXTimeoutMS {
			return cfg, configErrorf("rx_timeout_ms", "%g outside 0..%d", v, maxRXTimeoutMS)
		}
		cfg.rxTimeout = time.Duration(v * float64(time.Millisecond))
	}

	if cfg.txPowerRef, cfg.hasTXPowerRef, err = number(src, "tx_power_ref"); err != nil {
		return cfg, err
	}
	if cfg.rxPowerRef, cfg.hasRXPowerRef, err = number(src, "rx_power_ref"); err != nil {
		return cfg, err
	}

	if v, ok, err = number(src, "min_gain"); err != nil {
		return cfg, err
	} else if ok {
		cfg.minGain = v
	}
	if v, ok, err = number(src, "max_gain"); err != nil {
		return cfg, err
	} else if ok {
		cfg.maxGain = v
	}
	if cfg.maxGain < cfg.minGain {
		return cfg, configErrorf("max_gain", "%g below min_gain %g", cfg.maxGain, cfg.minGain)
	}

	if host, ok := src.ParamString("ssh_host"); ok && host != "" {
		ssh := &sdr.SSHConfig{Host: host}
		ssh.User, _ = src.ParamString("ssh_user")
		ssh.Password, _ = src.ParamString("ssh_password")
		if key, ok := src.ParamString("ssh_key"); ok && key != "" {
			if !filepath.IsAbs(key) && path != "" {
				key = filepath.Join(path, key)
			}
			ssh.KeyPath = key
		}
		port, ok, err := number(src, "ssh_port")
		if err != nil {
			return cfg, err
		}
		if ok {
			if port < 1 || port > 65535 {
				return cfg, configErrorf("ssh_port", "%g outside 1..65535", port)
			}
			ssh.Port = int(port)
		}
		ssh.SysfsRoot, _ = src.ParamString("sysfs_root")
		ssh.Device, _ = src.ParamString("iio_phy")
		if ssh.Password == "" && ssh.KeyPath == "" {
			return cfg, configErrorf("ssh_host", "needs ssh_password or ssh_key")
		}
		cfg.ssh = ssh
	}

	if v, ok := src.ParamString("log_level"); ok && v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return cfg, configErrorf("log_level", "%v", err)
		}
		cfg.logLevel, cfg.hasLevel = level, true
	}
	return cfg, nil
}

// rxBufferFor returns the receive buffer capacity of a port: the
// configured value, or at least 8 packets and 10 ms of samples.
func (c driverConfig) rxBufferFor(rate float64) int {
	if c.rxBuffer > 0 {
		return c.rxBuffer
	}
	return max(8*c.packet, int(rate/100))
}
