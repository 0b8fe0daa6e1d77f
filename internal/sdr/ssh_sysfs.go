package sdr

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig describes how to reach the IIO sysfs tree of the radio's
// embedded controller.
type SSHConfig struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
	// Device is the IIO PHY device directory, e.g. "iio:device0".
	Device string
}

// SysfsGainWriter mirrors gain changes into the hardwaregain attributes of
// an IIO PHY over SSH, and programs its local oscillators. It implements
// GainSetter and Tuner.
type SysfsGainWriter struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
	// lo caches the last LO frequency written per direction.
	lo map[Direction]int64
}

// NewSysfsGainWriter validates configuration and prepares a writer instance.
// No connection is made until the first gain is written.
func NewSysfsGainWriter(cfg SSHConfig) (*SysfsGainWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for sysfs gain control")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}
	if cfg.Device == "" {
		cfg.Device = "iio:device0"
	}
	return &SysfsGainWriter{cfg: cfg, lo: make(map[Direction]int64)}, nil
}

// SetGain writes gainDB to the channel's hardwaregain attribute.
func (w *SysfsGainWriter) SetGain(ctx context.Context, dir Direction, channel int, gainDB float64) error {
	target := w.attributePath(dir, channel, "hardwaregain")
	return w.writeAttr(ctx, target, strconv.FormatFloat(gainDB, 'f', 2, 64))
}

// Tune writes the direction's local oscillator frequency. The PHY has one
// LO per direction, so every channel of a direction shares it and repeated
// values are not rewritten.
func (w *SysfsGainWriter) Tune(ctx context.Context, dir Direction, _ int, freqHz int64) error {
	w.mu.Lock()
	same := w.lo[dir] == freqHz
	w.mu.Unlock()
	if same {
		return nil
	}
	if err := w.writeAttr(ctx, w.loPath(dir), strconv.FormatInt(freqHz, 10)); err != nil {
		return err
	}
	w.mu.Lock()
	w.lo[dir] = freqHz
	w.mu.Unlock()
	return nil
}

func (w *SysfsGainWriter) writeAttr(ctx context.Context, target, value string) error {
	client, err := w.dial(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		w.reset()
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	// printf avoids shell interpretation of the value contents.
	cmd := fmt.Sprintf("printf %s > %s", shellQuote(value), shellQuote(target))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write sysfs %s via ssh: %w", path.Base(target), err)
	}
	return nil
}

// Close drops the SSH connection, if any.
func (w *SysfsGainWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}

func (w *SysfsGainWriter) reset() {
	_ = w.Close()
}

func (w *SysfsGainWriter) dial(ctx context.Context) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	auth := []ssh.AuthMethod{}
	if w.cfg.Password != "" {
		auth = append(auth, ssh.Password(w.cfg.Password))
	}
	if w.cfg.KeyPath != "" {
		key, err := os.ReadFile(w.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            w.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := net.JoinHostPort(w.cfg.Host, strconv.Itoa(w.cfg.Port))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	w.client = ssh.NewClient(clientConn, chans, reqs)
	return w.client, nil
}

// attributePath maps a channel to its sysfs file, e.g.
// /sys/bus/iio/devices/iio:device0/out_voltage1_hardwaregain.
func (w *SysfsGainWriter) attributePath(dir Direction, channel int, attr string) string {
	prefix := "in"
	if dir == TX {
		prefix = "out"
	}
	filename := fmt.Sprintf("%s_voltage%d_%s", prefix, channel, attr)
	return path.Join(w.cfg.SysfsRoot, w.cfg.Device, filename)
}

// loPath is the frequency attribute of a direction's LO: altvoltage0 is
// the RX LO and altvoltage1 the TX LO.
func (w *SysfsGainWriter) loPath(dir Direction) string {
	filename := "out_altvoltage0_RX_LO_frequency"
	if dir == TX {
		filename = "out_altvoltage1_TX_LO_frequency"
	}
	return path.Join(w.cfg.SysfsRoot, w.cfg.Device, filename)
}

// shellQuote returns a value wrapped in single quotes with embedded quotes escaped
// for safe shell usage.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
