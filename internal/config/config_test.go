package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
driver:
  rf_driver: remote
  rf_addr: mdns
  tx_packet_size: 1920
  tx_power_ref: -3.5
  ssh_key: keys/id_ed25519
host:
  bandwidth: 20000000
  ports: 2
  channels: 2
  dlFreq: 3500000000
  ulFreq: 3500000000
  tdd:
    uldlConfig: 2
    specialSubframe: 7
  lead: 2ms
  statsInterval: 500ms
log:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trx.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sample)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dir != filepath.Dir(path) {
		t.Fatalf("unexpected dir %q", cfg.Dir)
	}
	h := cfg.Host
	if h.Bandwidth != 20_000_000 || h.Ports != 2 || h.Channels != 2 || h.DLFreq != 3_500_000_000 {
		t.Fatalf("unexpected host section %+v", h)
	}
	if h.TDD == nil || h.TDD.ULDLConfig != 2 || h.TDD.SpecialSubframe != 7 {
		t.Fatalf("unexpected tdd %+v", h.TDD)
	}
	if h.Lead.Std() != 2*time.Millisecond || h.StatsInterval.Std() != 500*time.Millisecond {
		t.Fatalf("unexpected durations %v %v", h.Lead, h.StatsInterval)
	}
	// Values missing from the file keep their defaults.
	if h.TXGain != -10 || cfg.Log.Format != "text" || cfg.Log.Level != "debug" {
		t.Fatalf("defaults not preserved: %+v %+v", h, cfg.Log)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "host:\n  lead: soon\n")); err == nil {
		t.Fatalf("expected duration parse error")
	}
	if _, err := Load(writeConfig(t, "host:\n  ports: 4\n  channels: 8\n")); err == nil {
		t.Fatalf("expected channel budget error")
	}
	if _, err := Load(writeConfig(t, "host:\n  tdd:\n    uldlConfig: 9\n")); err == nil {
		t.Fatalf("expected tdd range error")
	}
}

func TestPropertiesLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := &cfg.Driver
	p.lookupEnv = func(string) (string, bool) { return "", false }

	if v, ok := p.ParamString("rf_driver"); !ok || v != "remote" {
		t.Fatalf("rf_driver = %q %v", v, ok)
	}
	if v, ok := p.ParamDouble("tx_packet_size"); !ok || v != 1920 {
		t.Fatalf("tx_packet_size = %v %v", v, ok)
	}
	if v, ok := p.ParamDouble("tx_power_ref"); !ok || v != -3.5 {
		t.Fatalf("tx_power_ref = %v %v", v, ok)
	}
	if v, ok := p.ParamString("tx_packet_size"); !ok || v != "1920" {
		t.Fatalf("numeric property as string = %q %v", v, ok)
	}
	if _, ok := p.ParamDouble("rf_driver"); ok {
		t.Fatalf("non-numeric string must not parse as double")
	}
	if _, ok := p.ParamString("rx_power_ref"); ok {
		t.Fatalf("absent property reported present")
	}
	if keys := p.Keys(); len(keys) != 5 || keys[0] != "rf_addr" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestPropertiesEnvironmentOverride(t *testing.T) {
	env := map[string]string{"TRX_RF_DRIVER": "null", "TRX_RX_POWER_REF": " -60 "}
	p := NewProperties(map[string]any{"rf_driver": "loopback"})
	p.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if v, _ := p.ParamString("rf_driver"); v != "null" {
		t.Fatalf("environment did not override file: %q", v)
	}
	if v, ok := p.ParamDouble("rx_power_ref"); !ok || v != -60 {
		t.Fatalf("rx_power_ref = %v %v", v, ok)
	}
	p.Set("tx_power_ref", 7)
	if v, ok := p.ParamDouble("tx_power_ref"); !ok || v != 7 {
		t.Fatalf("tx_power_ref = %v %v", v, ok)
	}
}

func TestPropertiesReadEnvironment(t *testing.T) {
	t.Setenv("TRX_MAX_GAIN", "40")
	p := NewProperties(nil)
	if v, ok := p.ParamDouble("max_gain"); !ok || v != 40 {
		t.Fatalf("max_gain = %v %v", v, ok)
	}
}
