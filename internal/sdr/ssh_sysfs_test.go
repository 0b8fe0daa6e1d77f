package sdr

import (
	"context"
	"testing"
)

func TestNewSysfsGainWriterDefaults(t *testing.T) {
	if _, err := NewSysfsGainWriter(SSHConfig{}); err == nil {
		t.Fatalf("expected error without host")
	}
	w, err := NewSysfsGainWriter(SSHConfig{Host: "pluto.local", Password: "analog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.cfg.User != "root" || w.cfg.Port != 22 {
		t.Fatalf("unexpected defaults %+v", w.cfg)
	}
}

func TestAttributePath(t *testing.T) {
	w, _ := NewSysfsGainWriter(SSHConfig{Host: "h", Device: "iio:device1"})
	if got := w.attributePath(TX, 1, "hardwaregain"); got != "/sys/bus/iio/devices/iio:device1/out_voltage1_hardwaregain" {
		t.Fatalf("unexpected tx path %q", got)
	}
	if got := w.attributePath(RX, 0, "hardwaregain"); got != "/sys/bus/iio/devices/iio:device1/in_voltage0_hardwaregain" {
		t.Fatalf("unexpected rx path %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"-10.00": "'-10.00'",
		"it's":   `'it'\''s'`,
		"/a b/c": "'/a b/c'",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Fatalf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSysfsGainWriterNeedsCredentials(t *testing.T) {
	w, _ := NewSysfsGainWriter(SSHConfig{Host: "127.0.0.1"})
	if err := w.SetGain(context.Background(), TX, 0, -10); err == nil {
		t.Fatalf("expected credential error")
	}
}

func TestSysfsLOPaths(t *testing.T) {
	w, err := NewSysfsGainWriter(SSHConfig{Host: "pluto.local", Password: "analog"})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if got := w.loPath(TX); got != "/sys/bus/iio/devices/iio:device0/out_altvoltage1_TX_LO_frequency" {
		t.Fatalf("tx lo path %q", got)
	}
	if got := w.loPath(RX); got != "/sys/bus/iio/devices/iio:device0/out_altvoltage0_RX_LO_frequency" {
		t.Fatalf("rx lo path %q", got)
	}
}

func TestSysfsTuneSkipsUnchangedLO(t *testing.T) {
	w, _ := NewSysfsGainWriter(SSHConfig{Host: "127.0.0.1"})
	w.lo[TX] = 2_680_000_000
	if err := w.Tune(context.Background(), TX, 3, 2_680_000_000); err != nil {
		t.Fatalf("unchanged LO must not reach the device: %v", err)
	}
	if err := w.Tune(context.Background(), RX, 0, 2_560_000_000); err == nil {
		t.Fatalf("expected credential error for a new LO value")
	}
	if w.lo[RX] != 0 {
		t.Fatalf("failed write must not be cached")
	}
}
