package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "": Info, "WARNING": Warn, " error ": Error}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTextLoggerFiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf).With(F("port", 0))
	l.Info("dropped")
	l.Warn("late write", F("ts", 42))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] late write port=0 ts=42") {
		t.Fatalf("unexpected output %q", out)
	}
	if l.Enabled(Debug) || !l.Enabled(Error) {
		t.Fatalf("unexpected Enabled results")
	}
}

func TestJSONLoggerRendersErrors(t *testing.T) {
	var buf bytes.Buffer
	New(Debug, JSON, &buf).Error("start failed", Err(errors.New("no device")))

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if payload["error"] != "no device" || payload["level"] != "ERROR" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestDefaultIsReplaceable(t *testing.T) {
	if Default().Enabled(Error) {
		t.Fatalf("default logger should discard")
	}
	var buf bytes.Buffer
	SetDefault(New(Info, Text, &buf))
	defer SetDefault(Nop())
	Default().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected default logger output")
	}
}

func TestWithMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := WithMinLevel(New(Debug, Text, &buf), Warn).With(F("port", 1))
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("entries below the minimum leaked: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN] shown port=1") {
		t.Fatalf("missing warning: %q", buf.String())
	}
	if l.Enabled(Info) || !l.Enabled(Error) {
		t.Fatalf("unexpected Enabled results")
	}
}
