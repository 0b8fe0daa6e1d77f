package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoTRX/trx"
)

// EnvPrefix prefixes environment variables that override driver
// properties: TRX_RF_DRIVER overrides rf_driver.
const EnvPrefix = "TRX_"

// Config is the host configuration file.
type Config struct {
	Driver Properties `yaml:"driver"`
	Host   HostConfig `yaml:"host"`
	Log    LogConfig  `yaml:"log"`

	// Dir is the directory the file was loaded from.
	Dir string `yaml:"-"`
}

// HostConfig describes the cell layout the reference host runs.
type HostConfig struct {
	Bandwidth     int        `yaml:"bandwidth"`
	Ports         int        `yaml:"ports"`
	Channels      int        `yaml:"channels"`
	DLFreq        int64      `yaml:"dlFreq"`
	ULFreq        int64      `yaml:"ulFreq"`
	DLEARFCN      uint32     `yaml:"dlEarfcn"`
	ULEARFCN      uint32     `yaml:"ulEarfcn"`
	TXGain        float64    `yaml:"txGain"`
	RXGain        float64    `yaml:"rxGain"`
	TDD           *TDDConfig `yaml:"tdd"`
	Lead          Duration   `yaml:"lead"`
	StatsInterval Duration   `yaml:"statsInterval"`
	Duration      Duration   `yaml:"duration"`
	StatsDB       string     `yaml:"statsDB"`
}

type TDDConfig struct {
	ULDLConfig      uint8 `yaml:"uldlConfig"`
	SpecialSubframe uint8 `yaml:"specialSubframe"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Duration is a time.Duration written as "250ms" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a single-port, single-channel 10 MHz FDD layout on the
// loopback backend.
func Default() Config {
	return Config{
		Driver: Properties{values: map[string]any{}},
		Host: HostConfig{
			Bandwidth:     10_000_000,
			Ports:         1,
			Channels:      1,
			DLFreq:        2_680_000_000,
			ULFreq:        2_560_000_000,
			DLEARFCN:      3350,
			ULEARFCN:      21350,
			TXGain:        -10,
			RXGain:        20,
			Lead:          Duration(4 * time.Millisecond),
			StatsInterval: Duration(time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the host section.
func (c Config) Validate() error {
	h := c.Host
	switch {
	case h.Bandwidth <= 0:
		return fmt.Errorf("host.bandwidth must be positive")
	case h.Ports < 1 || h.Ports > trx.MaxRFPorts:
		return fmt.Errorf("host.ports must be between 1 and %d", trx.MaxRFPorts)
	case h.Channels < 1 || h.Ports*h.Channels > trx.MaxChannels:
		return fmt.Errorf("host.channels: %d ports of %d channels exceed %d", h.Ports, h.Channels, trx.MaxChannels)
	case h.DLFreq <= 0 || h.ULFreq <= 0:
		return fmt.Errorf("host.dlFreq and host.ulFreq must be positive")
	case h.Lead < 0:
		return fmt.Errorf("host.lead must not be negative")
	}
	if h.TDD != nil {
		tdd := trx.TDDConfig{ULDLConfig: h.TDD.ULDLConfig, SpecialSubframeConfig: h.TDD.SpecialSubframe}
		if err := tdd.Validate(); err != nil {
			return fmt.Errorf("host.tdd: %w", err)
		}
	}
	return nil
}

// Properties are the driver properties handed to trx.Init. Environment
// variables named EnvPrefix plus the upper-cased key take precedence over
// the file.
type Properties struct {
	values    map[string]any
	lookupEnv func(string) (string, bool)
}

var _ trx.ParamSource = (*Properties)(nil)

// NewProperties wraps values; the map is not copied.
func NewProperties(values map[string]any) *Properties {
	if values == nil {
		values = map[string]any{}
	}
	return &Properties{values: values}
}

func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	values := map[string]any{}
	if err := node.Decode(&values); err != nil {
		return fmt.Errorf("driver properties: %w", err)
	}
	p.values = values
	return nil
}

// Set stores a property, overriding the file.
func (p *Properties) Set(key string, value any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	p.values[key] = value
}

// Keys lists the properties present in the file, sorted.
func (p *Properties) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Properties) env(key string) (string, bool) {
	lookup := p.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return lookup(EnvPrefix + strings.ToUpper(key))
}

func (p *Properties) ParamString(key string) (string, bool) {
	if v, ok := p.env(key); ok {
		return v, true
	}
	switch v := p.values[key].(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func (p *Properties) ParamDouble(key string) (float64, bool) {
	if v, ok := p.env(key); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	switch v := p.values[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
