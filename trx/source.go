package trx

import (
	"strconv"
	"sync/atomic"

	"github.com/rjboer/GoTRX/internal/logging"
)

// ParamSource is the host's property lookup. The driver only consults it
// while Init runs.
type ParamSource interface {
	ParamString(key string) (string, bool)
	ParamDouble(key string) (float64, bool)
}

// MapParams is an in-memory ParamSource. Values may be strings or numbers;
// numeric strings are accepted by ParamDouble.
type MapParams map[string]any

func (m MapParams) ParamString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	default:
		return "", false
	}
}

func (m MapParams) ParamDouble(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch d := v.(type) {
	case float64:
		return d, true
	case int:
		return float64(d), true
	case int64:
		return float64(d), true
	case string:
		f, err := strconv.ParseFloat(d, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// initParams confines lookups to the Init phase: once closed, every lookup
// reports the key as absent and logs ErrParamPhase.
type initParams struct {
	src    ParamSource
	log    logging.Logger
	closed atomic.Bool
	late   atomic.Int64
}

func newInitParams(src ParamSource, log logging.Logger) *initParams {
	if src == nil {
		src = MapParams{}
	}
	return &initParams{src: src, log: log}
}

func (p *initParams) close() { p.closed.Store(true) }

func (p *initParams) allowed(key string) bool {
	if !p.closed.Load() {
		return true
	}
	p.late.Add(1)
	p.log.Warn("parameter lookup rejected", logging.F("key", key), logging.Err(ErrParamPhase))
	return false
}

func (p *initParams) ParamString(key string) (string, bool) {
	if !p.allowed(key) {
		return "", false
	}
	return p.src.ParamString(key)
}

func (p *initParams) ParamDouble(key string) (float64, bool) {
	if !p.allowed(key) {
		return 0, false
	}
	return p.src.ParamDouble(key)
}
