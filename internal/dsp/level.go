package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Meter measures mean signal power relative to full scale, where a
// full-scale sample has magnitude 1. A square wave of maximum amplitude
// reads 0 dBFS. A Meter reuses its scratch buffer and is not safe for
// concurrent use.
type Meter struct {
	scratch []float64
}

// Level returns the mean power of x in dBFS, or -Inf for silence.
func (m *Meter) Level(x []complex64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	n := 2 * len(x)
	if cap(m.scratch) < n {
		m.scratch = make([]float64, n)
	}
	buf := m.scratch[:n]
	for i, v := range x {
		buf[2*i] = float64(real(v))
		buf[2*i+1] = float64(imag(v))
	}
	return PowerDB(floats.Dot(buf, buf) / float64(len(x)))
}

// PowerDB converts a linear power ratio to dB, mapping zero to -Inf.
func PowerDB(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(p)
}
