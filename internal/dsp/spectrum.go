package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Spectrum locates the strongest tone in a block of samples. The Hamming
// window and FFT plan are computed once for a fixed size; a Spectrum is not
// safe for concurrent use.
type Spectrum struct {
	size      int
	window    []float64
	windowSum float64
	fft       *fourier.CmplxFFT
	in        []complex128
	out       []complex128
}

// NewSpectrum prepares an analyzer for blocks of size samples.
func NewSpectrum(size int) *Spectrum {
	win := Hamming(size)
	return &Spectrum{
		size:      size,
		window:    win,
		windowSum: floats.Sum(win),
		fft:       fourier.NewCmplxFFT(size),
		in:        make([]complex128, size),
		out:       make([]complex128, size),
	}
}

// Size returns the block length the analyzer was built for.
func (s *Spectrum) Size() int { return s.size }

// Peak returns the frequency offset from the carrier, in Hz, of the
// strongest bin in the first Size() samples of x and that bin's amplitude
// in dBFS. ok is false when x is shorter than the analyzer.
func (s *Spectrum) Peak(x []complex64, sampleRate float64) (offsetHz, dbfs float64, ok bool) {
	if len(x) < s.size || s.size == 0 {
		return 0, 0, false
	}
	for i := 0; i < s.size; i++ {
		w := s.window[i]
		s.in[i] = complex(float64(real(x[i]))*w, float64(imag(x[i]))*w)
	}
	coeff := s.fft.Coefficients(s.out, s.in)

	best, bestMag := 0, -1.0
	for i, c := range coeff {
		if mag := cmplx.Abs(c); mag > bestMag {
			best, bestMag = i, mag
		}
	}
	// Bins above Nyquist are negative frequencies.
	bin := best
	if bin >= s.size/2 {
		bin -= s.size
	}
	offsetHz = float64(bin) * sampleRate / float64(s.size)
	dbfs = math.Inf(-1)
	if bestMag > 0 {
		dbfs = 20 * math.Log10(bestMag/s.windowSum)
	}
	return offsetHz, dbfs, true
}

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{1}
	}
	win := make([]float64, n)
	for i := range win {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}
