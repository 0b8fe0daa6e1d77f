package trx

import "math"

// BaseRate is the LTE 1.4 MHz sample rate all supported rates are
// multiples of.
const BaseRate = 1_920_000

// LTE channel bandwidths and their standard sampling multiples.
var lteMultiples = map[int]int{
	1_400_000:  1,
	3_000_000:  2,
	5_000_000:  4,
	10_000_000: 8,
	15_000_000: 12,
	20_000_000: 16,
}

// Other bandwidths need n*BaseRate >= bw*1.2288, i.e. n >= bw/1562500.
const hzPerMultiple = 1_562_500

// NegotiateSampleRate returns the sample rate for a channel bandwidth and
// the pre-interpolation multiple n, with rate = n * 1.92 MHz * k for the
// smallest interpolation factor k that reaches minRate. n only has the
// prime factors 2, 3 and 5.
func NegotiateSampleRate(bandwidthHz int, minRate, maxRate float64) (Fraction, int, error) {
	// Rates stay integral in a float64.
	maxRate = min(maxRate, 1<<53)
	if bandwidthHz <= 0 {
		return Fraction{}, 0, ErrUnsupportedBandwidth
	}
	n, ok := lteMultiples[bandwidthHz]
	if !ok {
		// Anything needing more than maxRate pre-interpolation is out.
		if float64(bandwidthHz)/hzPerMultiple*BaseRate > maxRate {
			return Fraction{}, 0, ErrUnsupportedBandwidth
		}
		n = bandwidthHz / hzPerMultiple
		if bandwidthHz%hzPerMultiple != 0 {
			n++
		}
		n = nextSmooth(n)
	}
	pre := float64(n) * BaseRate
	if pre > maxRate {
		return Fraction{}, 0, ErrUnsupportedBandwidth
	}
	k := max(1.0, math.Ceil(minRate/pre))
	if pre*k > maxRate {
		return Fraction{}, 0, ErrUnsupportedBandwidth
	}
	return Fraction{Num: n * int(k) * BaseRate, Den: 1}.Reduce(), n, nil
}

// IsSmooth reports whether n > 0 has no prime factor other than 2, 3 and 5.
func IsSmooth(n int) bool {
	if n <= 0 {
		return false
	}
	for _, p := range []int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}

func nextSmooth(n int) int {
	if n < 1 {
		n = 1
	}
	for !IsSmooth(n) {
		n++
	}
	return n
}
