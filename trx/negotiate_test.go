package trx

import (
	"errors"
	"math"
	"testing"
)

func TestNegotiateSampleRate(t *testing.T) {
	tests := []struct {
		bw      int
		minRate float64
		want    int
		n       int
	}{
		{bw: 1_400_000, minRate: BaseRate, want: 1_920_000, n: 1},
		{bw: 5_000_000, minRate: BaseRate, want: 7_680_000, n: 4},
		{bw: 10_000_000, minRate: BaseRate, want: 15_360_000, n: 8},
		{bw: 20_000_000, minRate: BaseRate, want: 30_720_000, n: 16},
		{bw: 100_000_000, minRate: BaseRate, want: 122_880_000, n: 64},
		// 40 MHz needs n >= 25.6; 27 is the next 5-smooth integer.
		{bw: 40_000_000, minRate: BaseRate, want: 51_840_000, n: 27},
		// Interpolated up to the hardware minimum.
		{bw: 1_400_000, minRate: 6_000_000, want: 7_680_000, n: 1},
	}
	for _, tc := range tests {
		rate, n, err := NegotiateSampleRate(tc.bw, tc.minRate, 64*BaseRate)
		if err != nil {
			t.Fatalf("bw %d: %v", tc.bw, err)
		}
		if n != tc.n || rate.Den != 1 || rate.Num != tc.want {
			t.Fatalf("bw %d: got %v n=%d, want %d n=%d", tc.bw, rate, n, tc.want, tc.n)
		}
		if !IsSmooth(n) {
			t.Fatalf("bw %d: multiple %d has a prime factor above 5", tc.bw, n)
		}
	}
}

func TestNegotiateUnsupported(t *testing.T) {
	for _, bw := range []int{0, -5, 200_000_000} {
		if _, _, err := NegotiateSampleRate(bw, BaseRate, 64*BaseRate); !errors.Is(err, ErrUnsupportedBandwidth) {
			t.Fatalf("bw %d: expected ErrUnsupportedBandwidth, got %v", bw, err)
		}
	}
	if _, _, err := NegotiateSampleRate(math.MaxInt, BaseRate, 64*BaseRate); !errors.Is(err, ErrUnsupportedBandwidth) {
		t.Fatalf("MaxInt bandwidth: expected ErrUnsupportedBandwidth, got %v", err)
	}
	if _, _, err := NegotiateSampleRate(math.MaxInt, BaseRate, math.MaxFloat64); !errors.Is(err, ErrUnsupportedBandwidth) {
		t.Fatalf("MaxInt bandwidth on an unbounded range: expected ErrUnsupportedBandwidth, got %v", err)
	}
	// Interpolation overshoots a narrow hardware range.
	if _, _, err := NegotiateSampleRate(20_000_000, 40e6, 50e6); !errors.Is(err, ErrUnsupportedBandwidth) {
		t.Fatalf("expected ErrUnsupportedBandwidth, got %v", err)
	}
}

func TestIsSmooth(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 12, 27, 64, 75} {
		if !IsSmooth(n) {
			t.Fatalf("%d should be smooth", n)
		}
	}
	for _, n := range []int{0, 7, 14, 26, 77} {
		if IsSmooth(n) {
			t.Fatalf("%d should not be smooth", n)
		}
	}
}
