package sdr

import (
	"bytes"
	"math"
	"testing"
)

func TestIQ16RoundTrip(t *testing.T) {
	in := [][]complex64{
		{complex(0.5, -0.25), complex(0, 0.125), complex(-0.75, 0.5)},
		{complex(0.0625, 0), complex(-0.5, -0.5), complex(0.25, 0.25)},
	}
	data := AppendIQ16([]byte{0xff}, in, 3)
	if len(data) != 1+3*2*4 {
		t.Fatalf("unexpected encoded length %d", len(data))
	}

	out := newDst(2, 3)
	if err := DecodeIQ16(out, 3, data[1:]); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for c := range in {
		for s := range in[c] {
			if d := math.Abs(float64(real(out[c][s]) - real(in[c][s]))); d > 1e-4 {
				t.Fatalf("ch%d[%d] I differs by %g", c, s, d)
			}
			if d := math.Abs(float64(imag(out[c][s]) - imag(in[c][s]))); d > 1e-4 {
				t.Fatalf("ch%d[%d] Q differs by %g", c, s, d)
			}
		}
	}
}

func TestIQ16Clips(t *testing.T) {
	if got := floatToInt16(4); got != math.MaxInt16 {
		t.Fatalf("expected positive clip, got %d", got)
	}
	if got := floatToInt16(-4); got != math.MinInt16 {
		t.Fatalf("expected negative clip, got %d", got)
	}
}

func TestDecodeIQ16RejectsShortPayload(t *testing.T) {
	if err := DecodeIQ16(newDst(1, 2), 2, make([]byte, 7)); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	samples := [][]complex64{{complex(0.5, 0.5), complex(-0.5, 0)}}
	data := appendSampleFrame(nil, frameHeader{kind: frameTX, port: 3, count: 2, timestamp: 1234, flags: flagEndOfBurst | flagTA, ta: 63}, samples)
	data = appendSampleFrame(data, frameHeader{kind: frameTX, port: 3, count: 10, timestamp: 1236}, nil)

	r := bytes.NewReader(data)
	var hdr frameHeader
	payload, err := readFrame(r, &hdr, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hdr.kind != frameTX || hdr.port != 3 || hdr.timestamp != 1234 || hdr.count != 2 || hdr.flags != flagEndOfBurst|flagTA || hdr.ta != 63 {
		t.Fatalf("unexpected header %+v", hdr)
	}
	if len(payload) != 8 {
		t.Fatalf("unexpected payload length %d", len(payload))
	}

	payload, err = readFrame(r, &hdr, payload)
	if err != nil {
		t.Fatalf("read padding: %v", err)
	}
	if hdr.flags&flagPadding == 0 || hdr.count != 10 || len(payload) != 0 {
		t.Fatalf("unexpected padding frame %+v len=%d", hdr, len(payload))
	}
}

func TestFrameRejectsBadMagic(t *testing.T) {
	data := make([]byte, frameHeaderSize)
	var hdr frameHeader
	if _, err := readFrame(bytes.NewReader(data), &hdr, nil); err == nil {
		t.Fatalf("expected magic error")
	}
}
