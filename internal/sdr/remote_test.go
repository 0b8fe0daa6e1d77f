package sdr

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type radioHeadEvent struct {
	hdr frameHeader
	err error
}

// startRadioHead runs a single-connection radio head that echoes TX frames
// back as RX frames and reports every other frame on the returned channel.
// TX frames carrying HARQ or timing advance bits are reported as well.
func startRadioHead(t *testing.T) (string, <-chan radioHeadEvent) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	events := make(chan radioHeadEvent, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			events <- radioHeadEvent{err: err}
			return
		}
		defer conn.Close()

		var (
			hdr frameHeader
			buf []byte
		)
		for {
			buf, err = readFrame(conn, &hdr, buf)
			if err != nil {
				return
			}
			if hdr.kind != frameTX {
				events <- radioHeadEvent{hdr: hdr}
				continue
			}
			if hdr.flags&(flagHARQ|flagTA) != 0 {
				events <- radioHeadEvent{hdr: hdr}
			}
			echo := hdr
			echo.kind = frameRX
			echo.flags &= flagPadding
			out := appendHeader(nil, echo)
			out = append(out, buf...)
			if _, err := conn.Write(out); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String(), events
}

func nextEvent(t *testing.T, events <-chan radioHeadEvent) frameHeader {
	t.Helper()
	select {
	case ev := <-events:
		if ev.err != nil {
			t.Fatalf("radio head: %v", ev.err)
		}
		return ev.hdr
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for radio head frame")
	}
	return frameHeader{}
}

func TestRemoteStreamsThroughRadioHead(t *testing.T) {
	addr, events := startRadioHead(t)

	r := NewRemote()
	cfg := testConfig(1024)
	cfg.Addr = addr
	if err := r.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	hello := nextEvent(t, events)
	if hello.kind != frameConfig || hello.channels != 2 || hello.count != 2 || hello.value != 1.92e6 {
		t.Fatalf("unexpected config frame %+v", hello)
	}

	samples := [][]complex64{
		{complex(0.5, -0.5), complex(0.25, 0)},
		{complex(-1, 0), complex(0, 0.125)},
	}
	if err := r.Transmit(0, TXBlock{Timestamp: 500, Count: 2, Samples: samples, StartOfBurst: true}); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if err := r.Transmit(0, TXBlock{Timestamp: 502, Count: 2}); err != nil {
		t.Fatalf("transmit padding: %v", err)
	}

	dst := newDst(2, 4)
	var got int
	for got < 4 {
		blk, err := r.Receive(0, sliceDst(dst, got), 4-got, time.Second)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got == 0 && blk.Timestamp != 500 {
			t.Fatalf("first block timestamp %d, want 500", blk.Timestamp)
		}
		got += blk.Count
	}
	if dst[0][0] != complex(0.5, -0.5) || dst[1][1] != complex(0, 0.125) {
		t.Fatalf("unexpected samples %v", dst)
	}
	if dst[0][2] != 0 || dst[1][3] != 0 {
		t.Fatalf("padding must echo as silence: %v", dst)
	}

	if err := r.SetGain(context.Background(), TX, 1, -12.5); err != nil {
		t.Fatalf("set gain: %v", err)
	}
	gain := nextEvent(t, events)
	if gain.kind != frameGain || Direction(gain.port) != TX || gain.channels != 1 || gain.value != -12.5 {
		t.Fatalf("unexpected gain frame %+v", gain)
	}
}

func sliceDst(dst [][]complex64, off int) [][]complex64 {
	out := make([][]complex64, len(dst))
	for i := range dst {
		out[i] = dst[i][off:]
	}
	return out
}

func TestRemoteRetriesDial(t *testing.T) {
	addr, _ := startRadioHead(t)

	var attempts atomic.Int32
	r := NewRemote()
	r.Dial = func(ctx context.Context, a string) (net.Conn, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return dialTCP(ctx, a)
	}
	cfg := testConfig(64)
	cfg.Addr = addr
	if err := r.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", attempts.Load())
	}
}

func TestRemoteGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	r := NewRemote()
	r.MaxRetries = 2
	r.Dial = func(context.Context, string) (net.Conn, error) {
		attempts.Add(1)
		return nil, errors.New("unreachable")
	}
	cfg := testConfig(64)
	cfg.Addr = "192.0.2.1:1"
	if err := r.Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected dial failure")
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", attempts.Load())
	}
}

func TestRemoteUsesResolverForDiscovery(t *testing.T) {
	addr, _ := startRadioHead(t)

	r := NewRemote()
	r.Resolve = func(context.Context) (string, error) { return addr, nil }
	cfg := testConfig(64)
	cfg.Addr = DiscoverAddr
	if err := r.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = r.Close()

	if err := r.Transmit(0, TXBlock{Count: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestRemoteForwardsUplinkControlAndTuning(t *testing.T) {
	addr, events := startRadioHead(t)

	r := NewRemote()
	cfg := testConfig(64)
	cfg.Addr = addr
	if err := r.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if hello := nextEvent(t, events); hello.kind != frameConfig {
		t.Fatalf("unexpected first frame %+v", hello)
	}

	if err := r.Tune(context.Background(), RX, 1, 2_535_000_000); err != nil {
		t.Fatalf("tune: %v", err)
	}
	tune := nextEvent(t, events)
	if tune.kind != frameTune || Direction(tune.port) != RX || tune.channels != 1 || tune.value != 2.535e9 {
		t.Fatalf("unexpected tune frame %+v", tune)
	}

	samples := [][]complex64{make([]complex64, 4), make([]complex64, 4)}
	blk := TXBlock{
		Timestamp: 900,
		Count:     4,
		Samples:   samples,
		Control:   UplinkControl{HARQPresent: true, HARQAck0: true, TAPresent: true, TimingAdvance: 21},
	}
	if err := r.Transmit(0, blk); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	tx := nextEvent(t, events)
	want := flagHARQ | flagAck0 | flagTA
	if tx.kind != frameTX || tx.timestamp != 900 || tx.flags != want || tx.ta != 21 {
		t.Fatalf("unexpected tx frame %+v", tx)
	}

	if err := r.Transmit(0, TXBlock{Timestamp: 904, Count: 4, Samples: samples, Control: UplinkControl{HARQPresent: true, HARQAck1: true}}); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	tx = nextEvent(t, events)
	if tx.flags != flagHARQ|flagAck1 || tx.ta != 0 {
		t.Fatalf("unexpected tx frame %+v", tx)
	}
}

func TestRemoteKeepsConcurrentPortFramesWhole(t *testing.T) {
	addr, events := startRadioHead(t)

	const frames = 40
	r := NewRemote()
	port := testConfig(1024).Ports[0]
	cfg := Config{Addr: addr, Ports: []PortConfig{port, port}}
	if err := r.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for p := 0; p < 2; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples := [][]complex64{make([]complex64, 16), make([]complex64, 16)}
			for i := 0; i < frames; i++ {
				blk := TXBlock{
					Timestamp: int64(i * 16),
					Count:     16,
					Samples:   samples,
					Control:   UplinkControl{TAPresent: true, TimingAdvance: uint8(i)},
				}
				if err := r.Transmit(p, blk); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			if err := r.SetGain(context.Background(), RX, 0, float64(i)); err != nil {
				errs <- err
				return
			}
		}
	}()

	next := [2]int{}
	gains := 0
	for next[0]+next[1]+gains < 3*frames {
		hdr := nextEvent(t, events)
		switch hdr.kind {
		case frameConfig:
		case frameGain:
			if hdr.value != float64(gains) {
				t.Fatalf("gain frame %d carried %g", gains, hdr.value)
			}
			gains++
		case frameTX:
			p := int(hdr.port)
			if p >= len(next) {
				t.Fatalf("frame for unknown port %+v", hdr)
			}
			if int(hdr.ta) != next[p] || hdr.timestamp != int64(next[p]*16) {
				t.Fatalf("port %d: frame %+v out of sequence, want %d", p, hdr, next[p])
			}
			next[p]++
		default:
			t.Fatalf("unexpected frame %+v", hdr)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("write: %v", err)
	}
}
