package sdr

import (
	"errors"
	"testing"
	"time"
)

func ramp(start, n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(start+i), 0)
	}
	return out
}

func newDst(channels, n int) [][]complex64 {
	dst := make([][]complex64, channels)
	for i := range dst {
		dst[i] = make([]complex64, n)
	}
	return dst
}

func TestRingPushPopPreservesOrderAndTimestamps(t *testing.T) {
	r := NewRing(1, 16)
	r.Push(100, [][]complex64{ramp(0, 4)}, 4)
	r.Push(104, [][]complex64{ramp(4, 4)}, 4)

	dst := newDst(1, 3)
	for want := int64(100); want < 106; want += 3 {
		blk, err := r.Pop(dst, 3, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if blk.Timestamp != want || blk.Count != 3 || blk.Overflow {
			t.Fatalf("unexpected block %+v, want ts %d", blk, want)
		}
		if real(dst[0][0]) != float32(want-100) {
			t.Fatalf("sample at ts %d = %v", want, dst[0][0])
		}
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 samples left, got %d", r.Len())
	}
}

func TestRingFillsGapsWithSilence(t *testing.T) {
	r := NewRing(2, 16)
	r.Push(0, [][]complex64{ramp(1, 2), ramp(1, 2)}, 2)
	r.Push(4, [][]complex64{ramp(5, 2), nil}, 2)

	dst := newDst(2, 6)
	blk, err := r.Pop(dst, 6, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if blk.Timestamp != 0 || blk.Count != 6 {
		t.Fatalf("unexpected block %+v", blk)
	}
	wantCh0 := []float32{1, 2, 0, 0, 5, 6}
	for i, w := range wantCh0 {
		if real(dst[0][i]) != w {
			t.Fatalf("ch0[%d] = %v want %v", i, dst[0][i], w)
		}
	}
	if dst[1][4] != 0 || dst[1][5] != 0 {
		t.Fatalf("nil channel should read back as silence: %v", dst[1])
	}
}

func TestRingOverflowDropsOldestAndFlagsOnce(t *testing.T) {
	r := NewRing(1, 8)
	for i := 0; i < 3; i++ {
		dropped := r.Push(int64(i*4), [][]complex64{ramp(i*4, 4)}, 4)
		if dropped != (i == 2) {
			t.Fatalf("push %d dropped=%v", i, dropped)
		}
	}

	dst := newDst(1, 4)
	blk, err := r.Pop(dst, 4, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if !blk.Overflow || blk.Timestamp != 4 || real(dst[0][0]) != 4 {
		t.Fatalf("expected overflow block starting at 4, got %+v first=%v", blk, dst[0][0])
	}
	blk, err = r.Pop(dst, 4, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if blk.Overflow || blk.Timestamp != 8 {
		t.Fatalf("overflow must be reported once, got %+v", blk)
	}
}

func TestRingDiscardsOverlap(t *testing.T) {
	r := NewRing(1, 16)
	r.Push(0, [][]complex64{ramp(0, 4)}, 4)
	r.Push(2, [][]complex64{ramp(100, 4)}, 4)
	if r.Len() != 6 {
		t.Fatalf("expected 6 samples, got %d", r.Len())
	}
	dst := newDst(1, 6)
	if _, err := r.Pop(dst, 6, time.Millisecond); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if real(dst[0][3]) != 3 || real(dst[0][4]) != 102 {
		t.Fatalf("unexpected overlap handling: %v", dst[0])
	}
}

func TestRingPopTimesOutAndReturnsPartial(t *testing.T) {
	r := NewRing(1, 8)
	dst := newDst(1, 4)
	if _, err := r.Pop(dst, 4, 5*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	r.Push(10, [][]complex64{ramp(0, 2)}, 2)
	blk, err := r.Pop(dst, 4, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if blk.Count != 2 || blk.Timestamp != 10 {
		t.Fatalf("expected partial block, got %+v", blk)
	}
}

func TestRingCloseUnblocksPop(t *testing.T) {
	r := NewRing(1, 8)
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Pop(newDst(1, 4), 4, 5*time.Second)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pop did not return after close")
	}
}

func TestRingWrapsAround(t *testing.T) {
	r := NewRing(1, 5)
	dst := newDst(1, 3)
	var ts int64
	for i := 0; i < 10; i++ {
		r.Push(ts, [][]complex64{ramp(int(ts), 3)}, 3)
		blk, err := r.Pop(dst, 3, time.Millisecond)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if blk.Timestamp != ts || real(dst[0][2]) != float32(ts+2) {
			t.Fatalf("iteration %d: block %+v data %v", i, blk, dst[0])
		}
		ts += 3
	}
}
