package sdr

import (
	"sync"
	"time"
)

// Ring is a bounded multi-channel FIFO of timestamped samples. The stream
// is contiguous in time: gaps between pushes are filled with zeros and
// overlapping samples are discarded. When a push does not fit, the oldest
// samples are dropped and the next Pop reports Overflow.
//
// One goroutine pushes and one goroutine pops.
type Ring struct {
	mu       sync.Mutex
	buf      [][]complex64
	capacity int
	head     int
	size     int
	headTS   int64
	started  bool
	overflow bool
	closed   bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRing allocates a ring holding capacity samples on each channel.
func NewRing(channels, capacity int) *Ring {
	buf := make([][]complex64, channels)
	for i := range buf {
		buf[i] = make([]complex64, capacity)
	}
	return &Ring{
		buf:      buf,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Capacity returns the per-channel capacity in samples.
func (r *Ring) Capacity() int { return r.capacity }

// Len returns the number of buffered samples per channel.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Push appends count samples starting at ts. A nil samples slice, or a nil
// entry for one channel, stands for silence. It reports whether buffered
// samples had to be dropped.
func (r *Ring) Push(ts int64, samples [][]complex64, count int) bool {
	if count <= 0 {
		return false
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if !r.started {
		r.headTS = ts
		r.started = true
	}

	dropped := false
	offset := 0
	tail := r.headTS + int64(r.size)
	switch {
	case ts > tail:
		gap := ts - tail
		if gap >= int64(r.capacity) {
			dropped = r.size > 0
			r.head, r.size, r.headTS = 0, 0, ts
		} else if r.append(nil, 0, int(gap)) {
			dropped = true
		}
	case ts < tail:
		offset = int(tail - ts)
		if offset >= count {
			r.mu.Unlock()
			return false
		}
	}

	n := count - offset
	if n > r.capacity {
		dropped = true
		offset += n - r.capacity
		n = r.capacity
		r.head, r.size, r.headTS = 0, 0, ts+int64(offset)
	}
	if r.append(samples, offset, n) {
		dropped = true
	}
	if dropped {
		r.overflow = true
	}
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return dropped
}

// MarkOverflow flags a loss detected outside the ring, e.g. by the hardware.
func (r *Ring) MarkOverflow() {
	r.mu.Lock()
	r.overflow = true
	r.mu.Unlock()
}

// append copies n samples from samples[c][offset:] after the tail, evicting
// the oldest samples first. Caller holds mu and guarantees n <= capacity.
func (r *Ring) append(samples [][]complex64, offset, n int) bool {
	if n == 0 {
		return false
	}
	dropped := false
	if excess := r.size + n - r.capacity; excess > 0 {
		r.head = (r.head + excess) % r.capacity
		r.size -= excess
		r.headTS += int64(excess)
		dropped = true
	}

	tail := (r.head + r.size) % r.capacity
	first := min(n, r.capacity-tail)
	for c, dst := range r.buf {
		var src []complex64
		if c < len(samples) && samples[c] != nil {
			src = samples[c][offset : offset+n]
		}
		if src == nil {
			clear(dst[tail : tail+first])
			clear(dst[:n-first])
			continue
		}
		copy(dst[tail:tail+first], src[:first])
		copy(dst[:n-first], src[first:])
	}
	r.size += n
	return dropped
}

// take moves n samples from the head into dst. Caller holds mu.
func (r *Ring) take(dst [][]complex64, n int) RXBlock {
	blk := RXBlock{Timestamp: r.headTS, Count: n, Overflow: r.overflow}
	first := min(n, r.capacity-r.head)
	for c, src := range r.buf {
		if c >= len(dst) {
			break
		}
		copy(dst[c][:first], src[r.head:r.head+first])
		copy(dst[c][first:n], src[:n-first])
	}
	r.head = (r.head + n) % r.capacity
	r.size -= n
	r.headTS += int64(n)
	r.overflow = false
	return blk
}

// Pop waits up to timeout for count samples and copies them into dst. On
// timeout it returns whatever is buffered, or ErrTimeout when nothing is.
func (r *Ring) Pop(dst [][]complex64, count int, timeout time.Duration) (RXBlock, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return RXBlock{}, ErrClosed
		}
		if r.size >= count {
			blk := r.take(dst, count)
			r.mu.Unlock()
			return blk, nil
		}
		r.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-r.notify:
		case <-r.done:
			return RXBlock{}, ErrClosed
		case <-timer.C:
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.closed {
				return RXBlock{}, ErrClosed
			}
			if r.size == 0 {
				return RXBlock{}, ErrTimeout
			}
			return r.take(dst, min(r.size, count)), nil
		}
	}
}

// Close wakes any waiting Pop and rejects further pushes.
func (r *Ring) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
}
