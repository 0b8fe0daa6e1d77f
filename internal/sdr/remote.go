package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/GoTRX/internal/logging"
	"github.com/rjboer/GoTRX/internal/mdns"
)

// DiscoverAddr is the Config.Addr value that resolves the radio head via mDNS.
const DiscoverAddr = "mdns"

// Remote streams samples to a radio head over TCP. TX blocks are sent as
// frames as soon as they are written; a reader goroutine feeds received
// frames into one bounded ring per port.
//
// All ports share one connection, so every outgoing frame (TX samples of
// any port, gain and tune requests) is serialized on wmu for the duration
// of one socket write. This is the only lock the ports share.
type Remote struct {
	// Dial opens the transport; defaults to a TCP dialer.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
	// Resolve finds the radio head when Config.Addr is DiscoverAddr.
	Resolve func(ctx context.Context) (string, error)
	// MaxRetries bounds dial attempts after the first failure.
	MaxRetries uint64

	log    logging.Logger
	conn   net.Conn
	wmu    sync.Mutex
	rings  []*Ring
	rxCh   []int
	txBuf  [][]byte
	closed atomic.Bool
	wg     sync.WaitGroup
}

func NewRemote() *Remote {
	return &Remote{
		Dial:       dialTCP,
		Resolve:    resolveRadioHead,
		MaxRetries: 4,
	}
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 3 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

func resolveRadioHead(ctx context.Context) (string, error) {
	browseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	hosts, err := mdns.Discover(browseCtx, mdns.RadioHeadService)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("no %s service found", mdns.RadioHeadService)
	}
	return hosts[0].Addr(), nil
}

func (r *Remote) Open(ctx context.Context, cfg Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	r.log = cfg.Logger
	if r.log == nil {
		r.log = logging.Default()
	}

	addr := cfg.Addr
	if addr == "" {
		return fmt.Errorf("remote: radio head address is required")
	}
	if addr == DiscoverAddr {
		resolved, err := r.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("discover radio head: %w", err)
		}
		r.log.Info("radio head discovered", logging.F("addr", resolved))
		addr = resolved
	}

	var conn net.Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := r.Dial(ctx, addr)
		if err != nil {
			r.log.Debug("radio head dial failed", logging.F("addr", addr), logging.F("attempt", attempt), logging.Err(err))
			return err
		}
		conn = c
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, r.MaxRetries), ctx)); err != nil {
		return fmt.Errorf("dial radio head %s: %w", addr, err)
	}

	var hello []byte
	for i, p := range cfg.Ports {
		hello = appendHeader(hello, frameHeader{
			kind:     frameConfig,
			port:     uint8(i),
			channels: uint8(p.TXChannels),
			count:    uint32(p.RXChannels),
			value:    p.SampleRate,
		})
	}
	if _, err := conn.Write(hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("configure radio head: %w", err)
	}

	r.conn = conn
	r.rings = make([]*Ring, len(cfg.Ports))
	r.rxCh = make([]int, len(cfg.Ports))
	r.txBuf = make([][]byte, len(cfg.Ports))
	for i, p := range cfg.Ports {
		r.rings[i] = NewRing(p.RXChannels, p.RXBufferSamples)
		r.rxCh[i] = p.RXChannels
		r.txBuf[i] = make([]byte, 0, frameHeaderSize+p.MaxTXPacket*p.TXChannels*4)
	}

	r.wg.Add(1)
	go r.readLoop(conn)
	r.log.Info("radio head connected", logging.F("addr", addr), logging.F("ports", len(cfg.Ports)))
	return nil
}

func (r *Remote) readLoop(conn net.Conn) {
	defer r.wg.Done()
	defer func() {
		for _, ring := range r.rings {
			ring.Close()
		}
	}()

	br := bufio.NewReaderSize(conn, 256<<10)
	scratch := make([][][]complex64, len(r.rings))
	var (
		hdr frameHeader
		buf []byte
		err error
	)
	for {
		buf, err = readFrame(br, &hdr, buf)
		if err != nil {
			if !r.closed.Load() {
				r.log.Error("radio head connection lost", logging.Err(err))
			}
			return
		}
		if hdr.kind != frameRX {
			continue
		}
		port := int(hdr.port)
		if port >= len(r.rings) {
			r.log.Warn("rx frame for unknown port", logging.F("port", port))
			continue
		}
		ring := r.rings[port]
		if hdr.flags&flagOverflow != 0 {
			ring.MarkOverflow()
		}
		count := int(hdr.count)
		if hdr.flags&flagPadding != 0 {
			ring.Push(hdr.timestamp, nil, count)
			continue
		}
		if int(hdr.channels) != r.rxCh[port] {
			r.log.Warn("rx frame channel mismatch", logging.F("port", port), logging.F("channels", hdr.channels))
			continue
		}
		chans := growChannels(scratch[port], r.rxCh[port], count)
		scratch[port] = chans
		if err := DecodeIQ16(chans, count, buf); err != nil {
			r.log.Warn("rx frame decode failed", logging.Err(err))
			continue
		}
		ring.Push(hdr.timestamp, chans, count)
	}
}

func growChannels(chans [][]complex64, channels, count int) [][]complex64 {
	if len(chans) != channels {
		chans = make([][]complex64, channels)
	}
	for i := range chans {
		if cap(chans[i]) < count {
			chans[i] = make([]complex64, count)
		}
		chans[i] = chans[i][:count]
	}
	return chans
}

func (r *Remote) Transmit(port int, blk TXBlock) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if port < 0 || port >= len(r.txBuf) {
		return fmt.Errorf("remote: no port %d", port)
	}
	h := frameHeader{kind: frameTX, port: uint8(port), count: uint32(blk.Count), timestamp: blk.Timestamp}
	if blk.StartOfBurst {
		h.flags |= flagStartOfBurst
	}
	if blk.EndOfBurst {
		h.flags |= flagEndOfBurst
	}
	if c := blk.Control; c.HARQPresent {
		h.flags |= flagHARQ
		if c.HARQAck0 {
			h.flags |= flagAck0
		}
		if c.HARQAck1 {
			h.flags |= flagAck1
		}
	}
	if blk.Control.TAPresent {
		h.flags |= flagTA
		h.ta = blk.Control.TimingAdvance
	}
	frame := appendSampleFrame(r.txBuf[port][:0], h, blk.Samples)
	r.txBuf[port] = frame
	return r.write(frame)
}

func (r *Remote) write(frame []byte) error {
	r.wmu.Lock()
	_, err := r.conn.Write(frame)
	r.wmu.Unlock()
	if err != nil {
		if r.closed.Load() || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("write radio head frame: %w", err)
	}
	return nil
}

func (r *Remote) Receive(port int, dst [][]complex64, count int, timeout time.Duration) (RXBlock, error) {
	if port < 0 || port >= len(r.rings) {
		return RXBlock{}, fmt.Errorf("remote: no port %d", port)
	}
	return r.rings[port].Pop(dst, count, timeout)
}

func (r *Remote) SetGain(_ context.Context, dir Direction, channel int, gainDB float64) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.write(appendHeader(nil, frameHeader{
		kind:     frameGain,
		port:     uint8(dir),
		channels: uint8(channel),
		value:    gainDB,
	}))
}

// Tune asks the radio head to move a channel's carrier.
func (r *Remote) Tune(_ context.Context, dir Direction, channel int, freqHz int64) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.write(appendHeader(nil, frameHeader{
		kind:     frameTune,
		port:     uint8(dir),
		channels: uint8(channel),
		value:    float64(freqHz),
	}))
}

func (r *Remote) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	var err error
	if r.conn != nil {
		err = r.conn.Close()
	}
	for _, ring := range r.rings {
		ring.Close()
	}
	r.wg.Wait()
	return err
}
