package sdr

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Radio-head wire format: a fixed little-endian header followed, for
// non-padding sample frames, by channels*count int16 I/Q pairs.
//
//	0  magic     u32  "TRX2"
//	4  kind      u8
//	5  port      u8   (gain, tune frames: direction)
//	6  channels  u8   (gain, tune frames: channel index)
//	7  flags     u8
//	8  count     u32  (config frames: rx channel count)
//	12 timestamp i64
//	20 value     f64  (config: sample rate, gain: dB, tune: Hz)
//	28 ta        u8   (TX frames with flagTA)
//	29 reserved  3 bytes
const (
	frameMagic      uint32 = 0x32585254
	frameHeaderSize        = 32
	maxFramePayload        = 64 << 20
)

const (
	frameConfig uint8 = iota + 1
	frameTX
	frameRX
	frameGain
	frameTune
)

const (
	flagPadding uint8 = 1 << iota
	flagStartOfBurst
	flagEndOfBurst
	flagOverflow
	flagHARQ
	flagAck0
	flagAck1
	flagTA
)

type frameHeader struct {
	kind      uint8
	port      uint8
	channels  uint8
	flags     uint8
	count     uint32
	timestamp int64
	value     float64
	ta        uint8
}

func (h frameHeader) payloadSize() int {
	if (h.kind != frameTX && h.kind != frameRX) || h.flags&flagPadding != 0 {
		return 0
	}
	return int(h.channels) * int(h.count) * 4
}

func appendHeader(dst []byte, h frameHeader) []byte {
	var b [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:], frameMagic)
	b[4] = h.kind
	b[5] = h.port
	b[6] = h.channels
	b[7] = h.flags
	binary.LittleEndian.PutUint32(b[8:], h.count)
	binary.LittleEndian.PutUint64(b[12:], uint64(h.timestamp))
	binary.LittleEndian.PutUint64(b[20:], math.Float64bits(h.value))
	b[28] = h.ta
	return append(dst, b[:]...)
}

// appendSampleFrame encodes a TX or RX frame whose header carries kind,
// port, flags, count, timestamp and ta. samples is nil for padding.
func appendSampleFrame(dst []byte, h frameHeader, samples [][]complex64) []byte {
	count := int(h.count)
	if samples == nil {
		h.flags |= flagPadding
		return appendHeader(dst, h)
	}
	h.channels = uint8(len(samples))
	dst = appendHeader(dst, h)
	return AppendIQ16(dst, samples, count)
}

// readFrame reads one frame, reusing buf for the payload when it is large
// enough.
func readFrame(r io.Reader, h *frameHeader, buf []byte) ([]byte, error) {
	var b [frameHeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return buf, err
	}
	if magic := binary.LittleEndian.Uint32(b[0:]); magic != frameMagic {
		return buf, fmt.Errorf("bad frame magic %#x", magic)
	}
	h.kind = b[4]
	h.port = b[5]
	h.channels = b[6]
	h.flags = b[7]
	h.count = binary.LittleEndian.Uint32(b[8:])
	h.timestamp = int64(binary.LittleEndian.Uint64(b[12:]))
	h.value = math.Float64frombits(binary.LittleEndian.Uint64(b[20:]))
	h.ta = b[28]

	n := h.payloadSize()
	if n > maxFramePayload {
		return buf, fmt.Errorf("frame payload of %d bytes exceeds limit", n)
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return buf, err
	}
	return buf, nil
}
