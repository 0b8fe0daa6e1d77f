package sdr

import (
	"encoding/binary"
	"fmt"
	"math"
)

const iqScale = 1.0 / 32768.0

// AppendIQ16 appends count samples of every channel as little-endian int16
// I/Q pairs, sample-major: [I0_ch0, Q0_ch0, I0_ch1, Q0_ch1, ...].
func AppendIQ16(dst []byte, channels [][]complex64, count int) []byte {
	need := count * len(channels) * 4
	start := len(dst)
	if cap(dst)-start < need {
		grown := make([]byte, start, start+need)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+need]
	off := start
	for s := 0; s < count; s++ {
		for _, ch := range channels {
			v := ch[s]
			binary.LittleEndian.PutUint16(dst[off:], uint16(floatToInt16(real(v))))
			binary.LittleEndian.PutUint16(dst[off+2:], uint16(floatToInt16(imag(v))))
			off += 4
		}
	}
	return dst
}

// DecodeIQ16 is the inverse of AppendIQ16; it fills dst[c][:count].
func DecodeIQ16(dst [][]complex64, count int, data []byte) error {
	if len(data) != count*len(dst)*4 {
		return fmt.Errorf("iq payload is %d bytes, want %d", len(data), count*len(dst)*4)
	}
	off := 0
	for s := 0; s < count; s++ {
		for _, ch := range dst {
			i := int16(binary.LittleEndian.Uint16(data[off:]))
			q := int16(binary.LittleEndian.Uint16(data[off+2:]))
			ch[s] = complex(float32(i)*iqScale, float32(q)*iqScale)
			off += 4
		}
	}
	return nil
}

func floatToInt16(v float32) int16 {
	scaled := int(math.Round(float64(v * 32767)))
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}
