package host

import "github.com/rjboer/GoTRX/trx"

// Layout is the cell topology the runner asks the driver for: Ports ports
// of Channels TX and RX channels each, one cell per port.
type Layout struct {
	Bandwidth int
	Ports     int
	Channels  int
	DLFreq    int64
	ULFreq    int64
	DLEARFCN  uint32
	ULEARFCN  uint32
	TXGain    float64
	RXGain    float64
	// TDD is nil for FDD cells.
	TDD *trx.TDDConfig
}

// Resource blocks per LTE channel bandwidth.
var lteResourceBlocks = map[int]int{
	1_400_000:  6,
	3_000_000:  15,
	5_000_000:  25,
	10_000_000: 50,
	15_000_000: 75,
	20_000_000: 100,
}

// ResourceBlocks returns the number of 180 kHz resource blocks a
// bandwidth carries.
func ResourceBlocks(bandwidth int) int {
	if n, ok := lteResourceBlocks[bandwidth]; ok {
		return n
	}
	return max(1, bandwidth*9/10/180_000)
}

// Params builds the driver parameters for the layout at a negotiated rate.
func (l Layout) Params(rate trx.Fraction) *trx.DriverParams {
	total := l.Ports * l.Channels
	p := &trx.DriverParams{
		RXChannelCount:     total,
		TXChannelCount:     total,
		RXFreq:             make([]int64, total),
		TXFreq:             make([]int64, total),
		RXGain:             make([]float64, total),
		TXGain:             make([]float64, total),
		RXBandwidth:        make([]int, total),
		TXBandwidth:        make([]int, total),
		RFPortCount:        l.Ports,
		SampleRate:         make([]trx.Fraction, l.Ports),
		TXPortChannelCount: make([]int, l.Ports),
		RXPortChannelCount: make([]int, l.Ports),
	}
	for ch := 0; ch < total; ch++ {
		p.TXFreq[ch] = l.DLFreq
		p.RXFreq[ch] = l.ULFreq
		p.TXGain[ch] = l.TXGain
		p.RXGain[ch] = l.RXGain
		p.TXBandwidth[ch] = l.Bandwidth
		p.RXBandwidth[ch] = l.Bandwidth
	}
	nrb := ResourceBlocks(l.Bandwidth)
	for port := 0; port < l.Ports; port++ {
		p.SampleRate[port] = rate
		p.TXPortChannelCount[port] = l.Channels
		p.RXPortChannelCount[port] = l.Channels
		cell := trx.CellInfo{
			RFPortIndex: port,
			DLEARFCN:    l.DLEARFCN,
			ULEARFCN:    l.ULEARFCN,
			NRBDL:       nrb,
			NRBUL:       nrb,
			Type:        trx.CellFDD,
		}
		if l.TDD != nil {
			tdd := *l.TDD
			cell.Type = trx.CellTDD
			cell.TDD = &tdd
			// TDD cells share one carrier.
			cell.ULEARFCN = l.DLEARFCN
		}
		p.Cells = append(p.Cells, cell)
	}
	return p
}
