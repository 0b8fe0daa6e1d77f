package trx

type CyclicPrefix int

const (
	CyclicPrefixNormal CyclicPrefix = iota
	CyclicPrefixExtended
)

type CellType int

const (
	CellFDD CellType = iota
	CellTDD
)

func (c CellType) String() string {
	if c == CellTDD {
		return "TDD"
	}
	return "FDD"
}

// TDDConfig is only meaningful for TDD cells.
type TDDConfig struct {
	ULDLConfig            uint8
	SpecialSubframeConfig uint8
}

// CellInfo describes one served cell. TDD is non-nil exactly when Type is
// CellTDD.
type CellInfo struct {
	RFPortIndex    int
	DLEARFCN       uint32
	ULEARFCN       uint32
	NRBDL          int
	NRBUL          int
	DLCyclicPrefix CyclicPrefix
	ULCyclicPrefix CyclicPrefix
	Type           CellType
	TDD            *TDDConfig
}

// DriverParams is the topology a host starts the driver with. Per-channel
// slices are indexed by global channel number; channels are assigned to
// ports in order, so port p owns the channels following those of ports
// 0..p-1.
type DriverParams struct {
	RXChannelCount int
	TXChannelCount int

	RXFreq      []int64
	TXFreq      []int64
	RXGain      []float64
	TXGain      []float64
	RXBandwidth []int
	TXBandwidth []int

	RFPortCount        int
	SampleRate         []Fraction
	TXPortChannelCount []int
	RXPortChannelCount []int

	Cells []CellInfo
}

// Validate checks the structural invariants of p.
func (p *DriverParams) Validate() error {
	if p.RXChannelCount < 1 || p.RXChannelCount > MaxChannels {
		return configErrorf("rx_channel_count", "%d outside 1..%d", p.RXChannelCount, MaxChannels)
	}
	if p.TXChannelCount < 1 || p.TXChannelCount > MaxChannels {
		return configErrorf("tx_channel_count", "%d outside 1..%d", p.TXChannelCount, MaxChannels)
	}
	if p.RFPortCount < 1 || p.RFPortCount > MaxRFPorts {
		return configErrorf("rf_port_count", "%d outside 1..%d", p.RFPortCount, MaxRFPorts)
	}

	perChannel := []struct {
		key  string
		have int
		want int
	}{
		{"rx_freq", len(p.RXFreq), p.RXChannelCount},
		{"tx_freq", len(p.TXFreq), p.TXChannelCount},
		{"rx_gain", len(p.RXGain), p.RXChannelCount},
		{"tx_gain", len(p.TXGain), p.TXChannelCount},
		{"rx_bandwidth", len(p.RXBandwidth), p.RXChannelCount},
		{"tx_bandwidth", len(p.TXBandwidth), p.TXChannelCount},
		{"sample_rate", len(p.SampleRate), p.RFPortCount},
		{"tx_port_channel_count", len(p.TXPortChannelCount), p.RFPortCount},
		{"rx_port_channel_count", len(p.RXPortChannelCount), p.RFPortCount},
	}
	for _, c := range perChannel {
		if c.have != c.want {
			return configErrorf(c.key, "has %d entries, want %d", c.have, c.want)
		}
	}

	for i := 0; i < p.RXChannelCount; i++ {
		if p.RXFreq[i] <= 0 {
			return configErrorf("rx_freq", "channel %d: frequency %d Hz must be positive", i, p.RXFreq[i])
		}
		if p.RXBandwidth[i] <= 0 {
			return configErrorf("rx_bandwidth", "channel %d: bandwidth %d Hz must be positive", i, p.RXBandwidth[i])
		}
	}
	for i := 0; i < p.TXChannelCount; i++ {
		if p.TXFreq[i] <= 0 {
			return configErrorf("tx_freq", "channel %d: frequency %d Hz must be positive", i, p.TXFreq[i])
		}
		if p.TXBandwidth[i] <= 0 {
			return configErrorf("tx_bandwidth", "channel %d: bandwidth %d Hz must be positive", i, p.TXBandwidth[i])
		}
	}

	var txSum, rxSum int
	for port := 0; port < p.RFPortCount; port++ {
		if !p.SampleRate[port].Valid() {
			return configErrorf("sample_rate", "port %d: %s is not a positive rational", port, p.SampleRate[port])
		}
		if p.TXPortChannelCount[port] < 0 || p.RXPortChannelCount[port] < 0 {
			return configErrorf("port_channel_count", "port %d: negative channel count", port)
		}
		txSum += p.TXPortChannelCount[port]
		rxSum += p.RXPortChannelCount[port]
	}
	if txSum != p.TXChannelCount {
		return configErrorf("tx_port_channel_count", "sums to %d, want %d", txSum, p.TXChannelCount)
	}
	if rxSum != p.RXChannelCount {
		return configErrorf("rx_port_channel_count", "sums to %d, want %d", rxSum, p.RXChannelCount)
	}

	for i, c := range p.Cells {
		if c.RFPortIndex < 0 || c.RFPortIndex >= p.RFPortCount {
			return configErrorf("cell_info", "cell %d: rf port %d outside 0..%d", i, c.RFPortIndex, p.RFPortCount-1)
		}
		if c.NRBDL <= 0 || c.NRBUL <= 0 {
			return configErrorf("cell_info", "cell %d: resource block counts must be positive", i)
		}
		switch c.Type {
		case CellFDD:
			if c.TDD != nil {
				return configErrorf("cell_info", "cell %d: FDD cell carries a TDD configuration", i)
			}
		case CellTDD:
			if c.TDD == nil {
				return configErrorf("cell_info", "cell %d: TDD cell without TDD configuration", i)
			}
			if err := c.TDD.Validate(); err != nil {
				return configErrorf("cell_info", "cell %d: %v", i, err)
			}
		default:
			return configErrorf("cell_info", "cell %d: unknown cell type %d", i, c.Type)
		}
	}
	return nil
}

// PortChannels returns the first global channel index and the channel count
// of a port in one direction.
func (p *DriverParams) PortChannels(port int, tx bool) (first, count int) {
	counts := p.RXPortChannelCount
	if tx {
		counts = p.TXPortChannelCount
	}
	for i := 0; i < port; i++ {
		first += counts[i]
	}
	return first, counts[port]
}

// PortCell returns the first cell served on port, if any.
func (p *DriverParams) PortCell(port int) (CellInfo, bool) {
	for _, c := range p.Cells {
		if c.RFPortIndex == port {
			return c, true
		}
	}
	return CellInfo{}, false
}

// Clone returns a deep copy so the driver's view cannot be mutated by the
// host after Start.
func (p *DriverParams) Clone() *DriverParams {
	c := *p
	c.RXFreq = append([]int64(nil), p.RXFreq...)
	c.TXFreq = append([]int64(nil), p.TXFreq...)
	c.RXGain = append([]float64(nil), p.RXGain...)
	c.TXGain = append([]float64(nil), p.TXGain...)
	c.RXBandwidth = append([]int(nil), p.RXBandwidth...)
	c.TXBandwidth = append([]int(nil), p.TXBandwidth...)
	c.SampleRate = append([]Fraction(nil), p.SampleRate...)
	c.TXPortChannelCount = append([]int(nil), p.TXPortChannelCount...)
	c.RXPortChannelCount = append([]int(nil), p.RXPortChannelCount...)
	c.Cells = make([]CellInfo, len(p.Cells))
	for i, cell := range p.Cells {
		c.Cells[i] = cell
		if cell.TDD != nil {
			tdd := *cell.TDD
			c.Cells[i].TDD = &tdd
		}
	}
	return &c
}
