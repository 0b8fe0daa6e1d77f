package trx

import "fmt"

// Subframe is the direction of one 1 ms LTE subframe.
type Subframe byte

const (
	Downlink Subframe = 'D'
	Special  Subframe = 'S'
	Uplink   Subframe = 'U'
)

// SubframesPerFrame is the number of subframes in a 10 ms radio frame.
const SubframesPerFrame = 10

// 3GPP TS 36.211 table 4.2-2.
var uldlPatterns = [...]string{
	"DSUUUDSUUU",
	"DSUUDDSUUD",
	"DSUDDDSUDD",
	"DSUUUDDDDD",
	"DSUUDDDDDD",
	"DSUDDDDDDD",
	"DSUUUDSUUD",
}

const maxSpecialSubframeConfig = 9

func (c TDDConfig) Validate() error {
	if int(c.ULDLConfig) >= len(uldlPatterns) {
		return fmt.Errorf("uplink-downlink configuration %d outside 0..%d", c.ULDLConfig, len(uldlPatterns)-1)
	}
	if c.SpecialSubframeConfig > maxSpecialSubframeConfig {
		return fmt.Errorf("special subframe configuration %d outside 0..%d", c.SpecialSubframeConfig, maxSpecialSubframeConfig)
	}
	return nil
}

// Pattern returns the ten subframe directions of the configuration.
func (c TDDConfig) Pattern() string {
	if int(c.ULDLConfig) >= len(uldlPatterns) {
		return ""
	}
	return uldlPatterns[c.ULDLConfig]
}

// Subframe returns the direction of subframe index i of any frame.
func (c TDDConfig) Subframe(i int) Subframe {
	p := c.Pattern()
	if p == "" {
		return Downlink
	}
	i %= SubframesPerFrame
	if i < 0 {
		i += SubframesPerFrame
	}
	return Subframe(p[i])
}
