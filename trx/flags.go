package trx

import "strings"

// WriteFlags annotate a Write call.
type WriteFlags uint32

const (
	// FlagPadding marks a span with no samples; nothing is radiated.
	FlagPadding WriteFlags = 1 << iota
	// FlagEndOfBurst announces that the next write will be padding.
	FlagEndOfBurst
	// FlagHARQAckPresent is set when HARQ ACK/NACK bits are attached.
	FlagHARQAckPresent
	FlagHARQAck0
	// FlagHARQAck1 is only used with TDD UL/DL configuration 0.
	FlagHARQAck1
	// FlagTAPresent is set when a timing advance value is attached.
	FlagTAPresent
)

const (
	taShift = 6
	taMask  = 0x3f
)

func (f WriteFlags) Has(bit WriteFlags) bool { return f&bit != 0 }

// Validate rejects combinations no write may carry.
func (f WriteFlags) Validate() error {
	if f.Has(FlagPadding) && f.Has(FlagEndOfBurst) {
		return ErrFlagConflict
	}
	return nil
}

// HARQAck returns the attached ACK bits; ok is false when none are present.
func (f WriteFlags) HARQAck() (ack0, ack1, ok bool) {
	if !f.Has(FlagHARQAckPresent) {
		return false, false, false
	}
	return f.Has(FlagHARQAck0), f.Has(FlagHARQAck1), true
}

// TimingAdvance returns the 6-bit timing advance; ok is false when absent.
func (f WriteFlags) TimingAdvance() (int, bool) {
	if !f.Has(FlagTAPresent) {
		return 0, false
	}
	return int(f>>taShift) & taMask, true
}

// WithTimingAdvance attaches ta, truncated to 6 bits.
func (f WriteFlags) WithTimingAdvance(ta int) WriteFlags {
	f &^= taMask << taShift
	return f | FlagTAPresent | WriteFlags(ta&taMask)<<taShift
}

func (f WriteFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  WriteFlags
		name string
	}{
		{FlagPadding, "padding"},
		{FlagEndOfBurst, "end-of-burst"},
		{FlagHARQAckPresent, "harq"},
		{FlagHARQAck0, "ack0"},
		{FlagHARQAck1, "ack1"},
		{FlagTAPresent, "ta"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
