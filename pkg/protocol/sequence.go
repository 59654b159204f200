package protocol

// SequenceNumber is the signed per-frame counter. A negative value marks
// the terminal audio frame; its magnitude is still the frame's position.
type SequenceNumber int32

// Sequence returns the non-terminal sequence number for position n.
func Sequence(n int32) SequenceNumber {
	if n < 0 {
		n = -n
	}
	return SequenceNumber(n)
}

// Terminal returns the end-of-stream sequence number for position n.
func Terminal(n int32) SequenceNumber {
	if n < 0 {
		return SequenceNumber(n)
	}
	return SequenceNumber(-n)
}

func (s SequenceNumber) IsTerminal() bool { return s < 0 }

// Position is the absolute frame position regardless of sign.
func (s SequenceNumber) Position() int32 {
	if s < 0 {
		return int32(-s)
	}
	return int32(s)
}

func (s SequenceNumber) Int32() int32 { return int32(s) }

// Flags returns the header flags a request with this number must carry.
func (s SequenceNumber) Flags() Flags {
	if s.IsTerminal() {
		return FlagSequence | FlagTerminal
	}
	return FlagSequence
}
