package midi

// Parser is an incremental channel-message decoder. It accepts bytes one at a
// time, keeps running status, drops system real-time bytes wherever they
// appear, and discards system exclusive and system common messages.
type Parser struct {
	status  byte
	need    int
	data    [2]byte
	n       int
	inSysex bool
}

// dataLength is the number of data bytes following a channel status.
func dataLength(status byte) int {
	switch status >> 4 {
	case statusProgramChange, statusChannelPressure:
		return 1
	}
	return 2
}

// Reset forgets running status and any partial message.
func (p *Parser) Reset() {
	*p = Parser{}
}

// Feed consumes one byte. It returns the decoded event and true once a
// complete channel message has been seen.
func (p *Parser) Feed(b byte) (Event, bool) {
	switch {
	case b >= 0xF8:
		return Event{}, false
	case b == 0xF0:
		p.inSysex = true
		p.status = 0
		return Event{}, false
	case b == 0xF7:
		p.inSysex = false
		return Event{}, false
	case b >= 0xF1:
		// System common clears running status; its data bytes are ignored.
		p.inSysex = false
		p.status = 0
		return Event{}, false
	case b&0x80 != 0:
		p.inSysex = false
		p.status = b
		p.need = dataLength(b)
		p.n = 0
		return Event{}, false
	}
	if p.inSysex || p.status == 0 {
		return Event{}, false
	}
	p.data[p.n] = b
	p.n++
	if p.n < p.need {
		return Event{}, false
	}
	p.n = 0
	return decode(p.status, p.data[0], p.data[1]), true
}

// Parse decodes every complete message in buf, continuing from any state
// left by earlier calls.
func (p *Parser) Parse(buf []byte) []Event {
	var out []Event
	for _, b := range buf {
		if ev, ok := p.Feed(b); ok {
			out = append(out, ev)
		}
	}
	return out
}

func decode(status, d1, d2 byte) Event {
	ev := Event{Channel: int(status & 0x0F)}
	switch status >> 4 {
	case statusNoteOff:
		ev.Kind = NoteOff
		ev.Note = int(d1)
		ev.Velocity = int(d2)
	case statusNoteOn:
		ev.Kind = NoteOn
		ev.Note = int(d1)
		ev.Velocity = int(d2)
		if d2 == 0 {
			ev.Kind = NoteOff
		}
	case statusAftertouch:
		ev.Kind = Aftertouch
		ev.Note = int(d1)
		ev.Value = int(d2)
	case statusControlChange:
		ev.Controller = int(d1)
		ev.Value = int(d2)
		switch d1 {
		case ControllerVolume:
			ev.Kind = Volume
		case ControllerModulation:
			ev.Kind = Modulation
		default:
			ev.Kind = ControlChange
		}
	case statusProgramChange:
		ev.Kind = ProgramChange
		ev.Value = int(d1)
	case statusChannelPressure:
		ev.Kind = ChannelPressure
		ev.Value = int(d1)
	case statusPitchWheel:
		ev.Kind = PitchWheel
		ev.Value = int(d1) | int(d2)<<7
		ev.Bend = BendValue(ev.Value)
	}
	return ev
}
