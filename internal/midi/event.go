// Package midi decodes raw MIDI byte streams into typed events and runs the
// background event source that feeds them to a synthesizer.
package midi

import "fmt"

// Kind classifies a decoded channel message.
type Kind int

const (
	NoteOff Kind = iota
	NoteOn
	ControlChange
	Volume     // control change 7
	Modulation // control change 1
	PitchWheel
	ProgramChange
	Aftertouch
	ChannelPressure
)

func (k Kind) String() string {
	switch k {
	case NoteOff:
		return "note-off"
	case NoteOn:
		return "note-on"
	case ControlChange:
		return "control-change"
	case Volume:
		return "volume"
	case Modulation:
		return "modulation"
	case PitchWheel:
		return "pitch-wheel"
	case ProgramChange:
		return "program-change"
	case Aftertouch:
		return "aftertouch"
	case ChannelPressure:
		return "channel-pressure"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status nibbles.
const (
	statusNoteOff         = 0x8
	statusNoteOn          = 0x9
	statusAftertouch      = 0xA
	statusControlChange   = 0xB
	statusProgramChange   = 0xC
	statusChannelPressure = 0xD
	statusPitchWheel      = 0xE
)

// Controller numbers given their own kinds.
const (
	ControllerModulation = 0x01
	ControllerVolume     = 0x07
)

const pitchWheelCenter = 1 << 13

// Event is a decoded channel message. Fields not used by Kind are zero.
type Event struct {
	Kind       Kind
	Channel    int
	Note       int
	Velocity   int
	Controller int
	Value      int     // controller value, program, pressure, or raw 14-bit bend
	Bend       float64 // pitch wheel in [-1, 1)
}

func (e Event) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("%v ch=%d note=%d vel=%d", e.Kind, e.Channel, e.Note, e.Velocity)
	case NoteOff, Aftertouch:
		return fmt.Sprintf("%v ch=%d note=%d", e.Kind, e.Channel, e.Note)
	case PitchWheel:
		return fmt.Sprintf("%v ch=%d bend=%.4f", e.Kind, e.Channel, e.Bend)
	case ControlChange, Volume, Modulation:
		return fmt.Sprintf("%v ch=%d cc=%d val=%d", e.Kind, e.Channel, e.Controller, e.Value)
	}
	return fmt.Sprintf("%v ch=%d val=%d", e.Kind, e.Channel, e.Value)
}

// BendValue converts a 14-bit pitch wheel position into [-1, 1).
func BendValue(raw int) float64 {
	return float64(raw-pitchWheelCenter) / pitchWheelCenter
}

// Bytes encodes e as a complete channel message with an explicit status byte.
func (e Event) Bytes() []byte {
	ch := byte(e.Channel & 0x0F)
	switch e.Kind {
	case NoteOn:
		return []byte{statusNoteOn<<4 | ch, byte(e.Note & 0x7F), byte(e.Velocity & 0x7F)}
	case NoteOff:
		return []byte{statusNoteOff<<4 | ch, byte(e.Note & 0x7F), byte(e.Velocity & 0x7F)}
	case Aftertouch:
		return []byte{statusAftertouch<<4 | ch, byte(e.Note & 0x7F), byte(e.Value & 0x7F)}
	case ControlChange, Volume, Modulation:
		cc := e.Controller
		switch e.Kind {
		case Volume:
			cc = ControllerVolume
		case Modulation:
			cc = ControllerModulation
		}
		return []byte{statusControlChange<<4 | ch, byte(cc & 0x7F), byte(e.Value & 0x7F)}
	case ProgramChange:
		return []byte{statusProgramChange<<4 | ch, byte(e.Value & 0x7F)}
	case ChannelPressure:
		return []byte{statusChannelPressure<<4 | ch, byte(e.Value & 0x7F)}
	case PitchWheel:
		raw := e.Value & 0x3FFF
		return []byte{statusPitchWheel<<4 | ch, byte(raw & 0x7F), byte(raw >> 7)}
	}
	return nil
}

// Handler consumes decoded events.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }
