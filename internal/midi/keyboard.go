package midi

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/term"
)

// Two-row piano layout: the home row plays white keys from C, the row above
// plays the sharps.
var keyOffsets = map[byte]int{
	'a': 0, 'w': 1, 's': 2, 'e': 3, 'd': 4, 'f': 5, 't': 6,
	'g': 7, 'y': 8, 'h': 9, 'u': 10, 'j': 11, 'k': 12, 'o': 13, 'l': 14,
}

const (
	keyboardBaseNote = 60
	keyboardVelocity = 100
	// DefaultKeyHold is how long a key sounds: terminals report presses,
	// never releases.
	DefaultKeyHold = 300 * time.Millisecond
)

// KeyboardPort turns a computer keyboard into a MIDI port. Letter keys play
// notes, z and x shift the octave, and Ctrl-C, Esc or q end the stream.
type KeyboardPort struct {
	q       *queue
	in      io.Reader
	channel int
	hold    time.Duration

	mu     sync.Mutex
	octave int
	timers map[int]*time.Timer
	ended  bool

	fd      int
	restore *term.State
}

// NewKeyboardPort puts stdin into raw mode (when it is a terminal) and starts
// reading keys. Close restores the terminal.
func NewKeyboardPort(channel int, hold time.Duration) (*KeyboardPort, error) {
	k := newKeyboardPort(os.Stdin, channel, hold)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		st, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("midi: raw mode: %w", err)
		}
		k.fd = fd
		k.restore = st
	}
	go k.read()
	return k, nil
}

func newKeyboardPort(in io.Reader, channel int, hold time.Duration) *KeyboardPort {
	if hold <= 0 {
		hold = DefaultKeyHold
	}
	return &KeyboardPort{
		q:       newQueue(),
		in:      in,
		channel: channel & 0x0F,
		hold:    hold,
		timers:  make(map[int]*time.Timer),
	}
}

func (k *KeyboardPort) read() {
	buf := make([]byte, 1)
	for {
		n, err := k.in.Read(buf)
		if n == 1 && !k.key(buf[0]) {
			err = io.EOF
		}
		if err != nil {
			k.releaseAll()
			k.q.fail(err)
			return
		}
	}
}

// key handles one keystroke and reports false when it ends the stream.
func (k *KeyboardPort) key(b byte) bool {
	switch b {
	case 0x03, 0x1B, 'q':
		return false
	case 'z':
		k.shift(-1)
		return true
	case 'x':
		k.shift(1)
		return true
	}
	off, ok := keyOffsets[b]
	if !ok {
		return true
	}
	k.mu.Lock()
	note := keyboardBaseNote + 12*k.octave + off
	k.mu.Unlock()
	if note < 0 || note > 127 {
		return true
	}
	k.press(note)
	return true
}

func (k *KeyboardPort) shift(d int) {
	k.mu.Lock()
	k.octave = min(max(k.octave+d, -4), 4)
	k.mu.Unlock()
}

func (k *KeyboardPort) press(note int) {
	on := Event{Kind: NoteOn, Channel: k.channel, Note: note, Velocity: keyboardVelocity}
	if !k.q.push(on.Bytes()) {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.timers[note]; ok {
		t.Reset(k.hold)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(k.hold, func() { k.release(note, t) })
	k.timers[note] = t
}

// release sends the note-off for a hold timer unless releaseAll or a newer
// timer has taken over the note. The push happens under k.mu so it is
// queued before releaseAll returns and the stream is failed.
func (k *KeyboardPort) release(note int, t *time.Timer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ended || k.timers[note] != t {
		return
	}
	delete(k.timers, note)
	k.noteOff(note)
}

// releaseAll ends every held note at once. Hold timers firing afterwards do
// nothing.
func (k *KeyboardPort) releaseAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ended = true
	notes := make([]int, 0, len(k.timers))
	for note, t := range k.timers {
		t.Stop()
		delete(k.timers, note)
		notes = append(notes, note)
	}
	slices.Sort(notes)
	for _, note := range notes {
		k.noteOff(note)
	}
}

func (k *KeyboardPort) noteOff(note int) {
	off := Event{Kind: NoteOff, Channel: k.channel, Note: note}
	k.q.push(off.Bytes())
}

func (k *KeyboardPort) Poll(dst []byte) (int, error) { return k.q.poll(dst) }

// Close stops pending note-offs and restores the terminal state.
func (k *KeyboardPort) Close() error {
	k.q.close()
	k.mu.Lock()
	k.ended = true
	for note, t := range k.timers {
		t.Stop()
		delete(k.timers, note)
	}
	k.mu.Unlock()
	if k.restore != nil {
		st := k.restore
		k.restore = nil
		return term.Restore(k.fd, st)
	}
	return nil
}
