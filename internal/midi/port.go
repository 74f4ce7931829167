package midi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrPortClosed is returned by Poll after Close.
var ErrPortClosed = errors.New("midi: port closed")

// Port is a raw MIDI byte source. Poll copies whatever bytes are ready into
// dst without blocking and returns 0 when nothing is pending. Once the
// underlying device is exhausted Poll drains the remaining bytes and then
// returns the terminal error (io.EOF for a clean end).
type Port interface {
	Poll(dst []byte) (int, error)
	Close() error
}

const queueDepth = 64

// queue hands byte chunks from a producer goroutine to the polling side.
type queue struct {
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	pending []byte
}

func newQueue() *queue {
	return &queue{ch: make(chan []byte, queueDepth), done: make(chan struct{})}
}

// push reports false once the queue is closed.
func (q *queue) push(p []byte) bool {
	select {
	case q.ch <- p:
		return true
	case <-q.done:
		return false
	}
}

func (q *queue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
}

func (q *queue) failure() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *queue) poll(dst []byte) (int, error) {
	if len(q.pending) == 0 {
		// Read the error first: everything pushed before fail is already
		// buffered, so an empty channel after a failure means fully drained.
		err := q.failure()
		select {
		case p := <-q.ch:
			q.pending = p
		default:
			return 0, err
		}
	}
	n := copy(dst, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *queue) close() {
	q.once.Do(func() {
		q.fail(ErrPortClosed)
		close(q.done)
	})
}

// ReaderPort adapts a blocking byte stream, such as a raw MIDI character
// device, to Port. A goroutine reads the stream and queues what it gets.
type ReaderPort struct {
	q *queue
	r io.Reader
}

// NewReaderPort starts reading r in the background.
func NewReaderPort(r io.Reader) *ReaderPort {
	p := &ReaderPort{q: newQueue(), r: r}
	go p.read()
	return p
}

// OpenDevice opens a raw MIDI device node (for example /dev/snd/midiC1D0)
// or any file holding a MIDI byte stream.
func OpenDevice(path string) (*ReaderPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("midi: open device: %w", err)
	}
	return NewReaderPort(f), nil
}

func (p *ReaderPort) read() {
	buf := make([]byte, 256)
	for {
		n, err := p.r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !p.q.push(chunk) {
				return
			}
		}
		if err != nil {
			p.q.fail(err)
			return
		}
	}
}

func (p *ReaderPort) Poll(dst []byte) (int, error) { return p.q.poll(dst) }

// Close stops queueing and closes the stream if it is an io.Closer.
func (p *ReaderPort) Close() error {
	p.q.close()
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
