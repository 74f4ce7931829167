package midi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval paces polling while the port has nothing to deliver.
const DefaultPollInterval = time.Millisecond

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithPollInterval sets how long Run waits between polls of an idle port.
func WithPollInterval(d time.Duration) SourceOption {
	return func(s *Source) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Source is the event thread: it polls a Port, decodes the bytes and hands
// each event to a Handler. Handler calls happen on the goroutine running Run.
type Source struct {
	port     Port
	handler  Handler
	parser   Parser
	interval time.Duration
	limiter  *rate.Limiter
	paused   atomic.Bool
	events   atomic.Uint64
	dropped  atomic.Uint64
}

// NewSource binds port to h. The source starts unpaused but does nothing
// until Run is called.
func NewSource(port Port, h Handler, opts ...SourceOption) *Source {
	s := &Source{port: port, handler: h, interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = rate.NewLimiter(rate.Every(s.interval), 1)
	return s
}

// Pause stops delivering events. Bytes keep being read and decoded so the
// parser stays in step with the stream, but the events are discarded.
func (s *Source) Pause() { s.paused.Store(true) }

// Resume restarts delivery after Pause.
func (s *Source) Resume() { s.paused.Store(false) }

func (s *Source) Paused() bool { return s.paused.Load() }

// Events is the number of events delivered so far.
func (s *Source) Events() uint64 { return s.events.Load() }

// Dropped is the number of events discarded while paused.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Run polls until ctx is cancelled or the port ends. A clean end of stream
// (io.EOF) and cancellation return nil; other port errors are returned.
func (s *Source) Run(ctx context.Context) error {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.port.Poll(buf)
		for _, b := range buf[:n] {
			ev, ok := s.parser.Feed(b)
			if !ok {
				continue
			}
			if s.paused.Load() {
				s.dropped.Add(1)
				continue
			}
			s.events.Add(1)
			s.handler.HandleEvent(ev)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrPortClosed) {
				return nil
			}
			return fmt.Errorf("midi: poll: %w", err)
		}
		if n == 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
	}
}
