// Package wavesynth is a real-time polyphonic sample synthesizer: it loads a
// PCM WAV recording, plays it back across the keyboard through a pool of
// enveloped voices, and takes its notes from MIDI byte streams.
package wavesynth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	intaudio "github.com/cbegin/wavesynth-go/internal/audio"
	intfx "github.com/cbegin/wavesynth-go/internal/effects"
	intmidi "github.com/cbegin/wavesynth-go/internal/midi"
	intres "github.com/cbegin/wavesynth-go/internal/resample"
	intwav "github.com/cbegin/wavesynth-go/internal/wav"
	intwt "github.com/cbegin/wavesynth-go/internal/wavetable"
)

// ErrClosed is returned by operations on a closed Player.
var ErrClosed = errors.New("wavesynth: player closed")

// OutputFunc opens a sound sink that pulls mono samples from src.
type OutputFunc func(sampleRate int, src intaudio.SampleSource) (intaudio.Output, error)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	params       intwt.Params
	normalize    bool
	normalizeDB  float64
	backend      intaudio.Backend
	output       OutputFunc
	effects      []string
	sampleTap    func([]float32)
	logger       *slog.Logger
	pollInterval time.Duration
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		params:       intwt.DefaultParams(),
		backend:      intaudio.BackendEbiten,
		logger:       slog.New(slog.DiscardHandler),
		pollInterval: intmidi.DefaultPollInterval,
	}
}

// WithVoices sets the voice pool capacity.
func WithVoices(n int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Voices = n
	}
}

// WithChannel selects which channel of a multichannel sample is played.
func WithChannel(ch int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Channel = ch
	}
}

// WithLoop sets the sustain loop region in frames. end <= begin disables
// looping.
func WithLoop(begin, end int) PlayerOption {
	return func(cfg *playerConfig) {
		if end <= begin {
			cfg.params.Loop = nil
			return
		}
		cfg.params.Loop = &intres.Loop{Begin: begin, End: end}
	}
}

// WithEnvelope sets the ADSR times in seconds and the sustain level.
func WithEnvelope(attack, decay, sustain, release float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.AttackSec = attack
		cfg.params.DecaySec = decay
		cfg.params.SustainLvl = sustain
		cfg.params.ReleaseSec = release
	}
}

// WithRootNote sets the MIDI note that plays the sample at its recorded pitch.
func WithRootNote(note int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.RootNote = note
	}
}

// WithBaseSpeed scales the playback rate of every note.
func WithBaseSpeed(speed float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.BaseSpeed = speed
	}
}

// WithPitchBendRange sets the full-scale pitch wheel bend in cents.
func WithPitchBendRange(cents float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.PitchBendCents = cents
	}
}

// WithVibrato sets the vibrato rate and its depth at full modulation.
func WithVibrato(rateHz, depthCents float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.VibratoRateHz = rateHz
		cfg.params.VibratoDepthCents = depthCents
	}
}

// WithVelocitySensitivity sets how much note velocity scales voice gain,
// from 0 (none) to 1.
func WithVelocitySensitivity(s float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.VelocityAmp = s
	}
}

// WithNormalize removes DC offset and rescales the sample to peak at db
// decibels full scale before playback.
func WithNormalize(db float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.normalize = true
		cfg.normalizeDB = db
	}
}

// WithBackend selects the audio device backend.
func WithBackend(b intaudio.Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

// WithOutput replaces the audio device with a custom sink.
func WithOutput(open OutputFunc) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.output = open
	}
}

// WithEffects adds master effects, each written as "type p1,p2,...".
// Supported types: delay, comp (compressor), dist (distortion), clip (hard clipper).
func WithEffects(specs ...string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.effects = append(cfg.effects, specs...)
	}
}

// WithSampleTap installs a callback invoked with each generated mono buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

func WithLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithPollRate sets how often an idle MIDI port is polled.
func WithPollRate(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.pollInterval = d
	}
}

// LoadSample decodes a WAV file.
func LoadSample(path string) (*intwav.Buffer, error) {
	return intwav.DecodeFile(path)
}

// master is the render-thread source: engine mix, master effects, master
// volume and the sample tap.
type master struct {
	engine  *intwt.Engine
	effects *intfx.Chain
	volume  atomic.Uint64
	tap     func([]float32)
}

func (m *master) Process(dst []float32) {
	m.engine.Render(dst)
	if m.effects != nil {
		m.effects.ProcessBlock(dst)
	}
	if v := m.gain(); v != 1 {
		g := float32(v)
		for i := range dst {
			dst[i] *= g
		}
	}
	if m.tap != nil {
		m.tap(dst)
	}
}

func (m *master) gain() float64 {
	return math.Float64frombits(m.volume.Load())
}

func (m *master) setGain(v float64) {
	m.volume.Store(math.Float64bits(v))
}

type Player struct {
	mu         sync.Mutex
	logger     *slog.Logger
	buf        *intwav.Buffer
	engine     *intwt.Engine
	master     *master
	backend    intaudio.Backend
	openOutput OutputFunc
	poll       time.Duration

	out     intaudio.Output
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	ports   []intmidi.Port
	sources []*intmidi.Source
	closed  bool
}

// Open loads the WAV file at path and builds a Player for it.
func Open(path string, opts ...PlayerOption) (*Player, error) {
	buf, err := LoadSample(path)
	if err != nil {
		return nil, err
	}
	return New(buf, opts...)
}

// New builds a Player around an already decoded sample. No device is opened
// until Start.
func New(buf *intwav.Buffer, opts ...PlayerOption) (*Player, error) {
	if buf == nil {
		return nil, errors.New("wavesynth: nil sample buffer")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	m, buf, err := newMaster(buf, cfg)
	if err != nil {
		return nil, err
	}
	cfg.logger.Info("sample loaded",
		"frames", buf.Frames(),
		"channels", buf.Channels(),
		"rate", buf.SampleRate(),
		"duration", buf.Duration(),
		"voices", cfg.params.Voices)
	return &Player{
		logger:     cfg.logger,
		buf:        buf,
		engine:     m.engine,
		master:     m,
		backend:    cfg.backend,
		openOutput: cfg.output,
		poll:       cfg.pollInterval,
	}, nil
}

func newMaster(buf *intwav.Buffer, cfg playerConfig) (*master, *intwav.Buffer, error) {
	if cfg.normalize {
		buf = intwav.Normalize(buf, cfg.normalizeDB)
	}
	engine, err := intwt.New(buf, cfg.params)
	if err != nil {
		return nil, nil, err
	}
	chain, err := buildEffectChain(cfg.effects, buf.SampleRate())
	if err != nil {
		return nil, nil, err
	}
	m := &master{engine: engine, effects: chain, tap: cfg.sampleTap}
	m.setGain(1)
	return m, buf, nil
}

// Sample returns the buffer being played, after any normalization.
func (p *Player) Sample() *intwav.Buffer { return p.buf }

func (p *Player) SampleRate() int { return p.buf.SampleRate() }

// Start opens the output device and begins rendering. Ports attached with
// Listen run until ctx is cancelled or Close is called.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.out != nil {
		return errors.New("wavesynth: already started")
	}
	open := p.openOutput
	if open == nil {
		backend := p.backend
		open = func(rate int, src intaudio.SampleSource) (intaudio.Output, error) {
			return intaudio.Open(backend, rate, src)
		}
	}
	out, err := open(p.buf.SampleRate(), p.master)
	if err != nil {
		return fmt.Errorf("wavesynth: open output: %w", err)
	}
	p.out = out
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group, p.ctx = errgroup.WithContext(p.ctx)
	p.out.Play()
	p.logger.Info("playback started", "backend", p.backend, "rate", p.buf.SampleRate())
	return nil
}

// Listen attaches a MIDI port. Its events are delivered to the engine on a
// dedicated goroutine until the port ends, playback stops, or the port
// fails; a port failure stops the Player and is returned by Wait.
func (p *Player) Listen(port intmidi.Port, name string) (*intmidi.Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.group == nil {
		return nil, errors.New("wavesynth: Listen before Start")
	}
	src := intmidi.NewSource(port, p.engine, intmidi.WithPollInterval(p.poll))
	p.ports = append(p.ports, port)
	p.sources = append(p.sources, src)
	ctx := p.ctx
	logger := p.logger.With("port", name)
	p.group.Go(func() error {
		logger.Info("port attached")
		err := src.Run(ctx)
		logger.Info("port detached", "events", src.Events(), "dropped", src.Dropped())
		if err != nil {
			logger.Error("port failed", "err", err)
			return fmt.Errorf("port %s: %w", name, err)
		}
		return nil
	})
	return src, nil
}

// PauseInput stops every attached port from delivering events without
// detaching it.
func (p *Player) PauseInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sources {
		s.Pause()
	}
}

// ResumeInput undoes PauseInput.
func (p *Player) ResumeInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sources {
		s.Resume()
	}
}

// HandleEvent feeds one decoded MIDI event to the engine.
func (p *Player) HandleEvent(ev intmidi.Event) {
	p.engine.HandleEvent(ev)
}

func (p *Player) NoteOn(channel, note, velocity int) { p.engine.NoteOn(channel, note, velocity) }
func (p *Player) NoteOff(channel, note int)          { p.engine.NoteOff(channel, note) }

// ActiveVoices returns the number of voices currently sounding.
func (p *Player) ActiveVoices() int { return p.engine.ActiveVoiceCount() }

// Wait blocks until every attached port has finished and returns the first
// port error. It returns immediately if the Player was never started.
func (p *Player) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Close stops the ports, the output and the engine. It is safe to call more
// than once.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, g, out, ports := p.cancel, p.group, p.out, p.ports
	p.out = nil
	p.ports = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, port := range ports {
		if err := port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close port: %w", err))
		}
	}
	if g != nil {
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if out != nil {
		if err := out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	p.engine.Close()
	p.logger.Info("player closed")
	return errors.Join(errs...)
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.master.setGain(volume)
}

func (p *Player) MasterVolume() float64 {
	return p.master.gain()
}

// buildEffectChain parses effect specs of the form "type p1,p2,...".
// Missing parameters take defaults.
func buildEffectChain(specs []string, sampleRate int) (*intfx.Chain, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	chain := intfx.NewChain()
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, " ", 2)
		effectType := strings.ToLower(strings.TrimSpace(parts[0]))
		var params []float64
		if len(parts) > 1 {
			for _, s := range strings.Split(parts[1], ",") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("wavesynth: effect %q: %w", raw, err)
				}
				params = append(params, v)
			}
		}
		eff := createEffect(effectType, params, sampleRate)
		if eff == nil {
			return nil, fmt.Errorf("wavesynth: unknown effect %q", effectType)
		}
		chain.Add(eff)
	}
	if chain.Len() == 0 {
		return nil, nil
	}
	return chain, nil
}

func createEffect(effectType string, params []float64, sampleRate int) intfx.Effector {
	getParam := func(idx int, def float64) float64 {
		if idx < len(params) {
			return params[idx]
		}
		return def
	}
	switch effectType {
	case "delay":
		return intfx.NewDelay(sampleRate,
			getParam(0, 250),          // delay ms
			float32(getParam(1, 0.4)), // feedback
			float32(getParam(2, 0.3)), // wet
		)
	case "dist", "distortion":
		return intfx.NewDistortion(sampleRate,
			float32(getParam(0, 4)),    // pre gain
			float32(getParam(1, 0.5)),  // post gain
			float32(getParam(2, 8000)), // lpf cutoff
		)
	case "clip":
		return intfx.NewDistortion(sampleRate,
			float32(getParam(0, 1)), // drive
			float32(getParam(1, 1)), // level
			float32(getParam(2, 0)), // tone cutoff
		).WithCurve(intfx.CurveHard)
	case "comp", "compressor":
		return intfx.NewCompressor(sampleRate,
			float32(getParam(0, -20)), // threshold dB
			float32(getParam(1, 4)),   // ratio
			float32(getParam(2, 5)),   // attack ms
			float32(getParam(3, 100)), // release ms
			float32(getParam(4, 6)),   // makeup dB
		)
	}
	return nil
}
