package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/cbegin/wavesynth-go"
	intaudio "github.com/cbegin/wavesynth-go/internal/audio"
	intmidi "github.com/cbegin/wavesynth-go/internal/midi"
)

const defaultNotes = "60,64,67,72"

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, "; ") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var (
		samplePath = flag.String("sample", "", "path to a PCM WAV sample (required)")
		device     = flag.String("device", "", "raw MIDI device or byte stream file, e.g. /dev/snd/midiC1D0")
		keyboard   = flag.Bool("keyboard", false, "play from the computer keyboard (default when no -device)")
		backend    = flag.String("backend", "ebiten", "audio backend: ebiten|oto")
		voices     = flag.Int("voices", 16, "maximum simultaneous notes")
		channel    = flag.Int("channel", 0, "sample channel to play")
		loopBegin  = flag.Int("loop-begin", 0, "sustain loop start frame")
		loopEnd    = flag.Int("loop-end", 0, "sustain loop end frame (0 = no loop)")
		attack     = flag.Float64("attack", 0.005, "attack seconds")
		decay      = flag.Float64("decay", 0.12, "decay seconds")
		sustain    = flag.Float64("sustain", 0.75, "sustain level 0..1")
		release    = flag.Float64("release", 0.2, "release seconds")
		root       = flag.Int("root", 69, "MIDI note that plays the sample at its recorded pitch")
		speed      = flag.Float64("speed", 1, "base playback speed of the root note")
		bend       = flag.Float64("bend", 200, "pitch wheel range in cents")
		vibRate    = flag.Float64("vibrato-rate", 5, "vibrato rate in Hz")
		vibDepth   = flag.Float64("vibrato-depth", 50, "vibrato depth in cents at full modulation")
		velocity   = flag.Float64("velocity", 0, "velocity sensitivity 0..1")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		normalize  = flag.Float64("normalize", math.NaN(), "normalize the sample peak to this dBFS before playing")
		render     = flag.String("render", "", "render offline to this WAV file instead of playing")
		notes      = flag.String("notes", defaultNotes, "comma-separated notes for -render")
		step       = flag.Duration("step", 500*time.Millisecond, "time between notes for -render")
		hold       = flag.Duration("hold", 400*time.Millisecond, "note length for -render and -keyboard")
		seconds    = flag.Float64("seconds", 0, "length of -render (0 = fit the notes)")
		bits       = flag.Int("bits", 16, "bit depth of -render: 8|16")
		verbose    = flag.Bool("v", false, "debug logging")
		effects    multiFlag
	)
	flag.Var(&effects, "fx", `master effect "type p1,p2,..." (delay|comp|dist|clip); repeatable`)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *samplePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	be, err := parseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}

	opts := []wavesynth.PlayerOption{
		wavesynth.WithLogger(logger),
		wavesynth.WithBackend(be),
		wavesynth.WithVoices(*voices),
		wavesynth.WithChannel(*channel),
		wavesynth.WithLoop(*loopBegin, *loopEnd),
		wavesynth.WithEnvelope(*attack, *decay, *sustain, *release),
		wavesynth.WithRootNote(*root),
		wavesynth.WithBaseSpeed(*speed),
		wavesynth.WithPitchBendRange(*bend),
		wavesynth.WithVibrato(*vibRate, *vibDepth),
		wavesynth.WithVelocitySensitivity(*velocity),
		wavesynth.WithEffects(effects...),
	}
	if !math.IsNaN(*normalize) {
		opts = append(opts, wavesynth.WithNormalize(*normalize))
	}

	buf, err := wavesynth.LoadSample(*samplePath)
	if err != nil {
		log.Fatal(err)
	}
	report(*samplePath, buf.Frames(), buf.SampleRate(), buf.Channels(), buf.Duration())

	if *render != "" {
		noteList, err := parseNotes(*notes)
		if err != nil {
			log.Fatal(err)
		}
		events := wavesynth.Notes(0, 100, *step, *hold, noteList...)
		length := *seconds
		if length <= 0 {
			end := time.Duration(len(noteList)-1)*(*step) + *hold
			length = (end + time.Duration(*release*float64(time.Second)) + 100*time.Millisecond).Seconds()
		}
		samples, err := wavesynth.RenderEvents(buf, events, length, opts...)
		if err != nil {
			log.Fatal(err)
		}
		for i := range samples {
			samples[i] *= float32(*volume)
		}
		if err := wavesynth.WriteWAV(*render, samples, buf.SampleRate(), *bits); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("rendered %s to %s\n",
			durafmt.Parse(time.Duration(length*float64(time.Second))).LimitFirstN(2), *render)
		return
	}

	pl, err := wavesynth.New(buf, opts...)
	if err != nil {
		log.Fatal(err)
	}
	pl.SetMasterVolume(*volume)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := pl.Start(ctx); err != nil {
		log.Fatal(err)
	}

	if *device != "" {
		port, err := intmidi.OpenDevice(*device)
		if err != nil {
			pl.Close()
			log.Fatal(err)
		}
		if _, err := pl.Listen(port, *device); err != nil {
			pl.Close()
			log.Fatal(err)
		}
	}
	if *keyboard || *device == "" {
		port, err := intmidi.NewKeyboardPort(0, *hold)
		if err != nil {
			pl.Close()
			log.Fatal(err)
		}
		if _, err := pl.Listen(port, "keyboard"); err != nil {
			pl.Close()
			log.Fatal(err)
		}
		fmt.Fprint(os.Stderr, "keys a-l play, w e t y u o sharps, z/x octave, q quits\r\n")
	}

	waitErr := pl.Wait()
	if err := pl.Close(); err != nil && waitErr == nil {
		waitErr = err
	}
	if waitErr != nil {
		log.Fatal(waitErr)
	}
}

func report(path string, frames, rate, channels int, length time.Duration) {
	size := "?"
	if st, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	fmt.Printf("%s: %s, %s, %s frames, %d Hz, %d ch\n",
		path, size, durafmt.Parse(length).LimitFirstN(2), humanize.Comma(int64(frames)), rate, channels)
}

func parseBackend(name string) (intaudio.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ebiten":
		return intaudio.BackendEbiten, nil
	case "oto":
		return intaudio.BackendOto, nil
	default:
		return "", fmt.Errorf("invalid -backend %q (expected ebiten|oto)", name)
	}
}

func parseNotes(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 127 {
			return nil, fmt.Errorf("invalid note %q in -notes", f)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("-notes is empty")
	}
	return out, nil
}
