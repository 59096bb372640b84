package voice

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SynthOptions configures a Synth
type SynthOptions struct {
	SampleRate   int
	Preset       int
	Gate         float64
	MaxVoices    int
	Gain         float64
	StepDuration func() time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// Synth renders triggers into a mono float32 little-endian stream. It is
// an io.Reader meant to be handed to an audio output; the first Read pins
// the stream epoch and every trigger lands on the frame matching its time.
type Synth struct {
	mu     sync.Mutex
	opts   SynthOptions
	preset Preset
	log    *zap.Logger

	kit    map[string]Voice
	voices []*synthVoice
	epoch  time.Time
	frame  int64
	closed bool
}

type synthVoice struct {
	at    time.Time
	start int64 // -1 until placed on the timeline
	gen   generator
}

// NewSynth creates a synth with no kit loaded
func NewSynth(opts SynthOptions) *Synth {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Gate <= 0 || opts.Gate > 1 {
		opts.Gate = 0.8
	}
	if opts.MaxVoices <= 0 {
		opts.MaxVoices = 32
	}
	if opts.Gain <= 0 {
		opts.Gain = 0.4
	}
	if opts.StepDuration == nil {
		opts.StepDuration = func() time.Duration { return 125 * time.Millisecond }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synth{
		opts:   opts,
		preset: GetPreset(opts.Preset),
		log:    opts.Logger.Named("synth"),
		kit:    make(map[string]Voice),
	}
}

// SampleRate returns the output rate in Hz
func (s *Synth) SampleRate() int {
	return s.opts.SampleRate
}

// SetPreset switches the patch used by pitched voices
func (s *Synth) SetPreset(i int) {
	s.mu.Lock()
	s.preset = GetPreset(i)
	s.mu.Unlock()
}

// Preset returns the current patch
func (s *Synth) Preset() Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

func (s *Synth) Load(kit Kit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("load kit %q: synth closed: %w", kit.Name, ErrVoiceUnavailable)
	}
	voices := make(map[string]Voice, len(kit.Voices))
	for _, v := range kit.Voices {
		voices[v.ID] = v
	}
	s.kit = voices
	return nil
}

func (s *Synth) Trigger(t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("trigger %q: synth closed: %w", t.VoiceID, ErrVoiceUnavailable)
	}

	var gen generator
	v, ok := s.kit[t.VoiceID]
	switch {
	case t.HasPitch && (ok || t.VoiceID == SynthVoiceID):
		gen = newToneGen(s.preset, t.Pitch, s.holdFor(t.Duration), s.opts.SampleRate)
	case ok && v.Kind == KindTone:
		gen = newToneGen(s.preset, v.Note, s.holdFor(t.Duration), s.opts.SampleRate)
	case ok:
		gen = newDrumGen(v, s.opts.SampleRate)
	default:
		return fmt.Errorf("trigger %q: %w", t.VoiceID, ErrVoiceUnavailable)
	}

	if len(s.voices) >= s.opts.MaxVoices {
		// steal the oldest
		s.voices = s.voices[1:]
	}
	s.voices = append(s.voices, &synthVoice{at: t.At, start: -1, gen: gen})
	s.log.Debug("trigger", zap.String("voice", t.VoiceID), zap.Time("at", t.At))
	return nil
}

func (s *Synth) holdFor(steps int) float64 {
	return noteLength(steps, s.opts.StepDuration(), s.opts.Gate).Seconds()
}

// CancelAfter drops voices due after t that have not started sounding
func (s *Synth) CancelAfter(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.voices[:0]
	for _, v := range s.voices {
		if v.at.After(t) && (v.start < 0 || v.start >= s.frame) {
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(s.voices); i++ {
		s.voices[i] = nil
	}
	s.voices = kept
}

// Silence drops every voice, sounding or not
func (s *Synth) Silence() {
	s.mu.Lock()
	s.voices = nil
	s.mu.Unlock()
}

// Active returns how many voices are queued or sounding
func (s *Synth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func (s *Synth) Close() error {
	s.mu.Lock()
	s.closed = true
	s.voices = nil
	s.mu.Unlock()
	return nil
}

// Read fills p with float32 samples. It never fails; after Close it
// returns silence.
func (s *Synth) Read(p []byte) (int, error) {
	frames := len(p) / 4

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch.IsZero() {
		s.epoch = s.opts.Now()
	}
	s.place()

	for i := 0; i < frames; i++ {
		f := s.frame + int64(i)
		var mix float64
		for _, v := range s.voices {
			if v.gen == nil || f < v.start {
				continue
			}
			x, ok := v.gen.next()
			if !ok {
				v.gen = nil
				continue
			}
			mix += x
		}
		mix *= s.opts.Gain
		if mix > 1 {
			mix = 1
		} else if mix < -1 {
			mix = -1
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(float32(mix)))
	}
	s.frame += int64(frames)

	live := s.voices[:0]
	for _, v := range s.voices {
		if v.gen != nil {
			live = append(live, v)
		}
	}
	s.voices = live

	return frames * 4, nil
}

// place maps trigger times to frames. Late triggers start at the current frame.
func (s *Synth) place() {
	rate := float64(s.opts.SampleRate)
	for _, v := range s.voices {
		if v.start >= 0 {
			continue
		}
		start := int64(math.Round(v.at.Sub(s.epoch).Seconds() * rate))
		if start < s.frame {
			start = s.frame
		}
		v.start = start
	}
}
