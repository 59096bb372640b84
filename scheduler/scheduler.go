package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-stepseq/pattern"
	"go-stepseq/playback"
	"go-stepseq/transport"
	"go-stepseq/voice"

	"go.uber.org/zap"
)

// TriggerError reports one failed voice trigger. The tick it belongs to
// carries on with the remaining voices.
type TriggerError struct {
	VoiceID string
	Step    int
	Tick    int64
	Err     error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("tick %d step %d voice %q: %v", e.Tick, e.Step, e.VoiceID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// errBuffer is how many errors wait for a reader before new ones are dropped
const errBuffer = 64

// Config for a Scheduler
type Config struct {
	Store     *pattern.Store
	Backend   voice.Backend
	Publisher *playback.Publisher
	Palette   pattern.Palette
	Voices    []string // drum row i plays Voices[i]
	HardMute  bool     // Silence the backend when the clock stops
	Logger    *zap.Logger
}

// Scheduler turns clock ticks into voice triggers. It reads a fresh pattern
// snapshot on every tick and keeps no other state than the last one it read.
type Scheduler struct {
	store     *pattern.Store
	backend   voice.Backend
	publisher *playback.Publisher
	palette   pattern.Palette
	hardMute  bool
	log       *zap.Logger

	voices atomic.Pointer[[]string]
	last   atomic.Pointer[pattern.Pattern]

	errs    chan error
	dropped atomic.Uint64

	mu sync.Mutex // serializes backend calls from ticks and cancellation
}

// New creates a scheduler. Store, Backend and Publisher are required.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Backend == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("scheduler: store, backend and publisher are required")
	}
	if cfg.Palette == nil {
		cfg.Palette = pattern.DefaultPalette
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Scheduler{
		store:     cfg.Store,
		backend:   cfg.Backend,
		publisher: cfg.Publisher,
		palette:   cfg.Palette,
		hardMute:  cfg.HardMute,
		log:       cfg.Logger.Named("scheduler"),
		errs:      make(chan error, errBuffer),
	}
	s.SetVoices(cfg.Voices)
	return s, nil
}

// SetVoices replaces the drum row to voice mapping
func (s *Scheduler) SetVoices(ids []string) {
	ids = append([]string(nil), ids...)
	s.voices.Store(&ids)
}

// Voices returns the drum row to voice mapping
func (s *Scheduler) Voices() []string {
	return append([]string(nil), (*s.voices.Load())...)
}

// Errors delivers trigger failures and anything passed to Report. When
// nobody reads, errors beyond the buffer are dropped and counted.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

// Dropped returns how many errors were discarded on a full channel
func (s *Scheduler) Dropped() uint64 {
	return s.dropped.Load()
}

// Last returns the snapshot read by the most recent tick, or nil
func (s *Scheduler) Last() *pattern.Pattern {
	return s.last.Load()
}

// HandleTick implements transport.Handler
func (s *Scheduler) HandleTick(t transport.Tick) {
	p := s.store.Snapshot()
	s.last.Store(p)

	steps := p.Steps()
	step := int(t.Index % int64(steps))

	s.mu.Lock()
	switch p.Mode() {
	case pattern.ModeMelodic:
		s.melodic(p, step, t)
	default:
		s.drums(p, step, t)
	}
	s.mu.Unlock()

	s.publisher.Publish(playback.Snapshot{
		Step:     step,
		Position: float64(step) / float64(steps),
		Tick:     t.Index,
		At:       t.At,
		Playing:  true,
	})
}

func (s *Scheduler) drums(p *pattern.Pattern, step int, t transport.Tick) {
	voices := *s.voices.Load()
	for row := 0; row < p.Voices(); row++ {
		if !p.Active(row, step) {
			continue
		}
		if row >= len(voices) {
			s.report(&TriggerError{
				VoiceID: fmt.Sprintf("row-%d", row),
				Step:    step,
				Tick:    t.Index,
				Err:     voice.ErrVoiceUnavailable,
			})
			continue
		}
		s.trigger(voice.Trigger{VoiceID: voices[row], Duration: 1, At: t.At}, step, t.Index)
	}
}

func (s *Scheduler) melodic(p *pattern.Pattern, step int, t transport.Tick) {
	for _, n := range p.NotesAt(step) {
		midi, ok := s.palette.MIDI(n.Pitch)
		if !ok {
			s.report(&TriggerError{
				VoiceID: voice.SynthVoiceID,
				Step:    step,
				Tick:    t.Index,
				Err:     fmt.Errorf("pitch %d: %w", n.Pitch, pattern.ErrInvalidIndex),
			})
			continue
		}
		s.trigger(voice.Trigger{
			VoiceID:  voice.SynthVoiceID,
			Pitch:    midi,
			HasPitch: true,
			Duration: n.Duration,
			At:       t.At,
		}, step, t.Index)
	}
}

// trigger isolates one backend call: errors and panics are reported, never
// propagated to the tick.
func (s *Scheduler) trigger(tr voice.Trigger, step int, tick int64) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("backend panic: %v", r)
			}
		}()
		return s.backend.Trigger(tr)
	}()
	if err != nil {
		s.report(&TriggerError{VoiceID: tr.VoiceID, Step: step, Tick: tick, Err: err})
	}
}

func (s *Scheduler) report(err *TriggerError) {
	s.log.Warn("trigger failed",
		zap.String("voice", err.VoiceID),
		zap.Int("step", err.Step),
		zap.Int64("tick", err.Tick),
		zap.Error(err.Err))
	s.Report(err)
}

// Report puts err on the error channel, dropping it when the channel is full
func (s *Scheduler) Report(err error) {
	select {
	case s.errs <- err:
	default:
		s.dropped.Add(1)
	}
}

// CancelAfter implements transport.Canceler. The clock calls it once tick
// generation has stopped.
func (s *Scheduler) CancelAfter(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.backend.(voice.Canceler); ok {
		c.CancelAfter(t)
	}
	if s.hardMute {
		if m, ok := s.backend.(voice.Silencer); ok {
			m.Silence()
		}
	}
	s.log.Debug("cancelled", zap.Time("after", t), zap.Bool("hardMute", s.hardMute))
}
