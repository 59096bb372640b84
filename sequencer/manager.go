package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go-stepseq/config"
	"go-stepseq/pattern"
	"go-stepseq/playback"
	"go-stepseq/scheduler"
	"go-stepseq/transport"
	"go-stepseq/voice"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Tempo limits for nudges from the UI and controllers. OnTempoChange
// accepts any positive tempo.
const (
	MinTempo = 20
	MaxTempo = 300
)

var ErrClosed = errors.New("sequencer closed")

// Options configure a Manager
type Options struct {
	Mode         pattern.Mode
	Steps        int
	Voices       int // drum rows; melodic mode uses one row per palette note
	BPM          float64
	Subdivisions int
	Lookahead    time.Duration
	DispatchLead time.Duration
	Kit          string
	Palette      pattern.Palette
	HardMute     bool
	Logger       *zap.Logger
}

// OptionsFromConfig maps a loaded config onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:         pattern.Mode(cfg.Mode),
		Steps:        cfg.StepsLength,
		Voices:       cfg.VoiceCount,
		BPM:          cfg.BPM,
		Subdivisions: cfg.SubdivisionsPerBeat,
		Lookahead:    cfg.Lookahead(),
		DispatchLead: cfg.DispatchLead(),
		Kit:          cfg.Kit,
		HardMute:     cfg.HardMuteOnStop,
	}
}

// State is what the UI shows in its header
type State struct {
	Mode    pattern.Mode
	Playing bool
	Tempo   float64
	Steps   int
	Voices  int
	Step    int // -1 when stopped
	Kit     string
}

// Manager wires the pattern store, clock, scheduler and publisher to one
// voice backend. It owns the backend and anything added with Own.
type Manager struct {
	store   *pattern.Store
	clock   *transport.Clock
	sched   *scheduler.Scheduler
	pub     *playback.Publisher
	backend voice.Backend
	palette pattern.Palette
	log     *zap.Logger

	mu      sync.Mutex
	kit     voice.Kit
	cursor  int // edit step for controllers and keyboards
	noteLen int // duration used for note entry
	owned   []io.Closer
	closed  bool

	surfaceMu sync.Mutex
	surfaces  map[string]*surface
}

// NewManager builds the engine around backend and loads the configured kit.
// The clock starts stopped.
func NewManager(opts Options, backend voice.Backend) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("new manager: nil backend")
	}
	if opts.Mode == "" {
		opts.Mode = pattern.ModeDrum
	}
	if opts.Palette == nil {
		opts.Palette = pattern.DefaultPalette
	}
	if opts.Kit == "" {
		opts.Kit = voice.DefaultKit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	voices := opts.Voices
	if opts.Mode == pattern.ModeMelodic {
		voices = len(opts.Palette)
	}

	store, err := pattern.NewStore(opts.Mode, opts.Steps, voices)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:    store,
		pub:      playback.NewPublisher(),
		backend:  backend,
		palette:  opts.Palette,
		log:      opts.Logger.Named("manager"),
		noteLen:  1,
		surfaces: make(map[string]*surface),
	}

	m.sched, err = scheduler.New(scheduler.Config{
		Store:     store,
		Backend:   backend,
		Publisher: m.pub,
		Palette:   opts.Palette,
		HardMute:  opts.HardMute,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	m.clock, err = transport.New(transport.Config{
		BPM:          opts.BPM,
		Subdivisions: opts.Subdivisions,
		Steps:        opts.Steps,
		Lookahead:    opts.Lookahead,
		DispatchLead: opts.DispatchLead,
		Logger:       opts.Logger,
	}, m.sched)
	if err != nil {
		return nil, err
	}

	if err := m.LoadKit(opts.Kit); err != nil {
		return nil, err
	}
	return m, nil
}

// Own hands c to the manager, which closes it after the backend
func (m *Manager) Own(c io.Closer) {
	m.mu.Lock()
	m.owned = append(m.owned, c)
	m.mu.Unlock()
}

// report puts a rejected intent on the error channel and returns it
func (m *Manager) report(err error) error {
	if err != nil {
		m.log.Debug("rejected", zap.Error(err))
		m.sched.Report(err)
	}
	return err
}

// OnCellToggle flips a drum cell
func (m *Manager) OnCellToggle(voiceIdx, step int) error {
	return m.report(m.store.Toggle(voiceIdx, step))
}

// OnNoteToggle adds or removes a note in melodic mode
func (m *Manager) OnNoteToggle(step, pitch, duration int) error {
	return m.report(m.store.ToggleNote(step, pitch, duration))
}

// ClearRow turns off every step of one voice
func (m *Manager) ClearRow(voiceIdx int) error {
	return m.report(m.store.ClearRow(voiceIdx))
}

// Clear empties the pattern
func (m *Manager) Clear() {
	m.store.Clear()
}

// OnTempoChange sets the tempo. Invalid tempos keep the previous one.
func (m *Manager) OnTempoChange(bpm float64) error {
	return m.report(m.clock.SetTempo(bpm))
}

// NudgeTempo moves the tempo by delta, clamped to MinTempo..MaxTempo
func (m *Manager) NudgeTempo(delta float64) error {
	bpm := m.clock.Tempo() + delta
	if bpm < MinTempo {
		bpm = MinTempo
	}
	if bpm > MaxTempo {
		bpm = MaxTempo
	}
	return m.OnTempoChange(bpm)
}

// OnPlayToggle starts a stopped sequencer and stops a running one. It
// returns whether the sequencer is now playing.
func (m *Manager) OnPlayToggle() bool {
	if m.clock.Running() {
		m.Stop()
		return false
	}
	return m.Play() == nil
}

// Play starts from step 0. Calling it while playing does nothing.
func (m *Manager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.clock.Start(); err != nil && !errors.Is(err, transport.ErrAlreadyRunning) {
		return err
	}
	m.log.Info("play", zap.Float64("bpm", m.clock.Tempo()))
	return nil
}

// Stop halts playback and rewinds. Triggers scheduled past the stop instant
// are cancelled; with hard mute sounding voices are cut too.
func (m *Manager) Stop() {
	if err := m.clock.Stop(); err != nil {
		return
	}
	m.pub.Reset()
	m.log.Info("stop")
}

// Playing reports whether the clock is running
func (m *Manager) Playing() bool {
	return m.clock.Running()
}

// Tempo returns the current bpm
func (m *Manager) Tempo() float64 {
	return m.clock.Tempo()
}

// StepDuration is the length of one step at the current tempo
func (m *Manager) StepDuration() time.Duration {
	return m.clock.StepDuration()
}

// Resize changes the pattern dimensions, keeping overlapping cells, and
// restarts a running clock with the new loop length. In melodic mode the
// row count is fixed by the palette and voices is ignored.
func (m *Manager) Resize(steps, voices int) error {
	p := m.store.Snapshot()
	if p.Mode() == pattern.ModeMelodic {
		voices = p.Voices()
	}
	if err := m.store.Resize(steps, voices); err != nil {
		return m.report(err)
	}
	if err := m.clock.Reconfigure(steps); err != nil {
		return m.report(err)
	}

	m.mu.Lock()
	if m.cursor >= steps {
		m.cursor = steps - 1
	}
	name := m.kit.Name
	m.mu.Unlock()

	if voices != p.Voices() && p.Mode() == pattern.ModeDrum {
		return m.loadKit(name, voices)
	}
	return nil
}

// SetSteps changes only the loop length
func (m *Manager) SetSteps(steps int) error {
	return m.Resize(steps, m.store.Snapshot().Voices())
}

// LoadKit switches the drum kit. The backend releases the old voices and
// loads the first Voices() of the new kit.
func (m *Manager) LoadKit(name string) error {
	return m.loadKit(name, m.store.Snapshot().Voices())
}

func (m *Manager) loadKit(name string, rows int) error {
	if !voice.HasKit(name) {
		return m.report(fmt.Errorf("load kit %q: %w", name, voice.ErrVoiceUnavailable))
	}
	kit := voice.GetKit(name).Truncate(rows)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.backend.Load(kit); err != nil {
		return m.report(fmt.Errorf("load kit %q: %w", name, err))
	}
	m.kit = kit
	m.kit.Name = name
	m.sched.SetVoices(kit.IDs())
	m.log.Info("kit loaded", zap.String("kit", name), zap.Strings("voices", kit.IDs()))
	return nil
}

// CycleKit loads the next (or previous, for negative dir) built-in kit and
// returns its name
func (m *Manager) CycleKit(dir int) (string, error) {
	names := voice.KitNames()
	cur := 0
	current := m.Kit().Name
	for i, n := range names {
		if n == current {
			cur = i
		}
	}
	next := names[((cur+dir)%len(names)+len(names))%len(names)]
	return next, m.LoadKit(next)
}

// Kit returns the loaded kit
func (m *Manager) Kit() voice.Kit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kit
}

// SetCursor moves the edit step used by note entry
func (m *Manager) SetCursor(step int) {
	steps := m.store.Snapshot().Steps()
	m.mu.Lock()
	m.cursor = ((step % steps) + steps) % steps
	m.mu.Unlock()
}

// Cursor returns the edit step
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetNoteLength sets the duration in steps used for note entry
func (m *Manager) SetNoteLength(steps int) {
	if steps < 1 {
		steps = 1
	}
	m.mu.Lock()
	m.noteLen = steps
	m.mu.Unlock()
}

// NoteLength returns the note entry duration
func (m *Manager) NoteLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noteLen
}

// Pattern returns the current immutable pattern
func (m *Manager) Pattern() *pattern.Pattern {
	return m.store.Snapshot()
}

// Palette returns the melodic note palette
func (m *Manager) Palette() pattern.Palette {
	return m.palette
}

// Subscribe returns a channel holding the newest pattern after each edit
func (m *Manager) Subscribe() (pattern.SubscriptionID, <-chan *pattern.Pattern) {
	return m.store.Subscribe()
}

// Unsubscribe closes a subscription channel
func (m *Manager) Unsubscribe(id pattern.SubscriptionID) {
	m.store.Unsubscribe(id)
}

// Latest returns the most recent playhead snapshot
func (m *Manager) Latest() playback.Snapshot {
	return m.pub.Latest()
}

// Watch calls fn at most fps times a second whenever the playhead moved
func (m *Manager) Watch(ctx context.Context, fps int, fn func(playback.Snapshot)) {
	m.pub.Watch(ctx, fps, fn)
}

// Errors delivers trigger failures and rejected edits
func (m *Manager) Errors() <-chan error {
	return m.sched.Errors()
}

// State returns a header summary
func (m *Manager) State() State {
	p := m.store.Snapshot()
	snap := m.pub.Latest()
	step := -1
	if snap.Playing {
		step = snap.Step
	}
	return State{
		Mode:    p.Mode(),
		Playing: m.clock.Running(),
		Tempo:   m.clock.Tempo(),
		Steps:   p.Steps(),
		Voices:  p.Voices(),
		Step:    step,
		Kit:     m.Kit().Name,
	}
}

// Close stops playback, detaches controllers and releases the backend and
// everything owned. It is safe to call twice.
func (m *Manager) Close() error {
	m.detachAll()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	owned := m.owned
	m.owned = nil
	m.mu.Unlock()

	m.Stop()
	err := m.backend.Close()
	for i := len(owned) - 1; i >= 0; i-- {
		err = multierr.Append(err, owned[i].Close())
	}
	return err
}
