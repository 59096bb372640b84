package voice

import (
	"fmt"
	"sync"
	"time"

	"go-stepseq/midi"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// MIDIOptions configures a MIDIBackend
type MIDIOptions struct {
	Channel      uint8   // 0-15
	Velocity     uint8   // defaults to 100
	Gate         float64 // fraction of the note length held, defaults to 0.8
	StepDuration func() time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// MIDIBackend plays voices as MIDI notes. Kit voices map to their Note;
// pitched triggers send the pitch directly. Messages go out on timers at
// the trigger time.
type MIDIBackend struct {
	mu      sync.Mutex
	send    func(gomidi.Message) error
	closeFn func() error
	opts    MIDIOptions
	log     *zap.Logger

	notes    map[string]uint8
	pending  map[uint64]*pendingNote
	seq      uint64
	sounding map[uint8]int
	closed   bool
}

type pendingNote struct {
	at    time.Time
	on    bool // note-on; cancellable
	timer *time.Timer
}

// NewMIDIBackend creates a backend writing through send
func NewMIDIBackend(send func(gomidi.Message) error, opts MIDIOptions) *MIDIBackend {
	if opts.Velocity == 0 {
		opts.Velocity = 100
	}
	if opts.Gate <= 0 || opts.Gate > 1 {
		opts.Gate = 0.8
	}
	if opts.Channel > 15 {
		opts.Channel = 15
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
	return &MIDIBackend{
		send:     send,
		opts:     opts,
		log:      opts.Logger.Named("midi"),
		notes:    make(map[string]uint8),
		pending:  make(map[uint64]*pendingNote),
		sounding: make(map[uint8]int),
	}
}

// OpenMIDIBackend opens the output port matching portName. Close releases
// the port.
func OpenMIDIBackend(portName string, opts MIDIOptions) (*MIDIBackend, error) {
	out, err := midi.FindOut(portName)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", out.String(), err)
	}
	b := NewMIDIBackend(send, opts)
	b.closeFn = out.Close
	b.log.Info("output open", zap.String("port", out.String()), zap.Uint8("channel", opts.Channel))
	return b, nil
}

func (b *MIDIBackend) Load(kit Kit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("load kit %q: backend closed: %w", kit.Name, ErrVoiceUnavailable)
	}
	notes := make(map[string]uint8, len(kit.Voices))
	for _, v := range kit.Voices {
		notes[v.ID] = v.Note
	}
	b.notes = notes
	b.log.Debug("kit loaded", zap.String("kit", kit.Name), zap.Int("voices", len(notes)))
	return nil
}

func (b *MIDIBackend) Trigger(t Trigger) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("trigger %q: backend closed: %w", t.VoiceID, ErrVoiceUnavailable)
	}
	note := t.Pitch
	if !t.HasPitch {
		n, ok := b.notes[t.VoiceID]
		if !ok {
			return fmt.Errorf("trigger %q: %w", t.VoiceID, ErrVoiceUnavailable)
		}
		note = n
	}

	length := noteLength(t.Duration, b.opts.StepDuration(), b.opts.Gate)
	b.scheduleLocked(t.At, true, func() {
		b.noteOnLocked(note)
		b.scheduleLocked(t.At.Add(length), false, func() {
			b.noteOffLocked(note)
		})
	})
	return nil
}

// scheduleLocked runs fn with b.mu held at the given time, unless the note
// was cancelled first. The pending check and fn share one critical section
// so a note cannot slip out after CancelAfter has returned.
func (b *MIDIBackend) scheduleLocked(at time.Time, on bool, fn func()) {
	b.seq++
	id := b.seq
	p := &pendingNote{at: at, on: on}
	b.pending[id] = p
	p.timer = time.AfterFunc(at.Sub(b.opts.Now()), func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.pending[id]; !ok || b.closed {
			return
		}
		delete(b.pending, id)
		fn()
	})
}

func (b *MIDIBackend) noteOnLocked(note uint8) {
	b.sounding[note]++
	if err := b.send(gomidi.NoteOn(b.opts.Channel, note, b.opts.Velocity)); err != nil {
		b.log.Warn("note on", zap.Uint8("note", note), zap.Error(err))
	}
}

func (b *MIDIBackend) noteOffLocked(note uint8) {
	if b.sounding[note] == 0 {
		return
	}
	if b.sounding[note] > 1 {
		b.sounding[note]--
	} else {
		delete(b.sounding, note)
	}
	if err := b.send(gomidi.NoteOff(b.opts.Channel, note)); err != nil {
		b.log.Warn("note off", zap.Uint8("note", note), zap.Error(err))
	}
}

// CancelAfter drops note-ons scheduled after t. Pending note-offs for
// notes already playing still fire.
func (b *MIDIBackend) CancelAfter(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, p := range b.pending {
		if p.on && p.at.After(t) {
			p.timer.Stop()
			delete(b.pending, id)
			n++
		}
	}
	if n > 0 {
		b.log.Debug("cancelled", zap.Int("notes", n))
	}
}

// Silence drops everything pending and releases every sounding note
func (b *MIDIBackend) Silence() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.pending {
		p.timer.Stop()
		delete(b.pending, id)
	}
	for n := range b.sounding {
		if err := b.send(gomidi.NoteOff(b.opts.Channel, n)); err != nil {
			b.log.Warn("note off", zap.Uint8("note", n), zap.Error(err))
		}
	}
	b.sounding = make(map[uint8]int)
}

// Pending returns how many note messages are waiting on timers
func (b *MIDIBackend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *MIDIBackend) Close() error {
	b.Silence()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	closeFn := b.closeFn
	b.mu.Unlock()

	if closeFn != nil {
		return closeFn()
	}
	return nil
}
