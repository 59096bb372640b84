package voice

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder is a backend that makes no sound. It keeps every trigger and
// logs it, which makes it useful headless and in tests.
type Recorder struct {
	mu        sync.Mutex
	kit       Kit
	triggers  []Trigger
	cancelled []time.Time
	silenced  int
	fail      map[string]error
	closed    bool
	log       *zap.Logger
}

// NewRecorder creates a recorder. A nil logger disables logging.
func NewRecorder(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{log: log.Named("recorder"), fail: make(map[string]error)}
}

func (r *Recorder) Load(kit Kit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("load kit %q: %w", kit.Name, ErrVoiceUnavailable)
	}
	r.kit = kit
	return nil
}

// FailVoice makes every trigger of id return err
func (r *Recorder) FailVoice(id string, err error) {
	r.mu.Lock()
	r.fail[id] = err
	r.mu.Unlock()
}

func (r *Recorder) Trigger(t Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("trigger %q: backend closed: %w", t.VoiceID, ErrVoiceUnavailable)
	}
	if err, ok := r.fail[t.VoiceID]; ok {
		return err
	}
	if _, ok := r.kit.Voice(t.VoiceID); !ok && !(t.HasPitch && t.VoiceID == SynthVoiceID) {
		return fmt.Errorf("trigger %q: %w", t.VoiceID, ErrVoiceUnavailable)
	}

	r.triggers = append(r.triggers, t)
	r.log.Debug("trigger",
		zap.String("voice", t.VoiceID),
		zap.Uint8("pitch", t.Pitch),
		zap.Int("duration", t.Duration),
		zap.Time("at", t.At))
	return nil
}

func (r *Recorder) CancelAfter(t time.Time) {
	r.mu.Lock()
	r.cancelled = append(r.cancelled, t)
	r.mu.Unlock()
}

func (r *Recorder) Silence() {
	r.mu.Lock()
	r.silenced++
	r.mu.Unlock()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Triggers returns a copy of everything triggered so far
func (r *Recorder) Triggers() []Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Trigger(nil), r.triggers...)
}

// Cancelled returns the instants passed to CancelAfter
func (r *Recorder) Cancelled() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.cancelled...)
}

// Silenced returns how many times Silence was called
func (r *Recorder) Silenced() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silenced
}

// Kit returns the loaded kit
func (r *Recorder) Kit() Kit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kit
}

// Closed reports whether Close was called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
