package voice

import (
	"errors"
	"time"
)

// ErrVoiceUnavailable is returned when a trigger names a voice the backend
// has not loaded, or the backend is closed.
var ErrVoiceUnavailable = errors.New("voice unavailable")

// SynthVoiceID is the pitched voice used in melodic mode
const SynthVoiceID = "synth"

// Trigger asks a backend to sound a voice at a precise time
type Trigger struct {
	VoiceID  string
	Pitch    uint8 // MIDI note, only meaningful when HasPitch
	HasPitch bool
	Duration int // in steps; the backend converts at the current tempo
	At       time.Time
}

// Backend is a sound output owning its voices. Load acquires the voices of
// a kit, replacing any previous ones; Close releases everything.
type Backend interface {
	Load(kit Kit) error
	Trigger(t Trigger) error
	Close() error
}

// Canceler is implemented by backends that queue triggers ahead of time.
// CancelAfter drops queued triggers starting after t. Sounds already
// started are left alone.
type Canceler interface {
	CancelAfter(t time.Time)
}

// Silencer cuts every sounding voice immediately
type Silencer interface {
	Silence()
}

// noteLength converts a step count to wall time
func noteLength(steps int, step time.Duration, gate float64) time.Duration {
	if steps < 1 {
		steps = 1
	}
	if gate <= 0 || gate > 1 {
		gate = 1
	}
	d := time.Duration(float64(steps) * float64(step) * gate)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
