package voice

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, s *Synth, frames int) []float32 {
	t.Helper()
	buf := make([]byte, frames*4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	out := make([]float32, frames)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func silent(samples []float32) bool {
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}

func newTestSynth(t0 time.Time) *Synth {
	return NewSynth(SynthOptions{SampleRate: 1000, Now: func() time.Time { return t0 }})
}

func TestSynthPlacesTriggersOnTheirFrame(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := newTestSynth(t0)
	require.NoError(t, s.Load(GetKit("808")))
	require.NoError(t, s.Trigger(Trigger{VoiceID: "kick", At: t0.Add(100 * time.Millisecond)}))

	out := render(t, s, 300)
	assert.True(t, silent(out[:100]), "nothing before the trigger time")
	assert.False(t, silent(out[100:]), "kick after the trigger time")
}

func TestSynthLateTriggerStartsNow(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := newTestSynth(t0)
	require.NoError(t, s.Load(GetKit("808")))
	render(t, s, 200)

	require.NoError(t, s.Trigger(Trigger{VoiceID: "kick", At: t0}))
	out := render(t, s, 50)
	assert.False(t, silent(out[:10]))
}

func TestSynthPitchedVoice(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := newTestSynth(t0)
	require.NoError(t, s.Load(GetKit("808")))
	require.NoError(t, s.Trigger(Trigger{VoiceID: SynthVoiceID, Pitch: 60, HasPitch: true, Duration: 2, At: t0}))
	assert.Equal(t, 1, s.Active())

	assert.False(t, silent(render(t, s, 100)))

	// the note finishes and is dropped
	render(t, s, 3000)
	assert.Equal(t, 0, s.Active())
}

func TestSynthUnavailableVoice(t *testing.T) {
	s := newTestSynth(time.Unix(100, 0))
	assert.ErrorIs(t, s.Trigger(Trigger{VoiceID: "kick"}), ErrVoiceUnavailable)

	require.NoError(t, s.Load(GetKit("808")))
	assert.ErrorIs(t, s.Trigger(Trigger{VoiceID: "cowbell"}), ErrVoiceUnavailable)
	assert.NoError(t, s.Trigger(Trigger{VoiceID: "hihat"}))
}

func TestSynthCancelAfter(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := newTestSynth(t0)
	require.NoError(t, s.Load(GetKit("808")))
	require.NoError(t, s.Trigger(Trigger{VoiceID: "kick", At: t0.Add(50 * time.Millisecond)}))
	require.NoError(t, s.Trigger(Trigger{VoiceID: "snare", At: t0.Add(500 * time.Millisecond)}))

	s.CancelAfter(t0.Add(100 * time.Millisecond))
	assert.Equal(t, 1, s.Active())

	out := render(t, s, 1000)
	assert.False(t, silent(out[50:100]))
	assert.True(t, silent(out[900:]), "cancelled snare never sounds")
}

func TestSynthSilenceAndClose(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := newTestSynth(t0)
	require.NoError(t, s.Load(GetKit("808")))
	require.NoError(t, s.Trigger(Trigger{VoiceID: "kick", At: t0}))
	render(t, s, 10)

	s.Silence()
	assert.Equal(t, 0, s.Active())
	assert.True(t, silent(render(t, s, 100)))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Trigger(Trigger{VoiceID: "kick", At: t0}), ErrVoiceUnavailable)
	assert.True(t, silent(render(t, s, 100)))
}

func TestSynthVoiceCap(t *testing.T) {
	s := NewSynth(SynthOptions{SampleRate: 1000, MaxVoices: 4})
	require.NoError(t, s.Load(GetKit("808")))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Trigger(Trigger{VoiceID: "hihat"}))
	}
	assert.Equal(t, 4, s.Active())
}
