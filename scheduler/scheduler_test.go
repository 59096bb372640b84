package scheduler

import (
	"errors"
	"testing"
	"time"

	"go-stepseq/pattern"
	"go-stepseq/playback"
	"go-stepseq/transport"
	"go-stepseq/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *pattern.Store
	rec   *voice.Recorder
	pub   *playback.Publisher
	s     *Scheduler
}

func newFixture(t *testing.T, mode pattern.Mode, steps, voices int) *fixture {
	t.Helper()
	store, err := pattern.NewStore(mode, steps, voices)
	require.NoError(t, err)
	kit := voice.GetKit("808")
	rec := voice.NewRecorder(nil)
	require.NoError(t, rec.Load(kit))
	pub := playback.NewPublisher()
	s, err := New(Config{Store: store, Backend: rec, Publisher: pub, Voices: kit.IDs()})
	require.NoError(t, err)
	return &fixture{store: store, rec: rec, pub: pub, s: s}
}

func tick(i int64) transport.Tick {
	return transport.Tick{Index: i, At: time.Unix(0, 0).Add(time.Duration(i) * 125 * time.Millisecond)}
}

func TestDrumStepTriggersInVoiceOrder(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 8, 3)
	require.NoError(t, f.store.Toggle(2, 1))
	require.NoError(t, f.store.Toggle(0, 1))
	require.NoError(t, f.store.Toggle(1, 1))

	f.s.HandleTick(tick(9)) // step 1 of the second loop

	got := f.rec.Triggers()
	require.Len(t, got, 3)
	assert.Equal(t, "kick", got[0].VoiceID)
	assert.Equal(t, "hihat", got[1].VoiceID)
	assert.Equal(t, "snare", got[2].VoiceID)
	for _, tr := range got {
		assert.Equal(t, tick(9).At, tr.At)
		assert.Equal(t, 1, tr.Duration)
		assert.False(t, tr.HasPitch)
	}

	snap := f.pub.Latest()
	assert.Equal(t, 1, snap.Step)
	assert.Equal(t, 0.125, snap.Position)
	assert.Equal(t, int64(9), snap.Tick)
	assert.True(t, snap.Playing)
}

func TestKickEveryOtherStep(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 8, 1)
	for _, step := range []int{0, 2, 4, 6} {
		require.NoError(t, f.store.Toggle(0, step))
	}

	for i := int64(0); i < 16; i++ {
		f.s.HandleTick(tick(i))
	}

	got := f.rec.Triggers()
	require.Len(t, got, 8)
	for i, tr := range got {
		assert.Equal(t, tick(int64(2*i)).At, tr.At)
		if i > 0 {
			assert.Equal(t, 250*time.Millisecond, tr.At.Sub(got[i-1].At))
		}
	}
}

func TestEditTakesEffectOnNextTick(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 4, 1)

	f.s.HandleTick(tick(0))
	assert.Empty(t, f.rec.Triggers())

	require.NoError(t, f.store.Toggle(0, 1))
	f.s.HandleTick(tick(1))
	assert.Len(t, f.rec.Triggers(), 1)
	assert.Same(t, f.store.Snapshot(), f.s.Last())
}

func TestFailedVoiceDoesNotAbortTick(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 4, 3)
	for v := 0; v < 3; v++ {
		require.NoError(t, f.store.Toggle(v, 0))
	}
	boom := errors.New("sample not loaded")
	f.rec.FailVoice("hihat", boom)

	f.s.HandleTick(tick(0))
	f.s.HandleTick(tick(4))

	got := f.rec.Triggers()
	require.Len(t, got, 4)
	assert.Equal(t, "snare", got[1].VoiceID)

	var terr *TriggerError
	err := <-f.s.Errors()
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "hihat", terr.VoiceID)
	assert.Equal(t, 0, terr.Step)
	assert.ErrorIs(t, err, boom)
}

type panicky struct{ voice.Recorder }

func (p *panicky) Trigger(voice.Trigger) error { panic("driver crashed") }

func TestPanickingBackendIsContained(t *testing.T) {
	store, err := pattern.NewStore(pattern.ModeDrum, 4, 1)
	require.NoError(t, err)
	require.NoError(t, store.Toggle(0, 0))
	pub := playback.NewPublisher()
	s, err := New(Config{Store: store, Backend: &panicky{}, Publisher: pub, Voices: []string{"kick"}})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.HandleTick(tick(0)) })
	assert.Error(t, <-s.Errors())
	assert.True(t, pub.Latest().Playing)
}

func TestRowWithoutVoice(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 4, 5)
	require.NoError(t, f.store.Toggle(4, 2))

	f.s.HandleTick(tick(2))
	assert.Empty(t, f.rec.Triggers())
	err := <-f.s.Errors()
	assert.ErrorIs(t, err, voice.ErrVoiceUnavailable)
}

func TestMelodicTriggers(t *testing.T) {
	f := newFixture(t, pattern.ModeMelodic, 8, len(pattern.DefaultPalette))
	require.NoError(t, f.store.ToggleNote(3, 4, 2))
	require.NoError(t, f.store.ToggleNote(3, 0, 1))

	f.s.HandleTick(tick(3))

	got := f.rec.Triggers()
	require.Len(t, got, 2)
	assert.Equal(t, voice.SynthVoiceID, got[0].VoiceID)
	assert.True(t, got[0].HasPitch)
	assert.Equal(t, uint8(60), got[0].Pitch)
	assert.Equal(t, 1, got[0].Duration)
	assert.Equal(t, uint8(67), got[1].Pitch)
	assert.Equal(t, 2, got[1].Duration)
}

func TestPitchOutsidePalette(t *testing.T) {
	store, err := pattern.NewStore(pattern.ModeMelodic, 4, 4)
	require.NoError(t, err)
	require.NoError(t, store.ToggleNote(0, 3, 1))
	rec := voice.NewRecorder(nil)
	s, err := New(Config{
		Store:     store,
		Backend:   rec,
		Publisher: playback.NewPublisher(),
		Palette:   pattern.DefaultPalette[:2],
	})
	require.NoError(t, err)

	s.HandleTick(tick(0))
	assert.Empty(t, rec.Triggers())
	assert.ErrorIs(t, <-s.Errors(), pattern.ErrInvalidIndex)
}

func TestErrorsDropWhenFull(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 1, 1)
	require.NoError(t, f.store.Toggle(0, 0))
	f.rec.FailVoice("kick", errors.New("nope"))

	for i := int64(0); i < errBuffer+10; i++ {
		f.s.HandleTick(tick(i))
	}
	assert.Len(t, f.s.Errors(), errBuffer)
	assert.Equal(t, uint64(10), f.s.Dropped())
}

func TestCancelAfter(t *testing.T) {
	f := newFixture(t, pattern.ModeDrum, 4, 1)
	at := time.Unix(5, 0)
	f.s.CancelAfter(at)
	assert.Equal(t, []time.Time{at}, f.rec.Cancelled())
	assert.Equal(t, 0, f.rec.Silenced())

	store, err := pattern.NewStore(pattern.ModeDrum, 4, 1)
	require.NoError(t, err)
	rec := voice.NewRecorder(nil)
	muted, err := New(Config{Store: store, Backend: rec, Publisher: playback.NewPublisher(), HardMute: true})
	require.NoError(t, err)
	muted.CancelAfter(at)
	assert.Equal(t, 1, rec.Silenced())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
