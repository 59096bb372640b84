package sequencer

import (
	"sync"
	"testing"
	"time"

	"go-stepseq/midi"
	"go-stepseq/pattern"
	"go-stepseq/playback"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	id    string
	typ   midi.ControllerType
	pads  chan midi.PadEvent
	notes chan midi.NoteEvent

	mu   sync.Mutex
	leds map[[2]int]midi.LEDUpdate
}

func newFakeController(id string, typ midi.ControllerType) *fakeController {
	return &fakeController{
		id:    id,
		typ:   typ,
		pads:  make(chan midi.PadEvent, 8),
		notes: make(chan midi.NoteEvent, 8),
		leds:  make(map[[2]int]midi.LEDUpdate),
	}
}

func (f *fakeController) ID() string                        { return f.id }
func (f *fakeController) Type() midi.ControllerType         { return f.typ }
func (f *fakeController) PadEvents() <-chan midi.PadEvent   { return f.pads }
func (f *fakeController) NoteEvents() <-chan midi.NoteEvent { return f.notes }
func (f *fakeController) Close() error                      { return nil }

func (f *fakeController) SetLEDBatch(updates []midi.LEDUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		f.leds[[2]int{u.Row, u.Col}] = u
	}
	return nil
}

func (f *fakeController) led(row, col int) midi.LEDUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leds[[2]int{row, col}]
}

func TestPadTogglesDrumCell(t *testing.T) {
	m, _ := newTestManager(t, Options{Steps: 16, Voices: 3})
	lp := newFakeController("lp", midi.ControllerLaunchpad)
	m.AttachController(lp)
	assert.Equal(t, []string{"lp"}, m.Controllers())

	// top grid row is voice 0
	lp.pads <- midi.PadEvent{Row: 7, Col: 2, Velocity: 127}
	require.Eventually(t, func() bool { return m.Pattern().Active(0, 2) }, time.Second, time.Millisecond)
	assert.Equal(t, 2, m.Cursor())

	require.Eventually(t, func() bool { return lp.led(7, 2).Color == ColorStep }, time.Second, 5*time.Millisecond)

	// second page
	lp.pads <- midi.PadEvent{Row: midi.GridRows, Col: 1}
	lp.pads <- midi.PadEvent{Row: 5, Col: 0}
	require.Eventually(t, func() bool { return m.Pattern().Active(2, 8) }, time.Second, time.Millisecond)

	// rows below the kit are ignored
	lp.pads <- midi.PadEvent{Row: 0, Col: 0}
	lp.pads <- midi.PadEvent{Row: sceneClear, Col: midi.GridCols}
	require.Eventually(t, func() bool { return m.Pattern().Empty() }, time.Second, time.Millisecond)

	m.DetachController("lp")
	assert.Empty(t, m.Controllers())
}

func TestScenePads(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	lp := newFakeController("lp", midi.ControllerLaunchpad)
	m.AttachController(lp)

	lp.pads <- midi.PadEvent{Row: sceneTempoUp, Col: midi.GridCols}
	require.Eventually(t, func() bool { return m.Tempo() == 125 }, time.Second, time.Millisecond)
	lp.pads <- midi.PadEvent{Row: sceneTempoDown, Col: midi.GridCols}
	lp.pads <- midi.PadEvent{Row: sceneTempoDown, Col: midi.GridCols}
	require.Eventually(t, func() bool { return m.Tempo() == 115 }, time.Second, time.Millisecond)

	lp.pads <- midi.PadEvent{Row: scenePlay, Col: midi.GridCols}
	require.Eventually(t, m.Playing, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return lp.led(scenePlay, midi.GridCols).Color == colorPlaying }, time.Second, 5*time.Millisecond)

	lp.pads <- midi.PadEvent{Row: scenePlay, Col: midi.GridCols}
	require.Eventually(t, func() bool { return !m.Playing() }, time.Second, time.Millisecond)
}

func TestKeyboardStepEntry(t *testing.T) {
	m, _ := newTestManager(t, Options{Steps: 4, Voices: 3})
	kb := newFakeController("kb", midi.ControllerKeyboard)
	m.AttachController(kb)

	kb.notes <- midi.NoteEvent{Note: 36, Velocity: 100} // kick
	kb.notes <- midi.NoteEvent{Note: 38, Velocity: 100} // snare
	kb.notes <- midi.NoteEvent{Note: 60, Velocity: 100} // not in the kit
	require.Eventually(t, func() bool {
		p := m.Pattern()
		return p.Active(0, 0) && p.Active(2, 1)
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, m.Cursor())
}

func TestKeyboardStepEntryMelodic(t *testing.T) {
	m, _ := newTestManager(t, Options{Mode: pattern.ModeMelodic, Steps: 8})
	m.SetNoteLength(2)
	kb := newFakeController("kb", midi.ControllerKeyboard)
	m.AttachController(kb)

	kb.notes <- midi.NoteEvent{Note: 64} // E4, pitch 2
	require.Eventually(t, func() bool {
		n, ok := m.Pattern().NoteAt(0, 2)
		return ok && n.Duration == 2
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.Cursor() == 2 }, time.Second, time.Millisecond)
}

func TestAttachReplacesSameID(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.AttachController(newFakeController("lp", midi.ControllerLaunchpad))
	m.AttachController(newFakeController("lp", midi.ControllerLaunchpad))
	assert.Len(t, m.Controllers(), 1)
	require.NoError(t, m.Close())
	assert.Empty(t, m.Controllers())
}

func TestGridLEDsDrum(t *testing.T) {
	store, err := pattern.NewStore(pattern.ModeDrum, 12, 2)
	require.NoError(t, err)
	require.NoError(t, store.Toggle(1, 9))

	leds := GridLEDs(store.Snapshot(), playback.Snapshot{Playing: true, Step: 10}, 1, true)
	byPos := make(map[[2]int]midi.LEDUpdate)
	for _, l := range leds {
		byPos[[2]int{l.Row, l.Col}] = l
	}

	// voice 1 is the second row from the top, step 9 is column 1 of page 1
	assert.Equal(t, ColorStep, byPos[[2]int{6, 1}].Color)
	assert.Equal(t, colorStepEmpty, byPos[[2]int{7, 1}].Color)
	assert.Equal(t, colorPlayhead, byPos[[2]int{7, 2}].Color)
	assert.Equal(t, midi.ChannelPulse, byPos[[2]int{7, 2}].Channel)

	// page 1 only has 4 steps and there are 2 voices
	_, ok := byPos[[2]int{7, 4}]
	assert.False(t, ok)
	_, ok = byPos[[2]int{5, 0}]
	assert.False(t, ok)

	assert.Equal(t, ColorPage, byPos[[2]int{midi.GridRows, 0}].Color)
	assert.Equal(t, colorPageOn, byPos[[2]int{midi.GridRows, 1}].Color)
	_, ok = byPos[[2]int{midi.GridRows, 2}]
	assert.False(t, ok)
	assert.Equal(t, colorPlaying, byPos[[2]int{scenePlay, midi.GridCols}].Color)
}

func TestGridLEDsMelodic(t *testing.T) {
	store, err := pattern.NewStore(pattern.ModeMelodic, 8, 8)
	require.NoError(t, err)
	require.NoError(t, store.ToggleNote(1, 0, 3))

	leds := GridLEDs(store.Snapshot(), playback.Snapshot{}, 0, false)
	byPos := make(map[[2]int]midi.LEDUpdate)
	for _, l := range leds {
		byPos[[2]int{l.Row, l.Col}] = l
	}

	// pitch 0 is the bottom row
	assert.Equal(t, colorStepEmpty, byPos[[2]int{0, 0}].Color)
	assert.Equal(t, ColorStep, byPos[[2]int{0, 1}].Color)
	assert.Equal(t, colorHeld, byPos[[2]int{0, 2}].Color)
	assert.Equal(t, colorHeld, byPos[[2]int{0, 3}].Color)
	assert.Equal(t, colorStepEmpty, byPos[[2]int{0, 4}].Color)
	assert.Equal(t, colorStopped, byPos[[2]int{scenePlay, midi.GridCols}].Color)
}
