package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-stepseq/pattern"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, opts sequencer.Options) Model {
	t.Helper()
	if opts.Steps == 0 {
		opts.Steps = 8
	}
	if opts.Voices == 0 {
		opts.Voices = 3
	}
	if opts.BPM == 0 {
		opts.BPM = 120
	}
	mgr, err := sequencer.NewManager(opts, voice.NewRecorder(nil))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return NewModel(mgr, nil, theme.New(theme.Plasma))
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		m = next.(Model)
	}
	return m
}

func TestToggleCells(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})

	m = press(t, m, " ", "l", "l", " ", "j", " ")
	p := m.Manager.Pattern()
	assert.True(t, p.Active(0, 0))
	assert.True(t, p.Active(0, 2))
	assert.True(t, p.Active(1, 2))

	m = press(t, m, "c")
	p = m.Manager.Pattern()
	assert.False(t, p.Active(1, 2))
	assert.True(t, p.Active(0, 2))

	m = press(t, m, "C")
	assert.True(t, m.Manager.Pattern().Empty())
}

func TestRowStaysInRange(t *testing.T) {
	m := newTestModel(t, sequencer.Options{Voices: 2})
	m = press(t, m, "k", "k")
	assert.Equal(t, 0, m.row)
	m = press(t, m, "j", "j", "j")
	assert.Equal(t, 1, m.row)

	m = press(t, m, "{")
	assert.Equal(t, 1, m.Manager.Pattern().Voices())
	assert.Equal(t, 0, m.row)
}

func TestCursorWraps(t *testing.T) {
	m := newTestModel(t, sequencer.Options{Steps: 4})
	m = press(t, m, "h")
	assert.Equal(t, 3, m.Manager.Cursor())
	m = press(t, m, "l")
	assert.Equal(t, 0, m.Manager.Cursor())
}

func TestTransportKeys(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})

	m = press(t, m, "+", "+", "-")
	assert.Equal(t, 125.0, m.Manager.Tempo())

	m = press(t, m, "p")
	assert.True(t, m.Manager.Playing())
	m = press(t, m, "p")
	assert.False(t, m.Manager.Playing())

	m = press(t, m, "]", "]", "[")
	assert.Equal(t, 9, m.Manager.Pattern().Steps())

	m = press(t, m, ">")
	assert.Equal(t, "gm", m.Manager.Kit().Name)
	m = press(t, m, "<", "<")
	assert.Equal(t, "er1", m.Manager.Kit().Name)
}

func TestMelodicKeys(t *testing.T) {
	m := newTestModel(t, sequencer.Options{Mode: pattern.ModeMelodic})
	m = press(t, m, "3", "k", " ")

	n, ok := m.Manager.Pattern().NoteAt(0, 1)
	require.True(t, ok)
	assert.Equal(t, 3, n.Duration)

	view := m.View()
	assert.Contains(t, view, "PIANO")
	assert.Contains(t, view, "D4")
	assert.Contains(t, view, "━")
}

func TestView(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})
	m = press(t, m, " ")

	view := m.View()
	assert.Contains(t, view, "go-stepseq")
	assert.Contains(t, view, "STOP")
	assert.Contains(t, view, "kit:808")
	assert.Contains(t, view, "Kick")
	assert.Contains(t, view, "◉")
	assert.Contains(t, view, "play/stop")
}

func TestErrorsShowInView(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})
	next, cmd := m.Update(errMsg{errors.New("voice \"cowbell\" unavailable")})
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "cowbell")

	next, _ = m.Update(frameMsg(time.Now().Add(errorLinger + time.Second)))
	m = next.(Model)
	assert.NotContains(t, m.View(), "cowbell")
}

func TestPatternMessages(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})
	require.NoError(t, m.Manager.OnCellToggle(2, 5))

	msg := listenForPatterns(m.patterns)()
	next, _ := m.Update(msg)
	m = next.(Model)
	assert.True(t, m.pattern.Active(2, 5))
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, sequencer.Options{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
