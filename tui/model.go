package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-stepseq/midi"
	"go-stepseq/pattern"
	"go-stepseq/playback"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/widgets"
)

const (
	tempoStep   = 5
	errorLinger = 3 * time.Second
	maxSteps    = 64
	maxVoices   = 16
)

type Model struct {
	Manager   *sequencer.Manager
	DeviceMgr *midi.DeviceManager // may be nil
	Theme     *theme.Theme

	pattern  *pattern.Pattern
	snap     playback.Snapshot
	subID    pattern.SubscriptionID
	patterns <-chan *pattern.Pattern

	row      int // selected voice, or pitch in melodic mode
	mirror   bool
	quitting bool

	errText string
	errAt   time.Time
	now     time.Time
}

type frameMsg time.Time

type patternMsg *pattern.Pattern

type errMsg struct{ err error }

type DeviceEventMsg midi.DeviceEvent

func NewModel(manager *sequencer.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	id, ch := manager.Subscribe()
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		pattern:   manager.Pattern(),
		subID:     id,
		patterns:  ch,
		mirror:    true,
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(time.Second/playback.DefaultFPS, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func listenForPatterns(ch <-chan *pattern.Pattern) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return patternMsg(p)
	}
}

func listenForErrors(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		return errMsg{<-manager.Errors()}
	}
}

func listenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		nextFrame(),
		listenForPatterns(m.patterns),
		listenForErrors(m.Manager),
	}
	if m.DeviceMgr != nil {
		cmds = append(cmds, listenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case frameMsg:
		m.now = time.Time(msg)
		m.snap = m.Manager.Latest()
		return m, nextFrame()

	case patternMsg:
		m.pattern = msg
		m.clampRow()
		return m, listenForPatterns(m.patterns)

	case errMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.errAt = time.Now()
		}
		return m, listenForErrors(m.Manager)

	case DeviceEventMsg:
		switch msg.Type {
		case midi.DeviceConnected:
			m.Manager.AttachController(msg.Controller)
		case midi.DeviceDisconnected:
			m.Manager.DetachController(msg.ID)
		}
		return m, listenForDevices(m.DeviceMgr)
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	mg := m.Manager
	p := m.pattern
	melodic := p.Mode() == pattern.ModeMelodic
	cursor := mg.Cursor()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		mg.Unsubscribe(m.subID)
		return m, tea.Quit

	case "h", "left":
		mg.SetCursor(cursor - 1)
	case "l", "right":
		mg.SetCursor(cursor + 1)
	case "j", "down":
		if melodic {
			m.row--
		} else {
			m.row++
		}
	case "k", "up":
		if melodic {
			m.row++
		} else {
			m.row--
		}

	case " ", "enter":
		if melodic {
			mg.OnNoteToggle(cursor, m.row, mg.NoteLength())
		} else {
			mg.OnCellToggle(m.row, cursor)
		}
	case "c":
		mg.ClearRow(m.row)
	case "C":
		mg.Clear()

	case "p":
		mg.OnPlayToggle()
	case "+", "=":
		mg.NudgeTempo(tempoStep)
	case "-", "_":
		mg.NudgeTempo(-tempoStep)

	case "[":
		if p.Steps() > 1 {
			mg.SetSteps(p.Steps() - 1)
		}
	case "]":
		if p.Steps() < maxSteps {
			mg.SetSteps(p.Steps() + 1)
		}
	case "{":
		if !melodic && p.Voices() > 1 {
			mg.Resize(p.Steps(), p.Voices()-1)
		}
	case "}":
		if !melodic && p.Voices() < maxVoices {
			mg.Resize(p.Steps(), p.Voices()+1)
		}

	case "<", ",":
		mg.CycleKit(-1)
	case ">", ".":
		mg.CycleKit(1)

	case "1", "2", "3", "4":
		mg.SetNoteLength(int(key[0] - '0'))

	case "m":
		m.mirror = !m.mirror
	}

	// edits land through the subscription, but keep the view current for
	// the keys that follow in the same batch
	m.pattern = mg.Pattern()
	m.clampRow()
	return m, nil
}

func (m *Model) clampRow() {
	if m.row < 0 {
		m.row = 0
	}
	if n := m.pattern.Voices(); m.row >= n {
		m.row = n - 1
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.Theme.Styles

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(st.Header.Render(m.header()))
	out.WriteString("\n\n")
	out.WriteString(m.grid())

	if m.errText != "" && (m.now.IsZero() || m.now.Sub(m.errAt) < errorLinger) {
		out.WriteString("\n")
		out.WriteString(st.Error.Render("! " + m.errText))
	}

	out.WriteString("\n\n")
	out.WriteString(st.Help.Render(m.keyHelp()))

	if m.mirror && len(m.Manager.Controllers()) > 0 {
		out.WriteString("\n\n")
		out.WriteString(m.launchpadMirror())
	}
	return out.String()
}

func (m Model) header() string {
	st := m.Manager.State()
	playState := "STOP"
	if st.Playing {
		playState = "PLAY"
	}
	step := "--"
	if m.snap.Playing {
		step = fmt.Sprintf("%02d", m.snap.Step+1)
	}

	mode := "DRUM  kit:" + st.Kit
	if st.Mode == pattern.ModeMelodic {
		mode = fmt.Sprintf("PIANO  len:%d", m.Manager.NoteLength())
	}

	devices := ""
	if n := len(m.Manager.Controllers()); n > 0 {
		devices = fmt.Sprintf("  MIDI:%d", n)
	}
	return fmt.Sprintf("go-stepseq  %s  %3.0fbpm  step:%s/%d  %s%s",
		playState, st.Tempo, step, st.Steps, mode, devices)
}

// grid draws one line per row. Drum voice 0 is on top; in melodic mode the
// highest pitch is on top.
func (m Model) grid() string {
	p := m.pattern
	st := m.Theme.Styles
	melodic := p.Mode() == pattern.ModeMelodic
	cursor := m.Manager.Cursor()
	kit := m.Manager.Kit()
	palette := m.Manager.Palette()

	var lines []string
	for i := 0; i < p.Voices(); i++ {
		v := i
		if melodic {
			v = p.Voices() - 1 - i
		}

		label := fmt.Sprintf("%2d", v+1)
		if melodic {
			label = palette.Name(v)
		} else if v < len(kit.Voices) {
			label = kit.Voices[v].Name
		}
		label = fmt.Sprintf("%-9s ", label)
		if v == m.row {
			label = st.Selected.Render(label)
		} else {
			label = st.Label.Render(label)
		}

		var line strings.Builder
		line.WriteString(label)
		for s := 0; s < p.Steps(); s++ {
			c := theme.Cell{
				Cursor:   v == m.row && s == cursor,
				Playhead: m.snap.Playing && m.snap.Step == s,
			}
			if melodic {
				_, c.On = p.NoteAt(s, v)
				c.Held = !c.On && p.Held(s, v)
			} else {
				c.On = p.Active(v, s)
			}
			line.WriteString(m.Theme.RenderCell(c))
		}
		if !melodic && v >= len(kit.Voices) {
			line.WriteString(" " + st.Rest.Render(string(m.Theme.Glyphs.NoVoice)))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func (m Model) keyHelp() string {
	edit := widgets.KeySection{Title: "Edit", Keys: []widgets.KeyBinding{
		{Key: "hjkl", Desc: "move cursor"},
		{Key: "space", Desc: "toggle step"},
		{Key: "c / C", Desc: "clear row / clear all"},
		{Key: "[ / ]", Desc: "steps -/+"},
	}}
	if m.pattern.Mode() == pattern.ModeMelodic {
		edit.Keys = append(edit.Keys, widgets.KeyBinding{Key: "1-4", Desc: "note length"})
	} else {
		edit.Keys = append(edit.Keys,
			widgets.KeyBinding{Key: "{ / }", Desc: "voices -/+"},
			widgets.KeyBinding{Key: "< / >", Desc: "previous/next kit"},
		)
	}
	return widgets.RenderKeyHelp([]widgets.KeySection{
		edit,
		{Title: "Transport", Keys: []widgets.KeyBinding{
			{Key: "p", Desc: "play/stop"},
			{Key: "+ / -", Desc: "tempo"},
			{Key: "m", Desc: "launchpad mirror"},
			{Key: "q", Desc: "quit"},
		}},
	})
}

// launchpadMirror shows what an attached Launchpad displays for the page
// holding the cursor
func (m Model) launchpadMirror() string {
	page := m.Manager.Cursor() / midi.GridCols
	leds := sequencer.GridLEDs(m.pattern, m.snap, page, m.snap.Playing)

	var face widgets.Face
	for _, led := range leds {
		if led.Row > midi.GridRows || led.Col > midi.GridCols {
			continue
		}
		face[led.Row][led.Col] = widgets.Pad{
			Color: led.Color,
			Lit:   led.Color != [3]uint8{},
			Pulse: led.Channel == midi.ChannelPulse,
		}
	}

	var out strings.Builder
	out.WriteString(widgets.RenderFace(face))
	out.WriteString("\n")
	out.WriteString(widgets.RenderLegendItem(sequencer.ColorStep, "Steps", "tap to toggle"))
	out.WriteString("\n")
	out.WriteString(widgets.RenderLegendItem(sequencer.ColorPage, "Pages", "top row selects 8 steps"))
	out.WriteString("\n")
	out.WriteString(widgets.RenderLegendItem(sequencer.ColorCommand, "Scene", "play, tempo +/-, clear"))
	return out.String()
}
