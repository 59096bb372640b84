package sequencer

import (
	"sync"
	"sync/atomic"
	"time"

	"go-stepseq/debug"
	"go-stepseq/midi"
	"go-stepseq/pattern"
	"go-stepseq/playback"

	"go.uber.org/zap"
)

// LED refresh rate
const ledFPS = 30

// Launchpad layout: the 8x8 grid shows 8 steps of the pattern, the top row
// picks the page of 8 steps, the right column holds transport commands.
const (
	scenePlay      = 7
	sceneTempoUp   = 6
	sceneTempoDown = 5
	sceneClear     = 4
	tempoStep      = 5
)

// Launchpad colors, the exported ones also key the TUI legend
var (
	ColorStep      = [3]uint8{234, 73, 116} // pink, active step
	colorStepEmpty = [3]uint8{80, 30, 50}   // dim pink, empty step
	colorHeld      = [3]uint8{148, 18, 126} // purple, held note
	colorPlayhead  = [3]uint8{255, 255, 255}
	ColorPage      = [3]uint8{40, 10, 30}
	colorPageOn    = [3]uint8{148, 18, 126}
	ColorCommand   = [3]uint8{253, 157, 110}
	colorPlaying   = [3]uint8{0, 255, 0}
	colorStopped   = [3]uint8{0, 100, 0}
)

// surface drives one attached controller: pads and keys edit the pattern,
// LEDs mirror it.
type surface struct {
	m    *Manager
	c    midi.Controller
	page atomic.Int64

	prev map[[2]int]midi.LEDUpdate

	stop chan struct{}
	wg   sync.WaitGroup
}

// AttachController starts routing a controller's input into the pattern.
// Grid controllers also get an LED mirror. A controller with the same ID
// is detached first.
func (m *Manager) AttachController(c midi.Controller) {
	m.DetachController(c.ID())

	s := &surface{
		m:    m,
		c:    c,
		prev: make(map[[2]int]midi.LEDUpdate),
		stop: make(chan struct{}),
	}
	m.surfaceMu.Lock()
	m.surfaces[c.ID()] = s
	m.surfaceMu.Unlock()

	s.wg.Add(1)
	go s.inputLoop()
	if c.Type() == midi.ControllerLaunchpad {
		s.wg.Add(1)
		go s.ledLoop()
	}
	m.log.Info("controller attached", zap.String("id", c.ID()), zap.Stringer("type", c.Type()))
}

// DetachController stops routing a controller. The controller itself is
// not closed.
func (m *Manager) DetachController(id string) {
	m.surfaceMu.Lock()
	s, ok := m.surfaces[id]
	delete(m.surfaces, id)
	m.surfaceMu.Unlock()
	if !ok {
		return
	}
	close(s.stop)
	s.wg.Wait()
	m.log.Info("controller detached", zap.String("id", id))
}

// Controllers returns the IDs of attached controllers
func (m *Manager) Controllers() []string {
	m.surfaceMu.Lock()
	defer m.surfaceMu.Unlock()
	ids := make([]string, 0, len(m.surfaces))
	for id := range m.surfaces {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) detachAll() {
	for _, id := range m.Controllers() {
		m.DetachController(id)
	}
}

func (s *surface) inputLoop() {
	defer s.wg.Done()
	pads, notes := s.c.PadEvents(), s.c.NoteEvents()
	for pads != nil || notes != nil {
		select {
		case <-s.stop:
			return
		case ev, ok := <-pads:
			if !ok {
				pads = nil
				continue
			}
			s.handlePad(ev.Row, ev.Col)
		case ev, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			s.handleNote(ev.Note)
		}
	}
}

func (s *surface) handlePad(row, col int) {
	m := s.m
	p := m.Pattern()

	switch {
	case row == midi.GridRows:
		if col*midi.GridCols < p.Steps() {
			s.page.Store(int64(col))
		}
	case col == midi.GridCols:
		switch row {
		case scenePlay:
			m.OnPlayToggle()
		case sceneTempoUp:
			m.NudgeTempo(tempoStep)
		case sceneTempoDown:
			m.NudgeTempo(-tempoStep)
		case sceneClear:
			m.Clear()
		}
	default:
		step := int(s.page.Load())*midi.GridCols + col
		if step >= p.Steps() {
			return
		}
		m.SetCursor(step)
		if p.Mode() == pattern.ModeMelodic {
			m.OnNoteToggle(step, row, m.NoteLength())
		} else {
			m.OnCellToggle(midi.GridRows-1-row, step)
		}
	}
}

// handleNote enters the played key at the cursor and advances it, like
// step entry on a hardware sequencer
func (s *surface) handleNote(note uint8) {
	m := s.m
	p := m.Pattern()
	cursor := m.Cursor()

	if p.Mode() == pattern.ModeMelodic {
		for i, pn := range m.Palette() {
			if pn.MIDI == note {
				length := m.NoteLength()
				if m.OnNoteToggle(cursor, i, length) == nil {
					m.SetCursor(cursor + length)
				}
				return
			}
		}
	} else {
		for row, v := range m.Kit().Voices {
			if v.Note == note {
				if m.OnCellToggle(row, cursor) == nil {
					m.SetCursor(cursor + 1)
				}
				return
			}
		}
	}
	debug.Log("input", "note %d has no row", note)
}

// ledLoop runs at fixed FPS and flushes LEDs when anything shown changed
func (s *surface) ledLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	var (
		lastPat  *pattern.Pattern
		lastSnap playback.Snapshot
		lastPage int64 = -1
		lastPlay bool
	)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			p, snap, page, playing := s.m.Pattern(), s.m.Latest(), s.page.Load(), s.m.Playing()
			if p == lastPat && snap == lastSnap && page == lastPage && playing == lastPlay {
				continue
			}
			lastPat, lastSnap, lastPage, lastPlay = p, snap, page, playing
			s.flush(GridLEDs(p, snap, int(page), playing))
		}
	}
}

// flush sends only changed LEDs to the controller
func (s *surface) flush(leds []midi.LEDUpdate) {
	var updates []midi.LEDUpdate
	next := make(map[[2]int]midi.LEDUpdate, len(leds))
	for _, led := range leds {
		key := [2]int{led.Row, led.Col}
		next[key] = led
		if prev, ok := s.prev[key]; !ok || prev != led {
			updates = append(updates, led)
		}
	}
	for key := range s.prev {
		if _, ok := next[key]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: key[0], Col: key[1]})
		}
	}
	s.prev = next

	if len(updates) == 0 {
		return
	}
	debug.LogEvery(50, "led", "flush: batch=%d", len(updates))
	if err := s.c.SetLEDBatch(updates); err != nil {
		s.m.log.Warn("led flush", zap.String("id", s.c.ID()), zap.Error(err))
	}
}

// GridLEDs renders steps page*8 .. page*8+7 of p as Launchpad LEDs. Drum
// voice 0 is the top row; melodic pitch 0 is the bottom row.
func GridLEDs(p *pattern.Pattern, snap playback.Snapshot, page int, playing bool) []midi.LEDUpdate {
	var leds []midi.LEDUpdate
	melodic := p.Mode() == pattern.ModeMelodic

	for row := 0; row < midi.GridRows; row++ {
		v := midi.GridRows - 1 - row
		if melodic {
			v = row
		}
		if v >= p.Voices() {
			continue
		}
		for col := 0; col < midi.GridCols; col++ {
			step := page*midi.GridCols + col
			if step >= p.Steps() {
				continue
			}

			led := midi.LEDUpdate{Row: row, Col: col, Color: colorStepEmpty}
			switch {
			case melodic && hasNote(p, step, v):
				led.Color = ColorStep
			case melodic && p.Held(step, v):
				led.Color = colorHeld
			case !melodic && p.Active(v, step):
				led.Color = ColorStep
			}
			if snap.Playing && snap.Step == step {
				led.Color = colorPlayhead
				led.Channel = midi.ChannelPulse
			}
			leds = append(leds, led)
		}
	}

	pages := (p.Steps() + midi.GridCols - 1) / midi.GridCols
	for col := 0; col < midi.GridCols && col < pages; col++ {
		c := ColorPage
		if col == page {
			c = colorPageOn
		}
		leds = append(leds, midi.LEDUpdate{Row: midi.GridRows, Col: col, Color: c})
	}

	play := colorStopped
	if playing {
		play = colorPlaying
	}
	leds = append(leds,
		midi.LEDUpdate{Row: scenePlay, Col: midi.GridCols, Color: play},
		midi.LEDUpdate{Row: sceneTempoUp, Col: midi.GridCols, Color: ColorCommand},
		midi.LEDUpdate{Row: sceneTempoDown, Col: midi.GridCols, Color: ColorCommand},
		midi.LEDUpdate{Row: sceneClear, Col: midi.GridCols, Color: ColorCommand},
	)
	return leds
}

func hasNote(p *pattern.Pattern, step, pitch int) bool {
	_, ok := p.NoteAt(step, pitch)
	return ok
}
