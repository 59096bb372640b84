package pattern

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidIndex is returned when a voice, step or pitch is out of range.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrInvalidDuration is returned for note durations below one step.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Mode selects how a pattern is interpreted by the scheduler
type Mode string

const (
	ModeDrum    Mode = "drum"
	ModeMelodic Mode = "melodic"
)

// Note is a melodic event starting on a step
type Note struct {
	Pitch    int // index into the note palette
	Duration int // length in steps, >= 1
}

// Pattern is an immutable grid. Drum mode uses cells[voice][step]; melodic
// mode uses notes[step], each slice ordered by pitch. In melodic mode the
// voice dimension is the palette height.
type Pattern struct {
	mode    Mode
	steps   int
	voices  int
	cells   [][]bool
	notes   [][]Note
	version uint64
}

// New returns an empty pattern of the given size.
func New(mode Mode, steps, voices int) (*Pattern, error) {
	if steps <= 0 || voices <= 0 {
		return nil, fmt.Errorf("new pattern %dx%d: %w", voices, steps, ErrInvalidIndex)
	}
	p := &Pattern{mode: mode, steps: steps, voices: voices}
	switch mode {
	case ModeMelodic:
		p.notes = make([][]Note, steps)
	default:
		p.mode = ModeDrum
		p.cells = make([][]bool, voices)
		for v := range p.cells {
			p.cells[v] = make([]bool, steps)
		}
	}
	return p, nil
}

func (p *Pattern) Mode() Mode      { return p.mode }
func (p *Pattern) Steps() int      { return p.steps }
func (p *Pattern) Voices() int     { return p.voices }
func (p *Pattern) Version() uint64 { return p.version }

// Active reports whether a drum cell is on. Out of range reads are false.
func (p *Pattern) Active(voice, step int) bool {
	if p.mode != ModeDrum || !p.inRange(voice, step) {
		return false
	}
	return p.cells[voice][step]
}

// Row returns a copy of one drum row
func (p *Pattern) Row(voice int) []bool {
	if p.mode != ModeDrum || voice < 0 || voice >= p.voices {
		return nil
	}
	return append([]bool(nil), p.cells[voice]...)
}

// NotesAt returns a copy of the notes starting at step, ordered by pitch
func (p *Pattern) NotesAt(step int) []Note {
	if p.mode != ModeMelodic || step < 0 || step >= p.steps {
		return nil
	}
	return append([]Note(nil), p.notes[step]...)
}

// NoteAt returns the note at (step, pitch) if one starts there
func (p *Pattern) NoteAt(step, pitch int) (Note, bool) {
	if p.mode != ModeMelodic || !p.inRange(pitch, step) {
		return Note{}, false
	}
	for _, n := range p.notes[step] {
		if n.Pitch == pitch {
			return n, true
		}
	}
	return Note{}, false
}

// Held reports whether a note started at an earlier step is still
// sounding at (step, pitch). Notes do not wrap past the last step.
func (p *Pattern) Held(step, pitch int) bool {
	if p.mode != ModeMelodic || !p.inRange(pitch, step) {
		return false
	}
	for s := step - 1; s >= 0; s-- {
		if n, ok := p.NoteAt(s, pitch); ok {
			return s+n.Duration > step
		}
	}
	return false
}

// Empty reports whether nothing is active
func (p *Pattern) Empty() bool {
	if p.mode == ModeMelodic {
		for _, ns := range p.notes {
			if len(ns) > 0 {
				return false
			}
		}
		return true
	}
	for _, row := range p.cells {
		for _, on := range row {
			if on {
				return false
			}
		}
	}
	return true
}

func (p *Pattern) inRange(voice, step int) bool {
	return voice >= 0 && voice < p.voices && step >= 0 && step < p.steps
}

// The helpers below build new patterns. The receiver is never modified;
// only the touched row or step slice is copied.

func (p *Pattern) clone() *Pattern {
	c := *p
	if p.cells != nil {
		c.cells = append([][]bool(nil), p.cells...)
	}
	if p.notes != nil {
		c.notes = append([][]Note(nil), p.notes...)
	}
	c.version = p.version + 1
	return &c
}

func (p *Pattern) withToggle(voice, step int) (*Pattern, error) {
	if p.mode != ModeDrum {
		return nil, fmt.Errorf("toggle cell in %s pattern: %w", p.mode, ErrInvalidIndex)
	}
	if !p.inRange(voice, step) {
		return nil, fmt.Errorf("toggle cell (%d,%d) in %dx%d: %w", voice, step, p.voices, p.steps, ErrInvalidIndex)
	}
	c := p.clone()
	row := append([]bool(nil), p.cells[voice]...)
	row[step] = !row[step]
	c.cells[voice] = row
	return c, nil
}

func (p *Pattern) withNoteToggle(step, pitch, duration int) (*Pattern, error) {
	if p.mode != ModeMelodic {
		return nil, fmt.Errorf("toggle note in %s pattern: %w", p.mode, ErrInvalidIndex)
	}
	if !p.inRange(pitch, step) {
		return nil, fmt.Errorf("toggle note step=%d pitch=%d in %dx%d: %w", step, pitch, p.voices, p.steps, ErrInvalidIndex)
	}
	if duration < 1 {
		return nil, fmt.Errorf("toggle note duration=%d: %w", duration, ErrInvalidDuration)
	}

	c := p.clone()
	old := p.notes[step]
	ns := make([]Note, 0, len(old)+1)
	removed := false
	for _, n := range old {
		if n.Pitch == pitch {
			removed = true
			continue
		}
		ns = append(ns, n)
	}
	if !removed {
		ns = append(ns, Note{Pitch: pitch, Duration: duration})
		sort.Slice(ns, func(i, j int) bool { return ns[i].Pitch < ns[j].Pitch })
	}
	c.notes[step] = ns
	return c, nil
}

func (p *Pattern) withClearRow(voice int) (*Pattern, error) {
	if voice < 0 || voice >= p.voices {
		return nil, fmt.Errorf("clear row %d of %d: %w", voice, p.voices, ErrInvalidIndex)
	}
	c := p.clone()
	if p.mode == ModeMelodic {
		for s, old := range p.notes {
			ns := make([]Note, 0, len(old))
			for _, n := range old {
				if n.Pitch != voice {
					ns = append(ns, n)
				}
			}
			c.notes[s] = ns
		}
		return c, nil
	}
	c.cells[voice] = make([]bool, p.steps)
	return c, nil
}

func (p *Pattern) resized(steps, voices int) (*Pattern, error) {
	n, err := New(p.mode, steps, voices)
	if err != nil {
		return nil, err
	}
	n.version = p.version + 1

	if p.mode == ModeMelodic {
		for s := 0; s < steps && s < p.steps; s++ {
			for _, note := range p.notes[s] {
				if note.Pitch < voices {
					n.notes[s] = append(n.notes[s], note)
				}
			}
		}
		return n, nil
	}

	for v := 0; v < voices && v < p.voices; v++ {
		copy(n.cells[v], p.cells[v])
	}
	return n, nil
}
