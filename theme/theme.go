package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme maps the sequencer views onto a palette
type Theme struct {
	Palette *Palette
	Glyphs  Glyphs
	Styles  Styles
}

// Glyphs drawn in the step grid
type Glyphs struct {
	Rest     rune // · nothing on this step
	Hit      rune // ● drum hit or note start
	Hold     rune // ━ sustained part of a note
	Playhead rune // ▶ step being heard

	CursorRest     rune // ○
	CursorHit      rune // ◉
	CursorPlayhead rune // ▷

	NoVoice rune // - row past the end of the kit
}

// Styles for each element the TUI draws
type Styles struct {
	Header   lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Label    lipgloss.Style
	Selected lipgloss.Style

	Rest     lipgloss.Style
	Hit      lipgloss.Style
	Playhead lipgloss.Style
	Cursor   lipgloss.Style
}

// Palette positions (0-1) for each element
const (
	posHelp     = 0.2
	posLabel    = 0.4
	posHeader   = 0.5
	posCursor   = 0.6
	posHit      = 0.7
	posError    = 0.8
	posPlayhead = 1.0
)

func New(palette *Palette) *Theme {
	fg := func(pos float64) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(color(palette.Lookup(pos)))
	}
	return &Theme{
		Palette: palette,
		Glyphs: Glyphs{
			Rest:     '·',
			Hit:      '●',
			Hold:     '━',
			Playhead: '▶',

			CursorRest:     '○',
			CursorHit:      '◉',
			CursorPlayhead: '▷',

			NoVoice: '-',
		},
		Styles: Styles{
			Header:   fg(posHeader),
			Help:     fg(posHelp),
			Error:    fg(posError),
			Label:    fg(posLabel),
			Selected: fg(posHeader).Bold(true),

			Rest:     fg(posLabel),
			Hit:      fg(posHit),
			Playhead: fg(posPlayhead),
			Cursor:   fg(posCursor),
		},
	}
}

// Cell is what one grid position holds at render time
type Cell struct {
	On       bool
	Held     bool
	Cursor   bool
	Playhead bool
}

// RenderCell picks the glyph and style for a cell. The playhead wins over
// the cursor, and a note start wins over a held note.
func (t *Theme) RenderCell(c Cell) string {
	g, s := t.Glyphs, t.Styles
	switch {
	case c.Playhead && c.Cursor:
		return s.Playhead.Render(string(g.CursorPlayhead))
	case c.Playhead:
		return s.Playhead.Render(string(g.Playhead))
	case c.On && c.Cursor:
		return s.Cursor.Render(string(g.CursorHit))
	case c.On:
		return s.Hit.Render(string(g.Hit))
	case c.Held:
		return s.Hit.Render(string(g.Hold))
	case c.Cursor:
		return s.Cursor.Render(string(g.CursorRest))
	}
	return s.Rest.Render(string(g.Rest))
}

func color(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
