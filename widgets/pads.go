package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Face is a Launchpad seen from above: Face[row][col] with row 0 at the
// bottom. Row 8 is the top button row and col 8 the scene column.
type Face [9][9]Pad

// Pad is one button
type Pad struct {
	Color [3]uint8
	Lit   bool
	Pulse bool
}

var unlit = lipgloss.NewStyle().Foreground(lipgloss.Color("#3a3a3a"))

// RenderPad renders a single pad: ■ lit, □ dark, ◆ pulsing
func RenderPad(p Pad) string {
	if !p.Lit {
		return unlit.Render("□")
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(p.Color)))
	if p.Pulse {
		return style.Bold(true).Render("◆")
	}
	return style.Render("■")
}

// RenderFace draws the whole controller, top row first. The corner above
// the scene column has no button.
func RenderFace(f Face) string {
	lines := make([]string, 0, len(f))
	for row := len(f) - 1; row >= 0; row-- {
		cells := make([]string, 0, len(f[row]))
		for col := range f[row] {
			if row == 8 && col == 8 {
				cells = append(cells, " ")
				continue
			}
			cells = append(cells, RenderPad(f[row][col]))
		}
		if row == 8 {
			lines = append(lines, strings.Join(cells, " "))
			continue
		}
		// gap before the scene column
		lines = append(lines, strings.Join(cells[:8], " ")+"  "+cells[8])
	}
	return strings.Join(lines, "\n")
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(color [3]uint8, name, desc string) string {
	return fmt.Sprintf("  %s %s - %s", RenderPad(Pad{Color: color, Lit: true}), name, desc)
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

var sectionTitle = lipgloss.NewStyle().Bold(true)

// RenderKeyHelp lays sections out side by side
func RenderKeyHelp(sections []KeySection) string {
	blocks := make([]string, 0, len(sections)*2)
	for i, sec := range sections {
		var lines []string
		if sec.Title != "" {
			lines = append(lines, sectionTitle.Render(sec.Title))
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("%-7s %s", k.Key, k.Desc))
		}
		if i > 0 {
			blocks = append(blocks, "    ")
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
}

func rgbToHex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
