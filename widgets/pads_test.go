package widgets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFace(t *testing.T) {
	var f Face
	f[0][0] = Pad{Color: [3]uint8{255, 0, 0}, Lit: true}
	f[7][8] = Pad{Color: [3]uint8{0, 255, 0}, Lit: true, Pulse: true}

	lines := strings.Split(RenderFace(f), "\n")
	require.Len(t, lines, 9)

	// bottom row, first pad lit
	assert.Contains(t, lines[8], "■")
	// second line is grid row 7 with a pulsing scene pad
	assert.Contains(t, lines[1], "◆")
	assert.NotContains(t, lines[0], "■")
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{
		{Title: "Edit", Keys: []KeyBinding{{Key: "space", Desc: "toggle step"}}},
		{Title: "Transport", Keys: []KeyBinding{{Key: "p", Desc: "play/stop"}, {Key: "q", Desc: "quit"}}},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Edit")
	assert.Contains(t, lines[0], "Transport")
	assert.Contains(t, lines[1], "toggle step")
	assert.Contains(t, lines[1], "play/stop")
	assert.Contains(t, lines[2], "quit")
}

func TestRgbToHex(t *testing.T) {
	assert.Equal(t, "#ea4974", rgbToHex([3]uint8{234, 73, 116}))
}
