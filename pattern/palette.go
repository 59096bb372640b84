package pattern

// PaletteNote is one row of the piano roll
type PaletteNote struct {
	Name string
	MIDI uint8
}

// Palette maps pitch indices to notes. Row 0 is the lowest pitch.
type Palette []PaletteNote

// DefaultPalette is one octave of C major, C4 to C5
var DefaultPalette = Palette{
	{Name: "C4", MIDI: 60},
	{Name: "D4", MIDI: 62},
	{Name: "E4", MIDI: 64},
	{Name: "F4", MIDI: 65},
	{Name: "G4", MIDI: 67},
	{Name: "A4", MIDI: 69},
	{Name: "B4", MIDI: 71},
	{Name: "C5", MIDI: 72},
}

// MIDI returns the note number for a pitch index, ok=false if out of range
func (p Palette) MIDI(pitch int) (uint8, bool) {
	if pitch < 0 || pitch >= len(p) {
		return 0, false
	}
	return p[pitch].MIDI, true
}

// Name returns the display name for a pitch index
func (p Palette) Name(pitch int) string {
	if pitch < 0 || pitch >= len(p) {
		return "?"
	}
	return p[pitch].Name
}
