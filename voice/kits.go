package voice

// Kind selects the synthesized sound for a drum voice
type Kind int

const (
	KindKick Kind = iota
	KindSnare
	KindClosedHat
	KindOpenHat
	KindTom
	KindCymbal
	KindClap
	KindPerc
	KindTone
)

// Voice is one sound in a kit
type Voice struct {
	ID   string
	Name string
	Note uint8 // MIDI note when played through a MIDI backend
	Kind Kind
}

// Kit is an ordered set of voices. Row i of a drum pattern plays Voices[i].
type Kit struct {
	Name   string
	Voices []Voice
}

// Voice finds a voice by id
func (k Kit) Voice(id string) (Voice, bool) {
	for _, v := range k.Voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// IDs returns the voice ids in row order
func (k Kit) IDs() []string {
	ids := make([]string, len(k.Voices))
	for i, v := range k.Voices {
		ids[i] = v.ID
	}
	return ids
}

// Truncate returns a kit with at most n voices
func (k Kit) Truncate(n int) Kit {
	if n < 0 {
		n = 0
	}
	if n >= len(k.Voices) {
		return k
	}
	return Kit{Name: k.Name, Voices: append([]Voice(nil), k.Voices[:n]...)}
}

// slot layout shared by the 16 voice hardware maps
var slots = [16]struct {
	id   string
	name string
	kind Kind
}{
	{"kick", "Kick", KindKick},
	{"snare", "Snare", KindSnare},
	{"closed-hh", "Closed HH", KindClosedHat},
	{"open-hh", "Open HH", KindOpenHat},
	{"low-tom", "Low Tom", KindTom},
	{"mid-tom", "Mid Tom", KindTom},
	{"high-tom", "High Tom", KindTom},
	{"crash", "Crash", KindCymbal},
	{"ride", "Ride", KindCymbal},
	{"clap", "Clap", KindClap},
	{"rimshot", "Rimshot", KindPerc},
	{"cowbell", "Cowbell", KindPerc},
	{"clave", "Clave", KindPerc},
	{"maracas", "Maracas", KindPerc},
	{"low-conga", "Low Conga", KindTom},
	{"high-conga", "High Conga", KindTom},
}

func slotKit(name string, notes [16]uint8) Kit {
	k := Kit{Name: name, Voices: make([]Voice, len(slots))}
	for i, s := range slots {
		k.Voices[i] = Voice{ID: s.id, Name: s.name, Note: notes[i], Kind: s.kind}
	}
	return k
}

// Kits contains all built-in kits
var Kits = map[string]Kit{
	"808": {
		Name: "808",
		Voices: []Voice{
			{ID: "kick", Name: "Kick", Note: 36, Kind: KindKick},
			{ID: "hihat", Name: "HiHat", Note: 42, Kind: KindClosedHat},
			{ID: "snare", Name: "Snare", Note: 38, Kind: KindSnare},
		},
	},
	"gm": slotKit("General MIDI", [16]uint8{
		36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63,
	}),
	"rd8": slotKit("Behringer RD-8", [16]uint8{
		36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63, // snare is 40 on the RD-8
	}),
	"tr8s": slotKit("Roland TR-8S", [16]uint8{
		36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63,
	}),
	"er1": slotKit("Korg ER-1", [16]uint8{
		36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63,
	}),
}

// DefaultKit is the default kit name
const DefaultKit = "808"

// KitNames returns the kit names in display order
func KitNames() []string {
	return []string{"808", "gm", "rd8", "tr8s", "er1"}
}

// GetKit returns a kit by name, defaulting to DefaultKit if not found
func GetKit(name string) Kit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// HasKit reports whether a kit name is known
func HasKit(name string) bool {
	_, ok := Kits[name]
	return ok
}
