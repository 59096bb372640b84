package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	}
	return "unknown"
}

// PadEvent is sent when a pad is pressed on a grid controller.
// Row 0 is the bottom row.
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// NoteEvent is sent when a key is played on a keyboard
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// LEDUpdate sets one pad LED
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8 // RGB, the controller maps it to its palette
	Channel  uint8    // ChannelStatic, ChannelFlash or ChannelPulse
}

// LED channel modes
const (
	ChannelStatic uint8 = 0
	ChannelFlash  uint8 = 1
	ChannelPulse  uint8 = 2
)

// Controller is a MIDI input device. Grid controllers send pad events and
// take LED updates; keyboards send note events and ignore LEDs.
type Controller interface {
	ID() string
	Type() ControllerType

	PadEvents() <-chan PadEvent
	NoteEvents() <-chan NoteEvent

	SetLEDBatch(updates []LEDUpdate) error

	Close() error
}
