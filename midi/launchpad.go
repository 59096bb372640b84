package midi

import (
	"fmt"
	"sync"

	"go-stepseq/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Launchpad X layout: an 8x8 grid of note pads (row 0 at the bottom), a
// right column of scene buttons (col 8) and a top row of CC buttons (row 8).
const (
	GridRows = 8
	GridCols = 8
)

// programmer mode, full brightness, external LED feedback
var launchpadInit = [][]byte{
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F},
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F},
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01},
}

// LaunchpadController handles a Novation Launchpad X
type LaunchpadController struct {
	id       string
	send     func(msg gomidi.Message) error
	stopFunc func()

	mu     sync.Mutex
	closed bool
	sent   uint64

	padChan  chan PadEvent
	noteChan chan NoteEvent
}

// NewLaunchpadController opens both ports and switches the device to
// programmer mode. Either port may be nil.
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		id:       id,
		padChan:  make(chan PadEvent, 32),
		noteChan: make(chan NoteEvent),
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", id, err)
		}
		lp.send = send
		for _, msg := range launchpadInit {
			if err := send(gomidi.SysEx(msg)); err != nil {
				return nil, fmt.Errorf("init %s: %w", id, err)
			}
		}
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, lp.handle)
		if err != nil {
			return nil, fmt.Errorf("open input %s: %w", id, err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

func (lp *LaunchpadController) handle(msg gomidi.Message, timestampms int32) {
	var channel, note, velocity, cc, value uint8
	row, col := -1, -1

	switch {
	case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
		row, col = noteToRowCol(note)
	case msg.GetControlChange(&channel, &cc, &value) && value > 0:
		row, col = ccToRowCol(cc)
		velocity = value
	}
	if row < 0 {
		return
	}
	select {
	case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: velocity}:
	default:
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

// NoteEvents never fires, pads arrive as PadEvents
func (lp *LaunchpadController) NoteEvents() <-chan NoteEvent {
	return lp.noteChan
}

// SetLEDBatch sends one note-on per LED. SysEx batching garbled colors.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.send == nil || lp.closed || len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		if err := lp.send(gomidi.NoteOn(u.Channel, rowColToNote(u.Row, u.Col), nearestColor(u.Color))); err != nil {
			return fmt.Errorf("set led %d,%d: %w", u.Row, u.Col, err)
		}
	}
	lp.sent += uint64(len(updates))
	if lp.sent%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", lp.sent, len(updates))
	}
	return nil
}

// launchpadPalette holds approximate RGB values of palette entries as
// {velocity, R, G, B}
var launchpadPalette = [][4]uint8{
	{0, 0, 0, 0},
	{5, 255, 0, 0},
	{7, 180, 60, 60},
	{9, 255, 100, 0},
	{11, 180, 80, 40},
	{13, 255, 200, 0},
	{19, 0, 100, 0},
	{21, 0, 255, 0},
	{37, 0, 200, 200},
	{43, 40, 60, 120},
	{45, 0, 100, 255},
	{49, 150, 0, 200},
	{53, 255, 80, 180},
	{84, 255, 150, 50},
	{87, 150, 255, 100},
	{97, 180, 180, 60},
	{119, 255, 255, 255},
}

// nearestColor finds the closest palette velocity for an RGB value
func nearestColor(rgb [3]uint8) uint8 {
	best, bestDist := uint8(0), -1
	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])
	for _, p := range launchpadPalette {
		dr, dg, db := r-int(p[1]), g-int(p[2]), b-int(p[3])
		dist := dr*dr + dg*dg + db*db
		if bestDist < 0 || dist < bestDist {
			best, bestDist = p[0], dist
		}
	}
	return best
}

// Close blanks every LED and stops listening
func (lp *LaunchpadController) Close() error {
	var blank []LEDUpdate
	for row := 0; row <= GridRows; row++ {
		for col := 0; col <= GridCols; col++ {
			if row == GridRows && col == GridCols {
				continue // no LED in the corner
			}
			blank = append(blank, LEDUpdate{Row: row, Col: col})
		}
	}
	err := lp.SetLEDBatch(blank)

	lp.mu.Lock()
	if lp.closed {
		lp.mu.Unlock()
		return nil
	}
	lp.closed = true
	lp.mu.Unlock()

	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	close(lp.padChan)
	close(lp.noteChan)
	return err
}

func rowColToNote(row, col int) uint8 {
	if row == GridRows {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return GridRows, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row >= GridRows || col < 0 || col > GridCols {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return GridRows, int(cc - 91)
	}
	return -1, -1
}
