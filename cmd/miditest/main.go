package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-stepseq/midi"
	"go-stepseq/voice"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "detect":
		err = detectLaunchpad()
	case "leds":
		err = testLEDs()
	case "audition":
		err = audition(arg(2), arg(3))
	case "poll":
		pollDevices()
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		if errors.Is(err, midi.ErrScanTimeout) {
			fmt.Println("Fix: sudo killall coreaudiod midiserver")
		}
		os.Exit(1)
	}
}

func arg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                   - List all MIDI ports")
	fmt.Println("  detect                 - Find a Launchpad")
	fmt.Println("  leds                   - Light a Launchpad diagonal")
	fmt.Println("  audition [port] [kit]  - Play every voice of a kit on an output")
	fmt.Println("  poll                   - Watch for controllers coming and going")
	fmt.Println("")
	fmt.Printf("Kits: %s\n", strings.Join(voice.KitNames(), ", "))
}

func listPorts() error {
	fmt.Println("=== MIDI Ports ===")
	fmt.Printf("(waiting up to %v...)\n", midi.ScanTimeout)

	ins, outs, err := midi.Ports(midi.ScanTimeout)
	if err != nil {
		return err
	}
	fmt.Println("\nInputs:")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\nOutputs:")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

func detectLaunchpad() error {
	fmt.Println("Looking for Launchpad...")

	in, err := midi.FindIn("launchpad")
	if err != nil {
		return err
	}
	out, err := midi.FindOut("launchpad")
	if err != nil {
		return err
	}
	fmt.Printf("Found input:  %s\n", in.String())
	fmt.Printf("Found output: %s\n", out.String())
	fmt.Println("\nLaunchpad detected!")
	return nil
}

func testLEDs() error {
	fmt.Println("Testing LED control...")

	in, err := midi.FindIn("launchpad")
	if err != nil {
		return err
	}
	out, err := midi.FindOut("launchpad")
	if err != nil {
		return err
	}
	lp, err := midi.NewLaunchpadController(in.String(), in, out)
	if err != nil {
		return err
	}
	defer lp.Close()

	fmt.Println("Lighting up diagonal...")
	for i := 0; i < midi.GridRows; i++ {
		err := lp.SetLEDBatch([]midi.LEDUpdate{{Row: i, Col: i, Color: [3]uint8{0, 255, 0}}})
		if err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Press Enter to clear...")
	fmt.Scanln()
	fmt.Println("Done!")
	return nil
}

func audition(port, kitName string) error {
	if kitName == "" {
		kitName = voice.DefaultKit
	}
	if !voice.HasKit(kitName) {
		return fmt.Errorf("kit %q: %w", kitName, voice.ErrVoiceUnavailable)
	}
	kit := voice.GetKit(kitName)

	b, err := voice.OpenMIDIBackend(port, voice.MIDIOptions{
		Channel:      9,
		StepDuration: func() time.Duration { return 250 * time.Millisecond },
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Load(kit); err != nil {
		return err
	}

	fmt.Printf("Auditioning %s (%d voices) on channel 10\n", kit.Name, len(kit.Voices))
	at := time.Now().Add(50 * time.Millisecond)
	for _, v := range kit.Voices {
		fmt.Printf("  %-12s note %d\n", v.Name, v.Note)
		if err := b.Trigger(voice.Trigger{VoiceID: v.ID, Duration: 1, At: at}); err != nil {
			return err
		}
		time.Sleep(time.Until(at.Add(400 * time.Millisecond)))
		at = at.Add(400 * time.Millisecond)
	}
	return nil
}

func pollDevices() {
	fmt.Println("Polling for controllers...")
	fmt.Println("Connect/disconnect a Launchpad to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := midi.NewDeviceManager("")
	go dm.Run(ctx)

	for ev := range dm.Events() {
		switch ev.Type {
		case midi.DeviceConnected:
			fmt.Printf("[%s] connected %s (%s)\n", time.Now().Format("15:04:05"), ev.ID, ev.Controller.Type())
		case midi.DeviceDisconnected:
			fmt.Printf("[%s] disconnected %s\n", time.Now().Format("15:04:05"), ev.ID)
		}
	}
}
