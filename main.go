package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"go-stepseq/audio"
	"go-stepseq/config"
	"go-stepseq/debug"
	"go-stepseq/midi"
	"go-stepseq/scheduler"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/tui"
	"go-stepseq/voice"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/go-stepseq/config.yaml)")
	backend := flag.String("backend", "", "override the backend: synth, midi or log")
	headless := flag.Bool("headless", false, "play without the TUI until interrupted")
	writeConfig := flag.Bool("write-config", false, "write the effective config and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig {
		if err := saveConfig(cfg, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, backend string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Backend = config.BackendType(backend)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func saveConfig(cfg *config.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveFile(path)
}

func run(cfg *config.Config, headless bool) error {
	if cfg.Debug {
		if err := debug.Enable(cfg.LogFile); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}
	log := debug.L()

	palette, err := theme.Load(cfg.Palette)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// backends size notes from the tempo, which lives in the manager
	var mgr *sequencer.Manager
	stepDuration := func() time.Duration {
		if mgr == nil {
			return 125 * time.Millisecond
		}
		return mgr.StepDuration()
	}

	backend, owned, err := openBackend(cfg, stepDuration, log)
	if err != nil {
		return err
	}

	opts := sequencer.OptionsFromConfig(cfg)
	opts.Logger = log
	mgr, err = sequencer.NewManager(opts, backend)
	if err != nil {
		backend.Close()
		for _, c := range owned {
			c.Close()
		}
		return err
	}
	for _, c := range owned {
		mgr.Own(c)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	deviceMgr := midi.NewDeviceManager(cfg.MIDI.Keyboard)
	go deviceMgr.Run(ctx)

	if headless || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runHeadless(ctx, mgr, deviceMgr)
	}

	m := tui.NewModel(mgr, deviceMgr, theme.New(palette))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func openBackend(cfg *config.Config, stepDuration func() time.Duration, log *zap.Logger) (voice.Backend, []io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSynth:
		synth := voice.NewSynth(voice.SynthOptions{
			SampleRate:   cfg.Audio.SampleRate,
			Preset:       cfg.Audio.Preset,
			Gate:         cfg.Gate,
			StepDuration: stepDuration,
			Logger:       log,
		})
		out, err := audio.Open(cfg.Audio.SampleRate, 0, synth, log)
		if err != nil {
			return nil, nil, err
		}
		return synth, []io.Closer{out}, nil

	case config.BackendMIDI:
		b, err := voice.OpenMIDIBackend(cfg.MIDI.Port, voice.MIDIOptions{
			Channel:      uint8(cfg.MIDI.Channel - 1),
			Gate:         cfg.Gate,
			StepDuration: stepDuration,
			Logger:       log,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil

	case config.BackendLog:
		return voice.NewRecorder(log), nil, nil
	}
	return nil, nil, fmt.Errorf("backend %q: %w", cfg.Backend, config.ErrInvalidConfig)
}

// runHeadless plays the pattern until interrupted. Controllers still edit it.
func runHeadless(ctx context.Context, mgr *sequencer.Manager, deviceMgr *midi.DeviceManager) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	st := mgr.State()
	fmt.Printf("go-stepseq  %s  %.0fbpm  %d steps  kit:%s\n", st.Mode, st.Tempo, st.Steps, st.Kit)
	fmt.Println("Connect MIDI devices any time - they'll be detected automatically")
	fmt.Println("Ctrl+C to exit")

	if err := mgr.Play(); err != nil {
		return err
	}

	for {
		select {
		case <-sig:
			return nil
		case <-ctx.Done():
			return nil
		case ev, ok := <-deviceMgr.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case midi.DeviceConnected:
				mgr.AttachController(ev.Controller)
				fmt.Printf("connected %s (%s)\n", ev.ID, ev.Controller.Type())
			case midi.DeviceDisconnected:
				mgr.DetachController(ev.ID)
				fmt.Printf("disconnected %s\n", ev.ID)
			}
		case err := <-mgr.Errors():
			var te *scheduler.TriggerError
			if errors.As(err, &te) {
				fmt.Fprintf(os.Stderr, "step %d: %v\n", te.Step, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}
