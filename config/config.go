package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid config")

// BackendType selects where triggers go
type BackendType string

const (
	BackendSynth BackendType = "synth" // built-in synth through the sound card
	BackendMIDI  BackendType = "midi"  // note messages to an external device
	BackendLog   BackendType = "log"   // silent, triggers go to the debug log
)

// MIDIConfig holds MIDI port settings
type MIDIConfig struct {
	Port     string `yaml:"port,omitempty"`     // output port, substring match; empty picks the first
	Channel  int    `yaml:"channel"`            // 1-16
	Keyboard string `yaml:"keyboard,omitempty"` // input port used for note entry
}

// AudioConfig holds synth settings
type AudioConfig struct {
	SampleRate int `yaml:"sampleRate"`
	Preset     int `yaml:"preset"`
}

// Config is the main configuration structure
type Config struct {
	Mode                string      `yaml:"mode"` // drum or melodic
	StepsLength         int         `yaml:"stepsLength"`
	VoiceCount          int         `yaml:"voiceCount"`
	BPM                 float64     `yaml:"bpm"`
	SubdivisionsPerBeat int         `yaml:"subdivisionsPerBeat"`
	LookaheadWindowMs   float64     `yaml:"lookaheadWindowMs"`
	DispatchLeadMs      float64     `yaml:"dispatchLeadMs"`
	Kit                 string      `yaml:"kit"`
	Backend             BackendType `yaml:"backend"`
	Gate                float64     `yaml:"gate"`
	HardMuteOnStop      bool        `yaml:"hardMuteOnStop"`
	MIDI                MIDIConfig  `yaml:"midi"`
	Audio               AudioConfig `yaml:"audio"`

	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"logFile,omitempty"`
	Palette string `yaml:"palette,omitempty"` // GIMP .gpl file, empty for the built-in one
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:                "drum",
		StepsLength:         16,
		VoiceCount:          3,
		BPM:                 120,
		SubdivisionsPerBeat: 4,
		LookaheadWindowMs:   100,
		DispatchLeadMs:      20,
		Kit:                 "808",
		Backend:             BackendSynth,
		Gate:                0.8,
		MIDI:                MIDIConfig{Channel: 10},
		Audio:               AudioConfig{SampleRate: 44100},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-stepseq"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from the default path, or returns defaults if
// there is none
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file over the defaults. A missing file yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return c.SaveFile(filepath.Join(dir, "config.yaml"))
}

// SaveFile writes the config to path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every field against its allowed range
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}
	switch {
	case c.Mode != "drum" && c.Mode != "melodic":
		return bad("mode %q", c.Mode)
	case c.StepsLength <= 0:
		return bad("stepsLength %d", c.StepsLength)
	case c.VoiceCount <= 0:
		return bad("voiceCount %d", c.VoiceCount)
	case c.BPM <= 0:
		return bad("bpm %g", c.BPM)
	case c.SubdivisionsPerBeat <= 0:
		return bad("subdivisionsPerBeat %d", c.SubdivisionsPerBeat)
	case c.LookaheadWindowMs <= 0:
		return bad("lookaheadWindowMs %g", c.LookaheadWindowMs)
	case c.DispatchLeadMs < 0 || c.DispatchLeadMs > c.LookaheadWindowMs:
		return bad("dispatchLeadMs %g", c.DispatchLeadMs)
	case c.Gate <= 0 || c.Gate > 1:
		return bad("gate %g", c.Gate)
	case c.MIDI.Channel < 1 || c.MIDI.Channel > 16:
		return bad("midi channel %d", c.MIDI.Channel)
	case c.Audio.SampleRate <= 0:
		return bad("sampleRate %d", c.Audio.SampleRate)
	}
	switch c.Backend {
	case BackendSynth, BackendMIDI, BackendLog:
	default:
		return bad("backend %q", c.Backend)
	}
	return nil
}

// Lookahead returns the lookahead window as a duration
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.LookaheadWindowMs * float64(time.Millisecond))
}

// DispatchLead returns the dispatch lead as a duration
func (c *Config) DispatchLead() time.Duration {
	return time.Duration(c.DispatchLeadMs * float64(time.Millisecond))
}
