// Package config manages persistent user preferences for serenity.
// Settings are stored as JSON at os.UserConfigDir()/serenity/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override the stored preferences for one run.
const (
	EnvPattern = "SERENITY_PATTERN"
	EnvPreset  = "SERENITY_PRESET"
	EnvOutput  = "SERENITY_OUTPUT"
)

// Config holds all persistent user preferences.
type Config struct {
	Theme          string  `json:"theme"`
	PatternID      string  `json:"pattern_id"`
	Preset         string  `json:"preset"`
	Volume         float64 `json:"volume"`
	Serendipity    float64 `json:"serendipity"`
	CueVolume      float64 `json:"cue_volume"`
	CuesEnabled    bool    `json:"cues_enabled"`
	VoiceEnabled   bool    `json:"voice_enabled"`
	OutputDeviceID int     `json:"output_device_id"`
	OutputBackend  string  `json:"output_backend"`
	FrameRate      int     `json:"frame_rate"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Theme:          "dark",
		PatternID:      "box",
		Preset:         "pink",
		Volume:         0.5,
		Serendipity:    0.3,
		CueVolume:      0.5,
		CuesEnabled:    true,
		VoiceEnabled:   true,
		OutputDeviceID: -1,
		OutputBackend:  "portaudio",
		FrameRate:      60,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "serenity", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned, never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg.normalize()
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg.normalize(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv returns cfg with any SERENITY_* overrides applied.
func ApplyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv(EnvPattern)); v != "" {
		cfg.PatternID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPreset)); v != "" {
		cfg.Preset = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOutput)); v != "" {
		cfg.OutputBackend = v
	}
	return cfg
}

// normalize clamps levels into [0, 1] and repairs a nonsensical frame rate.
func (c Config) normalize() Config {
	c.Volume = clamp01(c.Volume)
	c.Serendipity = clamp01(c.Serendipity)
	c.CueVolume = clamp01(c.CueVolume)
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		c.FrameRate = 60
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
