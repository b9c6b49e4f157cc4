package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/j-emboi/sarcastic-serenity/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Theme != "dark" {
		t.Errorf("expected theme 'dark', got %q", cfg.Theme)
	}
	if cfg.PatternID != "box" || cfg.Preset != "pink" {
		t.Errorf("unexpected defaults pattern=%q preset=%q", cfg.PatternID, cfg.Preset)
	}
	if cfg.OutputDeviceID != -1 {
		t.Error("expected output device to default to -1")
	}
	if !cfg.CuesEnabled || !cfg.VoiceEnabled {
		t.Error("expected cues and voice enabled by default")
	}
	if cfg.FrameRate != 60 {
		t.Errorf("expected 60 fps, got %d", cfg.FrameRate)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		Theme:          "dracula",
		PatternID:      "relaxation",
		Preset:         "rain",
		Volume:         0.75,
		Serendipity:    0.9,
		CueVolume:      0.2,
		CuesEnabled:    true,
		OutputDeviceID: 3,
		OutputBackend:  "speaker",
		FrameRate:      30,
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded != cfg {
		t.Errorf("round trip: want %+v got %+v", cfg, loaded)
	}
}

func TestSaveClampsLevels(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Volume = 3
	cfg.Serendipity = -1
	cfg.FrameRate = 0
	if err := config.Save(cfg); err != nil {
		t.Fatal(err)
	}
	loaded := config.Load()
	if loaded.Volume != 1 || loaded.Serendipity != 0 || loaded.FrameRate != 60 {
		t.Errorf("unexpected normalisation: %+v", loaded)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Load()
	if cfg.Theme == "" {
		t.Error("expected non-empty theme from defaults")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "serenity", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.Theme != "dark" {
		t.Errorf("expected default theme on corrupt file, got %q", cfg.Theme)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := config.Save(config.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "serenity", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(config.EnvPattern, "calm")
	t.Setenv(config.EnvPreset, " forest ")
	t.Setenv(config.EnvOutput, "")

	cfg := config.ApplyEnv(config.Default())
	if cfg.PatternID != "calm" || cfg.Preset != "forest" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.OutputBackend != "portaudio" {
		t.Errorf("empty env must not override, got %q", cfg.OutputBackend)
	}
}
