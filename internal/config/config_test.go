package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recognizer.MaxAlternatives != 10 {
		t.Errorf("expected 10 alternatives, got %d", cfg.Recognizer.MaxAlternatives)
	}
	if !cfg.Recognizer.Words {
		t.Error("expected word detail enabled by default")
	}
	if cfg.Speaker.Enabled {
		t.Error("speaker loopback should be off by default")
	}
	if cfg.Actions.FeedbackText != "Clip Saved!" {
		t.Errorf("unexpected feedback text %q", cfg.Actions.FeedbackText)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"microphone":{"device":"USB Mic"},"speaker":{"enabled":true}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Microphone.Device != "USB Mic" {
		t.Errorf("expected device override, got %q", cfg.Microphone.Device)
	}
	if !cfg.Speaker.Enabled {
		t.Error("expected speaker enabled")
	}
	if cfg.Microphone.Backend != BackendPortAudio {
		t.Errorf("expected default backend to survive overlay, got %q", cfg.Microphone.Backend)
	}
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Speaker.Device = "Speakers (Realtek)"
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Speaker.Device != "Speakers (Realtek)" {
		t.Errorf("expected saved speaker device, got %q", got.Speaker.Device)
	}
}

func TestReloadGrace(t *testing.T) {
	cfg := &Config{}
	if cfg.ReloadGrace() != 100*time.Millisecond {
		t.Errorf("expected 100ms fallback, got %v", cfg.ReloadGrace())
	}
	cfg.ReloadGraceMs = 250
	if cfg.ReloadGrace() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.ReloadGrace())
	}
}
