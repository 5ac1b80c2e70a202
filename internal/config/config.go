package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const appName = "voiceclip"

// Feedback modes for the confirmation announcer.
const (
	FeedbackNotify = "notify"
	FeedbackSay    = "say"
	FeedbackNone   = "none"
)

// Microphone capture backends.
const (
	BackendPortAudio = "portaudio"
	BackendMiniaudio = "miniaudio"
)

type Config struct {
	LogLevel      string           `json:"log_level"`
	Hotkey        string           `json:"hotkey"`
	HotkeyDarwin  string           `json:"hotkey_darwin"`
	StartEnabled  bool             `json:"start_enabled"`
	Microphone    MicrophoneConfig `json:"microphone"`
	Speaker       SpeakerConfig    `json:"speaker"`
	Recognizer    RecognizerConfig `json:"recognizer"`
	Actions       ActionsConfig    `json:"actions"`
	ReloadGraceMs int              `json:"reload_grace_ms"`
	MetricsAddr   string           `json:"metrics_addr"` // empty disables /metrics
}

type MicrophoneConfig struct {
	Device  string `json:"device"`  // display name, empty = first device
	Backend string `json:"backend"` // "portaudio" or "miniaudio"
}

// SpeakerConfig controls loopback capture of a render device.
type SpeakerConfig struct {
	Enabled bool   `json:"enabled"`
	Device  string `json:"device"`
}

type RecognizerConfig struct {
	Model           string  `json:"model"`    // "base.en", "small.en", etc.
	Language        string  `json:"language"` // "en", "auto", etc.
	Threads         int     `json:"threads"`
	MaxAlternatives int     `json:"max_alternatives"`
	Words           bool    `json:"words"`
	SilenceMs       int     `json:"silence_ms"`
	MaxUtteranceMs  int     `json:"max_utterance_ms"`
	RMSThreshold    float64 `json:"rms_threshold"`
}

type ActionsConfig struct {
	HighlightGroup string `json:"highlight_group"`
	HighlightTag   string `json:"highlight_tag"`
	WebhookURL     string `json:"webhook_url"`
	Feedback       string `json:"feedback"` // "notify", "say" or "none"
	FeedbackText   string `json:"feedback_text"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Hotkey:       "Alt+Shift+C",
		HotkeyDarwin: "Ctrl+Shift+C",
		StartEnabled: true,
		Microphone: MicrophoneConfig{
			Backend: BackendPortAudio,
		},
		Speaker: SpeakerConfig{
			Enabled: false,
		},
		Recognizer: RecognizerConfig{
			Model:           "base.en",
			Language:        "en",
			Threads:         0, // Auto-detect
			MaxAlternatives: 10,
			Words:           true,
			SilenceMs:       500,
			MaxUtteranceMs:  10_000,
			RMSThreshold:    300,
		},
		Actions: ActionsConfig{
			HighlightGroup: "PERSONAL_HIGHLIGHT_GROUP",
			HighlightTag:   "MANUAL",
			Feedback:       FeedbackNotify,
			FeedbackText:   "Clip Saved!",
		},
		ReloadGraceMs: 100,
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile overlays the JSON file at path onto the defaults. A missing file is
// not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveFile(configPath())
}

func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// ReloadGrace is the pause between stopping and reopening a device.
func (c *Config) ReloadGrace() time.Duration {
	if c.ReloadGraceMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.ReloadGraceMs) * time.Millisecond
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}
