package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a new zerolog logger with console and file output
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel is New with the minimum level parsed from level.
func NewWithLevel(level string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var out io.Writer = console
	if logFile, err := openLogFile(LogPath()); err == nil {
		// Multi-writer: console + file
		out = zerolog.MultiLevelWriter(console, logFile)
	}

	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().Timestamp().Caller().Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// LogPath returns platform-specific log file path
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "voiceclip", "voiceclip.log")
}
