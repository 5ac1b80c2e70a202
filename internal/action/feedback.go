package action

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gen2brain/beeep"
)

// Announcer gives the user feedback that an action happened.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// NotifyAnnouncer shows a desktop notification.
type NotifyAnnouncer struct {
	Title string
}

func (n NotifyAnnouncer) Announce(_ context.Context, text string) error {
	if err := beeep.Notify(n.Title, text, ""); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// SayAnnouncer speaks text with the platform's speech command.
type SayAnnouncer struct {
	// Command builds the process to run; nil uses the platform default.
	Command func(ctx context.Context, text string) *exec.Cmd
}

func (s SayAnnouncer) Announce(ctx context.Context, text string) error {
	build := s.Command
	if build == nil {
		build = platformSay
	}
	cmd := build(ctx, text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("speak %q: %w: %s", text, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func platformSay(ctx context.Context, text string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "say", text)
	case "windows":
		script := "Add-Type -AssemblyName System.Speech; " +
			"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak($args[0])"
		return exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script, text)
	default:
		return exec.CommandContext(ctx, "espeak", text)
	}
}

// NopAnnouncer stays silent.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, string) error { return nil }
