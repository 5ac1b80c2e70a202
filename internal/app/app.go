// Package app is the pipeline controller. It owns the microphone and speaker
// channels, the listening state and device reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/audio"
	"github.com/petems/voiceclip/internal/keyword"
	"github.com/petems/voiceclip/internal/observe"
	"github.com/petems/voiceclip/internal/recognizer"
)

// Channel names.
const (
	Microphone = "microphone"
	Speaker    = "speaker"
)

var ErrUnknownChannel = errors.New("unknown channel")

// SessionHook is told when listening is switched on or off. Failures are
// logged and do not block the transition.
type SessionHook interface {
	Resume() error
	Pause() error
}

// StatusUpdater is an interface for reflecting the listening state (e.g.,
// tray icon)
type StatusUpdater interface {
	SetListening(on bool)
}

type Config struct {
	Microphone audio.Driver
	Speaker    audio.Driver // optional, nil disables the speaker channel
	Engines    recognizer.Factory
	Matcher    keyword.Matcher
	Action     keyword.Action
	Hooks      []SessionHook
	Metrics    *observe.Metrics // optional
	Logger     zerolog.Logger

	MaxAlternatives int
	Words           bool
	ReloadGrace     time.Duration
	QueueSize       int // frames buffered per channel, default 64

	StatusUpdater StatusUpdater // Optional - can be nil
}

// Devices names the devices to open. Names that do not match fall back to the
// first device of the right kind.
type Devices struct {
	Microphone     string
	Speaker        string
	SpeakerEnabled bool
}

type App struct {
	engines     recognizer.Factory
	interpreter *keyword.Interpreter
	metrics     *observe.Metrics
	hooks       []SessionHook
	status      StatusUpdater
	log         zerolog.Logger

	maxAlts   int
	words     bool
	grace     time.Duration
	queueSize int

	channels map[string]*channel
	order    []string

	mu      sync.Mutex // serializes Enable/Disable
	enabled atomic.Bool

	heardMu   sync.Mutex
	lastHeard string
}

func New(cfg Config) *App {
	a := &App{
		engines:   cfg.Engines,
		metrics:   cfg.Metrics,
		hooks:     cfg.Hooks,
		status:    cfg.StatusUpdater,
		log:       cfg.Logger,
		maxAlts:   cfg.MaxAlternatives,
		words:     cfg.Words,
		grace:     cfg.ReloadGrace,
		queueSize: cfg.QueueSize,
		channels:  make(map[string]*channel),
	}
	if a.metrics == nil {
		a.metrics = observe.Nop()
	}
	if a.queueSize <= 0 {
		a.queueSize = 64
	}

	matcher := cfg.Matcher
	if matcher == nil {
		matcher = keyword.Default()
	}
	action := cfg.Action
	if action == nil {
		action = func(keyword.Match) {}
	}
	a.interpreter = keyword.NewInterpreter(matcher, action, cfg.Logger)

	a.channels[Microphone] = newChannel(a, Microphone, cfg.Microphone, audio.KindCapture)
	a.order = append(a.order, Microphone)
	if cfg.Speaker != nil {
		a.channels[Speaker] = newChannel(a, Speaker, cfg.Speaker, audio.KindRender)
		a.order = append(a.order, Speaker)
	}
	return a
}

// Start opens the configured devices. Device failures are logged and leave
// that channel inactive; they never fail the call.
func (a *App) Start(ctx context.Context, devs Devices) {
	defer a.recoverPanic("Start")

	a.startChannel(Microphone, devs.Microphone)

	if !devs.SpeakerEnabled {
		return
	}
	if _, ok := a.channels[Speaker]; !ok {
		a.log.Warn().Msg("Speaker capture requested but no loopback driver is available")
		return
	}
	if ctx.Err() != nil {
		return
	}
	a.startChannel(Speaker, devs.Speaker)
}

func (a *App) startChannel(name, device string) {
	ch := a.channels[name]
	if err := ch.capture.Start(device, ch); err != nil {
		observe.Inc(context.Background(), a.metrics.DeviceErrors, name)
		ch.log.Error().Err(err).Str("device", device).Msg("Failed to start capture")
	}
}

// Enable turns listening on. Calling it while enabled does nothing.
func (a *App) Enable() {
	defer a.recoverPanic("Enable")
	a.setEnabled(true)
}

// Disable turns listening off. Frames already queued may still be recognized.
func (a *App) Disable() {
	defer a.recoverPanic("Disable")
	a.setEnabled(false)
}

func (a *App) setEnabled(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled.Load() == on {
		return
	}

	if on {
		a.log.Info().Msg("Enabling voice commands")
		for _, ch := range a.channels {
			ch.reset()
		}
	} else {
		a.log.Info().Msg("Disabling voice commands")
	}

	for _, h := range a.hooks {
		var err error
		if on {
			err = h.Resume()
		} else {
			err = h.Pause()
		}
		if err != nil {
			a.log.Warn().Err(err).Bool("enabled", on).Msg("Recognition session hook failed")
		}
	}

	a.enabled.Store(on)
	if a.status != nil {
		a.status.SetListening(on)
	}
}

// Enabled reports the listening state. Safe from any goroutine.
func (a *App) Enabled() bool {
	return a.enabled.Load()
}

// Level returns the last peak amplitude seen on ch, 0 before any frame or for
// an unknown channel.
func (a *App) Level(ch string) float32 {
	c, ok := a.channels[ch]
	if !ok {
		return 0
	}
	return c.Level()
}

// Levels returns the current level of every channel.
func (a *App) Levels() map[string]float32 {
	out := make(map[string]float32, len(a.channels))
	for name, c := range a.channels {
		out[name] = c.Level()
	}
	return out
}

// Channels lists the available channels, microphone first.
func (a *App) Channels() []string {
	return append([]string(nil), a.order...)
}

// Active reports whether ch has an open device.
func (a *App) Active(ch string) bool {
	c, ok := a.channels[ch]
	return ok && c.capture.Active()
}

// Device returns the device ch is capturing from.
func (a *App) Device(ch string) audio.Device {
	c, ok := a.channels[ch]
	if !ok {
		return audio.Device{}
	}
	return c.capture.Device()
}

// ReloadDevice closes ch's device, waits the grace period and opens name.
// An unknown name falls back to the first device.
func (a *App) ReloadDevice(ctx context.Context, ch, name string) error {
	defer a.recoverPanic("ReloadDevice")

	c, ok := a.channels[ch]
	if !ok {
		return fmt.Errorf("reload %q: %w", ch, ErrUnknownChannel)
	}

	c.log.Info().Str("device", name).Msg("Reloading device")
	if err := c.capture.Reload(ctx, name, c, a.grace); err != nil {
		observe.Inc(ctx, a.metrics.DeviceErrors, ch)
		c.log.Error().Err(err).Msg("Device reload failed")
		return fmt.Errorf("reload %s: %w", ch, err)
	}
	return nil
}

// StopChannel closes ch's device and recognizer session.
func (a *App) StopChannel(ch string) error {
	defer a.recoverPanic("StopChannel")

	c, ok := a.channels[ch]
	if !ok {
		return fmt.Errorf("stop %q: %w", ch, ErrUnknownChannel)
	}
	return c.capture.Stop()
}

// ListDevices enumerates the devices ch can capture from.
func (a *App) ListDevices(ch string) ([]audio.Device, error) {
	c, ok := a.channels[ch]
	if !ok {
		return nil, fmt.Errorf("list %q: %w", ch, ErrUnknownChannel)
	}
	return c.capture.ListDevices()
}

// LastHeard returns the top hypothesis of the most recent utterance.
func (a *App) LastHeard() string {
	a.heardMu.Lock()
	defer a.heardMu.Unlock()
	return a.lastHeard
}

func (a *App) heard(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	a.heardMu.Lock()
	a.lastHeard = text
	a.heardMu.Unlock()
}

// Close stops every channel.
func (a *App) Close() error {
	defer a.recoverPanic("Close")

	var errs []error
	for _, name := range a.order {
		if err := a.channels[name].capture.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) recoverPanic(op string) {
	if r := recover(); r != nil {
		a.log.Error().Str("op", op).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered panic")
	}
}
