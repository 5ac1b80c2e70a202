package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/petems/voiceclip/internal/action"
	"github.com/petems/voiceclip/internal/app"
	"github.com/petems/voiceclip/internal/audio"
	"github.com/petems/voiceclip/internal/config"
	"github.com/petems/voiceclip/internal/hotkey"
	"github.com/petems/voiceclip/internal/keyword"
	"github.com/petems/voiceclip/internal/logging"
	"github.com/petems/voiceclip/internal/observe"
	"github.com/petems/voiceclip/internal/permissions"
	"github.com/petems/voiceclip/internal/tray"
	"github.com/petems/voiceclip/internal/whisper"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)
	log.Info().Str("version", Version).Str("commit", Commit).Msg("VoiceClip starting...")

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	metrics := observe.Nop()
	var provider *observe.Provider
	if cfg.MetricsAddr != "" {
		if provider, err = observe.InitProvider(Version); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize metrics")
		}
		if metrics, err = observe.NewMetrics(provider); err != nil {
			log.Fatal().Err(err).Msg("Failed to create metrics")
		}
	}

	// Audio backends
	micDriver, speakerDriver := openDrivers(cfg, log)
	defer micDriver.Close()
	if speakerDriver != nil && speakerDriver != micDriver {
		defer speakerDriver.Close()
	}

	// Initialize whisper, downloading the model on first run
	engines, err := whisper.New(ctx, cfg.Recognizer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize whisper")
	}
	defer engines.Close()

	trigger := action.New(cfg.Actions, log)

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(cfg, Version, log)

	application := app.New(app.Config{
		Microphone:      micDriver,
		Speaker:         speakerDriver,
		Engines:         engines,
		Matcher:         keyword.Default(),
		Action:          trigger.Fire,
		Hooks:           []app.SessionHook{metrics},
		Metrics:         metrics,
		Logger:          log,
		MaxAlternatives: cfg.Recognizer.MaxAlternatives,
		Words:           cfg.Recognizer.Words,
		ReloadGrace:     cfg.ReloadGrace(),
		StatusUpdater:   trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	if err := metrics.ObserveLevels(application.Levels); err != nil {
		log.Warn().Err(err).Msg("Failed to register level gauge")
	}

	// Register global hotkey; the tray menu works without it
	if hk, err := hotkey.New(); err != nil {
		log.Warn().Err(err).Msg("Hotkeys unavailable")
	} else {
		defer hk.Close()
		accel := cfg.PlatformHotkey()
		if err := hk.Register(accel, hotkey.OnPress(func() { toggle(application) })); err != nil {
			log.Warn().Err(err).Str("hotkey", accel).Msg("Failed to register hotkey")
		}
	}

	application.Start(ctx, app.Devices{
		Microphone:     cfg.Microphone.Device,
		Speaker:        cfg.Speaker.Device,
		SpeakerEnabled: cfg.Speaker.Enabled,
	})
	if cfg.StartEnabled {
		application.Enable()
	}

	g, gctx := errgroup.WithContext(ctx)
	if provider != nil {
		g.Go(func() error {
			return provider.Serve(gctx, cfg.MetricsAddr, log)
		})
	}

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(gctx, stop); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}
	stop()

	log.Info().Msg("Shutting down...")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Metrics server error")
	}
	shutdown(application, trigger, provider, log)
}

// openDrivers picks the microphone backend and, when available, a loopback
// capable backend for the speaker channel.
func openDrivers(cfg *config.Config, log zerolog.Logger) (mic, speaker audio.Driver) {
	ma, err := audio.NewMiniaudio()
	if err != nil {
		log.Warn().Err(err).Msg("miniaudio unavailable, speaker capture disabled")
	}

	if cfg.Microphone.Backend == config.BackendMiniaudio && ma != nil {
		mic = ma
	} else {
		pa, err := audio.NewPortAudio()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize audio")
		}
		mic = pa
	}

	if ma != nil {
		speaker = ma
	}
	return mic, speaker
}

func toggle(a *app.App) {
	if a.Enabled() {
		a.Disable()
	} else {
		a.Enable()
	}
}

func shutdown(a *app.App, trigger *action.Trigger, provider *observe.Provider, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.Close)
	g.Go(func() error { return trigger.Close(gctx) })
	if provider != nil {
		g.Go(func() error { return provider.Shutdown(gctx) })
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
