package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/app"
	"github.com/petems/voiceclip/internal/config"
	"github.com/petems/voiceclip/internal/logging"
)

// levelPoll is how often the title's level meter is refreshed.
const levelPoll = 200 * time.Millisecond

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cfgMu sync.Mutex // guards cfg

	mu        sync.Mutex
	ready     bool
	listening bool

	// Menu items
	mListen       *systray.MenuItem
	mSpeakerOn    *systray.MenuItem
	mMicDevices   *systray.MenuItem
	mSpkDevices   *systray.MenuItem
	mReloadMic    *systray.MenuItem
	mReloadSpk    *systray.MenuItem
	mCopyHeard    *systray.MenuItem
	deviceItems   map[string]map[string]*systray.MenuItem
	deviceItemsMu sync.Mutex
}

// SetListening reflects the pipeline state in the tray.
func (u *UI) SetListening(on bool) {
	u.mu.Lock()
	u.listening = on
	item := u.mListen
	u.mu.Unlock()

	if item != nil {
		if on {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	u.refreshTitle()
}

func New(cfg *config.Config, version string, log zerolog.Logger) *UI {
	return &UI{
		cfg:         cfg,
		version:     version,
		log:         log.With().Str("component", "tray").Logger(),
		deviceItems: make(map[string]map[string]*systray.MenuItem),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// Run blocks until Quit is chosen or ctx is cancelled. onQuit runs as the
// tray shuts down.
func (u *UI) Run(ctx context.Context, onQuit func()) error {
	u.ctx, u.cancel = context.WithCancel(ctx)
	defer u.cancel()

	go func() {
		<-u.ctx.Done()
		systray.Quit()
	}()

	systray.Run(u.onReady, func() {
		u.cancel()
		if onQuit != nil {
			onQuit()
		}
	})
	return nil
}

func (u *UI) onReady() {
	systray.SetTooltip("Voice clip commands")

	u.mu.Lock()
	u.mListen = systray.AddMenuItemCheckbox("Listening", "Listen for \"clip that\"", u.listening)
	u.ready = true
	u.mu.Unlock()
	systray.AddSeparator()

	cfg := u.config()
	u.mMicDevices = systray.AddMenuItem("Microphone", "Select microphone")
	u.buildDeviceMenu(app.Microphone, u.mMicDevices, cfg.Microphone.Device)
	u.mReloadMic = systray.AddMenuItem("Reload Microphone", "Reopen the microphone")

	hasSpeaker := containsString(u.app.Channels(), app.Speaker)
	if hasSpeaker {
		systray.AddSeparator()
		u.mSpeakerOn = systray.AddMenuItemCheckbox("Capture Speaker", "Also listen to system audio", cfg.Speaker.Enabled)
		u.mSpkDevices = systray.AddMenuItem("Speaker", "Select speaker")
		u.buildDeviceMenu(app.Speaker, u.mSpkDevices, cfg.Speaker.Device)
		u.mReloadSpk = systray.AddMenuItem("Reload Speaker", "Reopen the speaker")
	}

	systray.AddSeparator()
	u.mCopyHeard = systray.AddMenuItem("Copy Last Heard", "Copy the last recognized phrase")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About VoiceClip")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.refreshTitle()

	go u.pollLevels()
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	var speakerOn, reloadSpk <-chan struct{}
	if u.mSpeakerOn != nil {
		speakerOn = u.mSpeakerOn.ClickedCh
		reloadSpk = u.mReloadSpk.ClickedCh
	}

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-u.mListen.ClickedCh:
			u.toggleListening()
		case <-u.mReloadMic.ClickedCh:
			go u.reload(app.Microphone, u.config().Microphone.Device)
		case <-speakerOn:
			u.toggleSpeaker()
		case <-reloadSpk:
			go u.reload(app.Speaker, u.config().Speaker.Device)
		case <-u.mCopyHeard.ClickedCh:
			u.copyLastHeard()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) pollLevels() {
	ticker := time.NewTicker(levelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.refreshTitle()
		}
	}
}

func (u *UI) buildDeviceMenu(ch string, parent *systray.MenuItem, selected string) {
	devices, err := u.app.ListDevices(ch)
	if err != nil {
		u.log.Error().Err(err).Str("channel", ch).Msg("Failed to list audio devices")
		return
	}

	items := make(map[string]*systray.MenuItem)
	u.deviceItemsMu.Lock()
	u.deviceItems[ch] = items
	u.deviceItemsMu.Unlock()

	for _, dev := range devices {
		item := parent.AddSubMenuItem(dev.Name, "")
		if dev.Name == selected || (selected == "" && dev.Default) {
			item.Check()
		}
		items[dev.Name] = item

		go func(name string, menuItem *systray.MenuItem) {
			for {
				select {
				case <-u.ctx.Done():
					return
				case <-menuItem.ClickedCh:
				}
				u.selectDevice(ch, name)
			}
		}(dev.Name, item)
	}
}

// selectDevice persists the choice and reopens the channel on it.
func (u *UI) selectDevice(ch, name string) {
	u.deviceItemsMu.Lock()
	for n, itm := range u.deviceItems[ch] {
		if n == name {
			itm.Check()
		} else {
			itm.Uncheck()
		}
	}
	u.deviceItemsMu.Unlock()

	cfg := u.updateConfig(func(c *config.Config) {
		if ch == app.Speaker {
			c.Speaker.Device = name
		} else {
			c.Microphone.Device = name
		}
	})
	u.log.Info().Str("channel", ch).Str("device", name).Msg("Changed audio device")

	if ch == app.Speaker && !cfg.Speaker.Enabled {
		return
	}
	u.reload(ch, name)
}

// updateConfig applies fn, saves, and returns a copy of the result.
func (u *UI) updateConfig(fn func(c *config.Config)) config.Config {
	u.cfgMu.Lock()
	defer u.cfgMu.Unlock()
	fn(u.cfg)
	if err := u.cfg.Save(); err != nil {
		u.log.Error().Err(err).Msg("Failed to save config")
	}
	return *u.cfg
}

func (u *UI) config() config.Config {
	u.cfgMu.Lock()
	defer u.cfgMu.Unlock()
	return *u.cfg
}

func (u *UI) reload(ch, name string) {
	if err := u.app.ReloadDevice(u.ctx, ch, name); err != nil {
		u.log.Error().Err(err).Str("channel", ch).Msg("Reload failed")
	}
}

func (u *UI) toggleListening() {
	if u.app.Enabled() {
		u.app.Disable()
	} else {
		u.app.Enable()
	}
}

func (u *UI) toggleSpeaker() {
	cfg := u.updateConfig(func(c *config.Config) {
		c.Speaker.Enabled = !c.Speaker.Enabled
	})

	if cfg.Speaker.Enabled {
		u.mSpeakerOn.Check()
		u.log.Info().Msg("Enabled speaker capture")
		go u.reload(app.Speaker, cfg.Speaker.Device)
		return
	}

	u.mSpeakerOn.Uncheck()
	u.log.Info().Msg("Disabled speaker capture")
	if err := u.app.StopChannel(app.Speaker); err != nil {
		u.log.Error().Err(err).Msg("Failed to stop speaker capture")
	}
}

func (u *UI) copyLastHeard() {
	text := u.app.LastHeard()
	if text == "" {
		u.log.Info().Msg("Nothing heard yet")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy to clipboard")
	}
}

func (u *UI) openLogs() {
	path := logging.LogPath()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Msg("VoiceClip: say \"clip that\" to save a highlight")
}

// refreshTitle sets the tray title with microphone emoji, status and levels
func (u *UI) refreshTitle() {
	u.mu.Lock()
	ready, listening := u.ready, u.listening
	u.mu.Unlock()
	if !ready || u.app == nil {
		return
	}

	var meters []string
	for _, ch := range u.app.Channels() {
		if !u.app.Active(ch) {
			continue
		}
		meters = append(meters, levelBars(u.app.Level(ch), 5))
	}
	systray.SetTitle(title(listening, u.app.Active(app.Microphone), meters))
}

func title(listening, micActive bool, meters []string) string {
	s := fmt.Sprintf("🎤 %s", emojiForStatus(listening, micActive))
	if len(meters) > 0 {
		s += " " + strings.Join(meters, " ")
	}
	return s
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(listening, micActive bool) string {
	switch {
	case !micActive:
		return "⚪️" // White - no device
	case listening:
		return "🟢" // Green - listening
	default:
		return "🟡" // Yellow - paused
	}
}

// levelBars renders level in [0,1] as a bar of width cells.
func levelBars(level float32, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float32(width) + 0.5)
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
