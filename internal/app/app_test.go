package app

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/audio"
	"github.com/petems/voiceclip/internal/keyword"
)

type harness struct {
	app     *App
	mic     *mockDriver
	speaker *mockDriver
	engines *mockEngines
	matches chan keyword.Match
}

func newHarness(t *testing.T, speaker bool) *harness {
	t.Helper()
	h := &harness{
		mic:     newMockDriver(audio.KindCapture, "Built-in", "USB Mic"),
		engines: &mockEngines{},
		matches: make(chan keyword.Match, 16),
	}
	cfg := Config{
		Microphone:      h.mic,
		Engines:         h.engines,
		Action:          func(m keyword.Match) { h.matches <- m },
		Logger:          zerolog.Nop(),
		MaxAlternatives: 10,
		Words:           true,
		ReloadGrace:     5 * time.Millisecond,
	}
	if speaker {
		h.speaker = newMockDriver(audio.KindRender, "Speakers", "Headphones")
		cfg.Speaker = h.speaker
	}
	h.app = New(cfg)
	t.Cleanup(func() { h.app.Close() })
	return h
}

// eventually polls cond for up to a second.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextMatch(t *testing.T, ch <-chan keyword.Match) keyword.Match {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trigger")
		return keyword.Match{}
	}
}

func f32le(samples ...float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func TestInitiallyDisabled(t *testing.T) {
	h := newHarness(t, false)
	if h.app.Enabled() {
		t.Error("App should start disabled")
	}
}

func TestLevelDefaultsToZero(t *testing.T) {
	h := newHarness(t, true)
	for _, ch := range []string{Microphone, Speaker, "bogus"} {
		if got := h.app.Level(ch); got != 0 {
			t.Errorf("Level(%q) = %v before any frame, want 0", ch, got)
		}
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	hook := &mockHook{}
	status := &mockStatus{}
	mic := newMockDriver(audio.KindCapture, "Built-in")
	app := New(Config{
		Microphone:    mic,
		Engines:       &mockEngines{},
		Hooks:         []SessionHook{hook},
		StatusUpdater: status,
		Logger:        zerolog.Nop(),
	})

	app.Enable()
	app.Enable()
	if !app.Enabled() {
		t.Fatal("App should be enabled")
	}
	if hook.resumes != 1 {
		t.Errorf("expected one resume, got %d", hook.resumes)
	}

	app.Disable()
	app.Disable()
	if app.Enabled() {
		t.Fatal("App should be disabled")
	}
	if hook.pauses != 1 {
		t.Errorf("expected one pause, got %d", hook.pauses)
	}
	if len(status.updates) != 2 || !status.updates[0] || status.updates[1] {
		t.Errorf("unexpected status updates %v", status.updates)
	}
}

func TestEnableFlipsEvenWhenHookFails(t *testing.T) {
	hook := &mockHook{err: errors.New("session unavailable")}
	app := New(Config{
		Microphone: newMockDriver(audio.KindCapture, "Built-in"),
		Engines:    &mockEngines{},
		Hooks:      []SessionHook{hook},
		Logger:     zerolog.Nop(),
	})

	app.Enable()
	if !app.Enabled() {
		t.Error("flag should reflect intent even when the hook fails")
	}
}

func TestTriggersFireInDeliveryOrder(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{Microphone: "USB Mic"})
	h.app.Enable()

	s := h.mic.last()
	if s == nil || s.dev.Name != "USB Mic" {
		t.Fatalf("expected USB Mic to be opened, got %+v", s)
	}

	s.push([]byte("partial audio"))
	s.push(say("hello there"))
	s.push(say("let's go", "clip that", "cop that"))
	s.push(say("quebec"))

	first := nextMatch(t, h.matches)
	second := nextMatch(t, h.matches)

	if first.Phrase != "clip that" || first.Rank != 1 || first.Channel != Microphone {
		t.Errorf("unexpected first match %+v", first)
	}
	if second.Phrase != "quebec" {
		t.Errorf("unexpected second match %+v", second)
	}

	select {
	case m := <-h.matches:
		t.Errorf("unexpected extra trigger %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	if got := h.app.LastHeard(); got != "quebec" {
		t.Errorf("LastHeard = %q, want %q", got, "quebec")
	}
}

func TestEngineRequestsAlternativesAndWords(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{})

	if len(h.engines.opts) != 1 {
		t.Fatalf("expected one engine, got %d", len(h.engines.opts))
	}
	opts := h.engines.opts[0]
	if opts.MaxAlternatives != 10 || !opts.Words || opts.SampleRate != 16000 {
		t.Errorf("unexpected engine options %+v", opts)
	}
}

func TestMalformedResultDoesNotTrigger(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{Microphone: "Built-in"})
	h.app.Enable()

	s := h.mic.last()
	s.push(say("garbage"))
	s.push(say("clip that"))

	m := nextMatch(t, h.matches)
	if m.Phrase != "clip that" {
		t.Errorf("unexpected match %+v", m)
	}
}

func TestDisabledMetersButDoesNotRecognize(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{Microphone: "Built-in"})

	// int16 16384 is half scale.
	frame := []byte{0x00, 0x40, 0x00, 0x00}
	h.mic.last().push(frame)

	if got := h.app.Level(Microphone); got != 0.5 {
		t.Errorf("Level = %v, want 0.5", got)
	}

	h.mic.last().push(say("clip that"))
	time.Sleep(50 * time.Millisecond)

	engines := h.engines.all()
	if len(engines) != 1 {
		t.Fatalf("expected one engine, got %d", len(engines))
	}
	frames, _, _ := engines[0].snapshot()
	if len(frames) != 0 {
		t.Errorf("disabled pipeline fed %d frames to the engine", len(frames))
	}
	select {
	case m := <-h.matches:
		t.Errorf("unexpected trigger while disabled %+v", m)
	default:
	}
}

func TestEnableResetsSession(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{})

	h.app.Enable()
	e := h.engines.all()[0]
	eventually(t, "reset", func() bool {
		_, resets, _ := e.snapshot()
		return resets == 1
	})
}

func TestReloadUnknownDeviceFallsBackAndResumes(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{Microphone: "USB Mic"})
	h.app.Enable()

	if err := h.app.ReloadDevice(context.Background(), Microphone, "Does Not Exist"); err != nil {
		t.Fatalf("ReloadDevice: %v", err)
	}

	if got := h.app.Device(Microphone).Name; got != "Built-in" {
		t.Errorf("expected fallback to first device, got %q", got)
	}
	if !h.app.Active(Microphone) {
		t.Fatal("capture should resume after reload")
	}

	engines := h.engines.all()
	if len(engines) != 2 {
		t.Fatalf("expected a fresh engine per device, got %d", len(engines))
	}
	if _, _, closed := engines[0].snapshot(); !closed {
		t.Error("old engine should be closed with its device")
	}

	h.mic.last().push(say("clip that"))
	if m := nextMatch(t, h.matches); m.Phrase != "clip that" {
		t.Errorf("unexpected match after reload %+v", m)
	}
}

func TestReloadKeepsLevel(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{})
	h.mic.last().push([]byte{0x00, 0x40})

	if err := h.app.ReloadDevice(context.Background(), Microphone, "Built-in"); err != nil {
		t.Fatalf("ReloadDevice: %v", err)
	}
	if got := h.app.Level(Microphone); got != 0.5 {
		t.Errorf("level should hold across reload, got %v", got)
	}
}

func TestReloadUnknownChannel(t *testing.T) {
	h := newHarness(t, false)
	err := h.app.ReloadDevice(context.Background(), Speaker, "Speakers")
	if !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDeviceOpenFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, false)
	h.mic.setOpenErr(errDeviceBusy)

	h.app.Start(context.Background(), Devices{Microphone: "Built-in"})
	if h.app.Active(Microphone) {
		t.Error("channel should stay inactive after open failure")
	}
	if len(h.engines.all()) != 0 {
		t.Error("no recognizer session should exist without a device")
	}

	err := h.app.ReloadDevice(context.Background(), Microphone, "Built-in")
	if !errors.Is(err, errDeviceBusy) {
		t.Errorf("expected device error from reload, got %v", err)
	}

	h.mic.setOpenErr(nil)
	if err := h.app.ReloadDevice(context.Background(), Microphone, "Built-in"); err != nil {
		t.Fatalf("operator retry should succeed: %v", err)
	}
	if !h.app.Active(Microphone) {
		t.Error("channel should be active after retry")
	}
}

func TestEngineFailureLeavesChannelInactive(t *testing.T) {
	h := newHarness(t, false)
	h.engines.err = errors.New("model missing")

	h.app.Start(context.Background(), Devices{})
	if h.app.Active(Microphone) {
		t.Error("device must not stay open without a recognizer session")
	}
}

func TestSpeakerChannel(t *testing.T) {
	h := newHarness(t, true)
	h.speaker.format = audio.Format{SampleRate: 48000, Channels: 2, Encoding: audio.EncodingF32LE}

	h.app.Start(context.Background(), Devices{Speaker: "Headphones", SpeakerEnabled: true})
	h.app.Enable()

	if !h.app.Active(Speaker) {
		t.Fatal("speaker channel should be active")
	}
	if got := h.app.Device(Speaker).Name; got != "Headphones" {
		t.Errorf("expected Headphones, got %q", got)
	}

	// 6 stereo frames at 48 kHz become 2 mono samples at 16 kHz.
	h.speaker.last().push(f32le(0.25, 0.25, -0.75, -0.75, 0, 0, 0, 0, 0, 0, 0, 0))

	if got := h.app.Level(Speaker); got != 0.75 {
		t.Errorf("speaker level = %v, want 0.75", got)
	}
	if got := h.app.Level(Microphone); got != 0 {
		t.Errorf("microphone level should be independent, got %v", got)
	}

	var speakerEngine *mockEngine
	for _, e := range h.engines.all() {
		speakerEngine = e
	}
	eventually(t, "converted frame", func() bool {
		frames, _, _ := speakerEngine.snapshot()
		return len(frames) == 1 && len(frames[0]) == 4
	})
}

func TestSpeakerDisabledByDefault(t *testing.T) {
	h := newHarness(t, true)
	h.app.Start(context.Background(), Devices{Speaker: "Speakers"})

	if h.app.Active(Speaker) {
		t.Error("speaker capture should be gated by SpeakerEnabled")
	}
	if got := h.app.Channels(); len(got) != 2 || got[0] != Microphone {
		t.Errorf("unexpected channels %v", got)
	}
}

func TestListDevices(t *testing.T) {
	h := newHarness(t, true)

	mics, err := h.app.ListDevices(Microphone)
	if err != nil || len(mics) != 2 {
		t.Fatalf("ListDevices(mic) = %v, %v", mics, err)
	}
	speakers, err := h.app.ListDevices(Speaker)
	if err != nil || len(speakers) != 2 || speakers[0].Name != "Speakers" {
		t.Fatalf("ListDevices(speaker) = %v, %v", speakers, err)
	}
	if _, err := h.app.ListDevices("bogus"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestCloseStopsChannels(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{})

	if err := h.app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.app.Active(Microphone) {
		t.Error("channel should be inactive after Close")
	}
	if _, _, closed := h.engines.all()[0].snapshot(); !closed {
		t.Error("engine should be closed")
	}
	if h.mic.last().push(say("clip that")) {
		t.Error("stream should not deliver after Close")
	}
}

func TestStopChannelRecoversDriverPanic(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start(context.Background(), Devices{})

	stream := h.mic.last()
	stream.mu.Lock()
	stream.panicOnClose = true
	stream.mu.Unlock()

	if err := h.app.StopChannel(Microphone); err != nil {
		t.Errorf("StopChannel: %v", err)
	}
	if err := h.app.StopChannel(Microphone); err != nil {
		t.Errorf("second StopChannel: %v", err)
	}
	if h.app.Active(Microphone) {
		t.Error("channel should be inactive after StopChannel")
	}
}

func TestActionPanicDoesNotStopChannel(t *testing.T) {
	mic := newMockDriver(audio.KindCapture, "Built-in")
	engines := &mockEngines{}
	calls := make(chan struct{}, 4)
	app := New(Config{
		Microphone: mic,
		Engines:    engines,
		Action: func(keyword.Match) {
			calls <- struct{}{}
			panic("action exploded")
		},
		Logger: zerolog.Nop(),
	})
	defer app.Close()

	app.Start(context.Background(), Devices{})
	app.Enable()
	mic.last().push(say("clip that"))
	mic.last().push(say("quebec"))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("trigger %d never fired", i+1)
		}
	}
}
