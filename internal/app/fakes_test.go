package app

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/petems/voiceclip/internal/audio"
	"github.com/petems/voiceclip/internal/recognizer"
)

// mockDriver is an in-memory audio backend whose streams the test drives.
type mockDriver struct {
	mu      sync.Mutex
	devices []audio.Device
	format  audio.Format
	openErr error
	streams []*mockStream
}

func newMockDriver(kind audio.Kind, names ...string) *mockDriver {
	d := &mockDriver{format: audio.RecognizerFormat}
	for _, n := range names {
		d.devices = append(d.devices, audio.Device{ID: "id-" + n, Name: n, Kind: kind})
	}
	return d
}

func (d *mockDriver) Name() string { return "mock" }

func (d *mockDriver) Devices(kind audio.Kind) ([]audio.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []audio.Device
	for _, dev := range d.devices {
		if dev.Kind == kind {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (d *mockDriver) Open(dev audio.Device, fn audio.FrameFunc) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &mockStream{dev: dev, fn: fn, format: d.format}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *mockDriver) Close() error { return nil }

func (d *mockDriver) setOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

func (d *mockDriver) last() *mockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type mockStream struct {
	mu      sync.Mutex
	dev     audio.Device
	fn      audio.FrameFunc
	format  audio.Format
	running bool

	panicOnClose bool // next Close panics once
}

func (s *mockStream) Format() audio.Format { return s.format }

func (s *mockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnClose {
		s.panicOnClose = false
		panic("driver exploded")
	}
	s.running = false
	return nil
}

// push delivers buf from the "driver thread", if the stream is running.
func (s *mockStream) push(buf []byte) bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.fn(buf)
	}
	return running
}

// say builds a frame the mock engine finalizes into the given alternatives.
func say(alts ...string) []byte {
	return []byte("say:" + strings.Join(alts, "|"))
}

// mockEngines hands out mockEngines and remembers them.
type mockEngines struct {
	mu      sync.Mutex
	err     error
	engines []*mockEngine
	opts    []recognizer.Options
}

func (f *mockEngines) NewEngine(opts recognizer.Options) (recognizer.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &mockEngine{}
	f.engines = append(f.engines, e)
	f.opts = append(f.opts, opts)
	return e, nil
}

func (f *mockEngines) all() []*mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mockEngine(nil), f.engines...)
}

// mockEngine finalizes on frames built by say and ignores everything else.
type mockEngine struct {
	mu     sync.Mutex
	frames [][]byte
	resets int
	closed bool
	result []byte
}

func (e *mockEngine) AcceptWaveform(pcm []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, append([]byte(nil), pcm...))

	text, ok := strings.CutPrefix(string(pcm), "say:")
	if !ok {
		return false
	}
	if text == "garbage" {
		e.result = []byte("{not json")
		return true
	}

	type alt struct {
		Text string `json:"text"`
	}
	var res struct {
		Alternatives []alt `json:"alternatives"`
	}
	for _, t := range strings.Split(text, "|") {
		res.Alternatives = append(res.Alternatives, alt{Text: t})
	}
	e.result, _ = json.Marshal(res)
	return true
}

func (e *mockEngine) Result() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.result
	e.result = nil
	return r
}

func (e *mockEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
}

func (e *mockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *mockEngine) snapshot() (frames [][]byte, resets int, closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.frames...), e.resets, e.closed
}

type mockHook struct {
	mu      sync.Mutex
	resumes int
	pauses  int
	err     error
}

func (h *mockHook) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
	return h.err
}

func (h *mockHook) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	return h.err
}

type mockStatus struct {
	mu      sync.Mutex
	updates []bool
}

func (s *mockStatus) SetListening(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, on)
}

var errDeviceBusy = errors.New("device busy")
