package audio

import (
	"errors"
	"sync"
)

// fakeDriver is an in-memory Driver whose streams are fed by the test.
type fakeDriver struct {
	mu      sync.Mutex
	devices map[Kind][]Device
	listErr error
	openErr error
	format  Format
	opened  []Device
	streams []*fakeStream
}

func newFakeDriver(names ...string) *fakeDriver {
	d := &fakeDriver{devices: make(map[Kind][]Device), format: RecognizerFormat}
	for _, n := range names {
		d.devices[KindCapture] = append(d.devices[KindCapture], Device{ID: "id-" + n, Name: n, Kind: KindCapture})
	}
	return d
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Devices(kind Kind) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]Device(nil), d.devices[kind]...), nil
}

func (d *fakeDriver) Open(dev Device, fn FrameFunc) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{fn: fn, format: d.format, driver: d}
	d.opened = append(d.opened, dev)
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakeStream struct {
	mu      sync.Mutex
	fn      FrameFunc
	format  Format
	driver  *fakeDriver
	started bool
	closed  bool
}

func (s *fakeStream) Format() Format { return s.format }

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.started = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	return nil
}

// push delivers buf as the driver thread would, if the stream is running.
func (s *fakeStream) push(buf []byte) bool {
	s.mu.Lock()
	running := s.started && !s.closed
	s.mu.Unlock()
	if running {
		s.fn(buf)
	}
	return running
}

type recordingSink struct {
	mu      sync.Mutex
	formats []Format
	frames  [][]byte
	closes  int
	openErr error
	panicOn bool
}

func (r *recordingSink) Open(f Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	r.formats = append(r.formats, f)
	return nil
}

func (r *recordingSink) Frame(buf []byte) {
	if r.panicOn {
		panic("sink exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), buf...))
}

func (r *recordingSink) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recordingSink) counts() (opens, frames, closes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.formats), len(r.frames), r.closes
}
