package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer is 32ms at 16kHz.
const framesPerBuffer = 512

// PortAudio captures microphones through PortAudio. It has no loopback
// support, so only KindCapture is available.
type PortAudio struct {
	mu      sync.Mutex
	devices map[string]*portaudio.DeviceInfo
}

// NewPortAudio initializes the PortAudio library.
func NewPortAudio() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{devices: make(map[string]*portaudio.DeviceInfo)}, nil
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Devices(kind Kind) ([]Device, error) {
	if kind != KindCapture {
		return nil, ErrUnsupportedKind
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defaultDevice, _ := portaudio.DefaultInputDevice()

	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		id := d.Name
		if d.HostApi != nil {
			id = d.HostApi.Name + "/" + d.Name
		}
		p.devices[id] = d
		result = append(result, Device{
			ID:      id,
			Name:    d.Name,
			Kind:    KindCapture,
			Default: d == defaultDevice,
		})
	}

	return result, nil
}

// Open prepares a mono 16kHz int16 callback stream on dev. Samples are
// re-encoded to little-endian bytes in a scratch buffer owned by the stream.
func (p *PortAudio) Open(dev Device, fn FrameFunc) (Stream, error) {
	p.mu.Lock()
	info, ok := p.devices[dev.ID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device not found: %s", dev.ID)
	}

	scratch := make([]byte, framesPerBuffer*2)
	callback := func(in []int16) {
		n := len(in) * 2
		if cap(scratch) < n {
			scratch = make([]byte, n)
		}
		buf := scratch[:n]
		for i, s := range in {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		fn(buf)
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(RecognizerFormat.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioStream{stream: stream}, nil
}

func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream  *portaudio.Stream
	started bool
}

func (s *portAudioStream) Format() Format { return RecognizerFormat }

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true
	return nil
}

// Close stops the stream, waiting for an in-flight callback, and releases it.
func (s *portAudioStream) Close() error {
	if s.started {
		s.stream.Stop()
		s.started = false
	}
	return s.stream.Close()
}
