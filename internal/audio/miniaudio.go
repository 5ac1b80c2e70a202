package audio

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Miniaudio captures through miniaudio. Besides microphones it can open
// render devices in loopback mode to capture what is being played.
type Miniaudio struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[string]malgo.DeviceID
}

func NewMiniaudio() (*Miniaudio, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return &Miniaudio{ctx: ctx, ids: make(map[string]malgo.DeviceID)}, nil
}

func (m *Miniaudio) Name() string { return "miniaudio" }

func (m *Miniaudio) Devices(kind Kind) ([]Device, error) {
	deviceType := malgo.Capture
	if kind == KindRender {
		deviceType = malgo.Playback
	}

	infos, err := m.ctx.Devices(deviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Device, 0, len(infos))
	for _, info := range infos {
		id := kind.String() + ":" + hex.EncodeToString(info.ID[:])
		m.ids[id] = info.ID
		result = append(result, Device{
			ID:      id,
			Name:    info.Name(),
			Kind:    kind,
			Default: info.IsDefault != 0,
		})
	}
	return result, nil
}

// Open initializes a device without starting it. Capture devices deliver mono
// 16kHz s16le; render devices are opened in loopback mode as stereo f32.
func (m *Miniaudio) Open(dev Device, fn FrameFunc) (Stream, error) {
	m.mu.Lock()
	id, ok := m.ids[dev.ID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device not found: %s", dev.ID)
	}

	var (
		deviceConfig malgo.DeviceConfig
		format       Format
	)
	switch dev.Kind {
	case KindRender:
		deviceConfig = malgo.DefaultDeviceConfig(malgo.Loopback)
		deviceConfig.Capture.Format = malgo.FormatF32
		format = loopbackFormat
	default:
		deviceConfig = malgo.DefaultDeviceConfig(malgo.Capture)
		deviceConfig.Capture.Format = malgo.FormatS16
		format = RecognizerFormat
	}
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.Capture.DeviceID = id.Pointer()
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			fn(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to init device: %w", err)
	}
	return &miniaudioStream{device: device, format: format}, nil
}

func (m *Miniaudio) Close() error {
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}

type miniaudioStream struct {
	device *malgo.Device
	format Format
}

func (s *miniaudioStream) Format() Format { return s.format }

func (s *miniaudioStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

func (s *miniaudioStream) Close() error {
	err := s.device.Stop()
	s.device.Uninit()
	return err
}
