package audio

import "errors"

var (
	// ErrNoDevice is returned when enumeration yields no device of the requested kind.
	ErrNoDevice = errors.New("audio: no device available")
	// ErrUnsupportedKind is returned by drivers that cannot capture the requested kind.
	ErrUnsupportedKind = errors.New("audio: device kind not supported by driver")
)

// Kind selects between input devices and render (output) devices.
type Kind int

const (
	KindCapture Kind = iota
	KindRender
)

func (k Kind) String() string {
	if k == KindRender {
		return "render"
	}
	return "capture"
}

// Encoding of the samples in a frame buffer.
type Encoding int

const (
	EncodingS16LE Encoding = iota
	EncodingF32LE
)

// Format describes the PCM layout a stream delivers.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// BytesPerSample returns the width of a single sample in one channel.
func (f Format) BytesPerSample() int {
	if f.Encoding == EncodingF32LE {
		return 4
	}
	return 2
}

// RecognizerFormat is what the speech engine consumes: mono 16 kHz s16le.
var RecognizerFormat = Format{SampleRate: 16000, Channels: 1, Encoding: EncodingS16LE}

// loopbackFormat is requested from render devices; the driver converts from
// whatever the mixer runs at.
var loopbackFormat = Format{SampleRate: 48000, Channels: 2, Encoding: EncodingF32LE}

// Device represents an audio endpoint
type Device struct {
	ID      string
	Name    string
	Kind    Kind
	Default bool
}

// FrameFunc receives one delivery of raw PCM on the driver's thread. buf is
// only valid until the function returns.
type FrameFunc func(buf []byte)

// Driver enumerates and opens devices on one audio backend.
type Driver interface {
	Name() string
	Devices(kind Kind) ([]Device, error)
	Open(dev Device, fn FrameFunc) (Stream, error)
	Close() error
}

// Stream is an opened device. Close halts delivery and releases the handle.
type Stream interface {
	Format() Format
	Start() error
	Close() error
}

// Sink consumes the frames of one capture. Open is called with the stream's
// format before the first frame, Close after the last one.
type Sink interface {
	Open(f Format) error
	Frame(buf []byte)
	Close()
}
