package audio

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Capture owns at most one open stream of a given device kind and pushes its
// frames into a Sink. Stop and Start may be called repeatedly to switch devices.
type Capture struct {
	driver Driver
	kind   Kind
	log    zerolog.Logger

	mu     sync.Mutex
	stream Stream
	sink   Sink
	device Device
}

func NewCapture(d Driver, kind Kind, log zerolog.Logger) *Capture {
	return &Capture{
		driver: d,
		kind:   kind,
		log:    log.With().Str("driver", d.Name()).Str("kind", kind.String()).Logger(),
	}
}

// Start resolves name, opens the device and begins delivering frames to sink.
// An already running stream is stopped first. On failure the capture stays
// inactive and the sink is never opened.
func (c *Capture) Start(name string, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	dev, err := Resolve(c.driver, c.kind, name)
	if err != nil {
		return fmt.Errorf("resolve device %q: %w", name, err)
	}
	if dev.Name != name {
		c.log.Warn().Str("wanted", name).Str("device", dev.Name).Msg("Device not found, using first available")
	}

	stream, err := c.driver.Open(dev, c.guard(sink))
	if err != nil {
		return fmt.Errorf("open device %q: %w", dev.Name, err)
	}

	if err := sink.Open(stream.Format()); err != nil {
		stream.Close()
		return fmt.Errorf("open sink: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		sink.Close()
		return fmt.Errorf("start device %q: %w", dev.Name, err)
	}

	c.stream = stream
	c.sink = sink
	c.device = dev
	c.log.Info().Str("device", dev.Name).Msg("Capture started")
	return nil
}

// Stop halts delivery and releases the device. Safe to call when stopped.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Capture) stopLocked() error {
	if c.stream == nil {
		return nil
	}

	err := c.stream.Close()
	c.sink.Close()
	c.log.Info().Str("device", c.device.Name).Msg("Capture stopped")

	c.stream = nil
	c.sink = nil
	c.device = Device{}
	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Reload stops the capture, waits grace for the driver to let go of the old
// handle, then starts again on name with the same sink.
func (c *Capture) Reload(ctx context.Context, name string, sink Sink, grace time.Duration) error {
	if err := c.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("Stop before reload failed")
	}

	select {
	case <-time.After(grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.Start(name, sink)
}

// Active reports whether a stream is open.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Device returns the currently open device, zero when inactive.
func (c *Capture) Device() Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// ListDevices enumerates devices of this capture's kind.
func (c *Capture) ListDevices() ([]Device, error) {
	return c.driver.Devices(c.kind)
}

// guard keeps a panicking sink from taking down the driver thread.
func (c *Capture) guard(sink Sink) FrameFunc {
	return func(buf []byte) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Recovered panic in frame callback")
			}
		}()
		sink.Frame(buf)
	}
}
