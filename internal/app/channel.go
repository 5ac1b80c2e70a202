package app

import (
	"context"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/audio"
	"github.com/petems/voiceclip/internal/observe"
	"github.com/petems/voiceclip/internal/recognizer"
)

// channel is one independent capture → recognition pipeline. It is the
// audio.Sink of its capture, so the recognizer session lives exactly as long
// as the open device.
type channel struct {
	name    string
	app     *App
	capture *audio.Capture
	log     zerolog.Logger

	level   atomic.Uint32 // math.Float32bits of the last peak
	session atomic.Pointer[session]
}

// session is the recognizer state bound to one open stream.
type session struct {
	format  audio.Format
	adapter *recognizer.Adapter
	frames  chan []byte
	resets  chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newChannel(a *App, name string, d audio.Driver, kind audio.Kind) *channel {
	log := a.log.With().Str("channel", name).Logger()
	return &channel{
		name:    name,
		app:     a,
		capture: audio.NewCapture(d, kind, log),
		log:     log,
	}
}

// Level returns the last published peak. Zero before the first frame.
func (c *channel) Level() float32 {
	return math.Float32frombits(c.level.Load())
}

// Open creates the recognizer session for a stream delivering f.
func (c *channel) Open(f audio.Format) error {
	engine, err := c.app.engines.NewEngine(recognizer.Options{
		SampleRate:      audio.RecognizerFormat.SampleRate,
		MaxAlternatives: c.app.maxAlts,
		Words:           c.app.words,
	})
	if err != nil {
		return err
	}

	s := &session{
		format:  f,
		adapter: recognizer.NewAdapter(engine, c.log),
		frames:  make(chan []byte, c.app.queueSize),
		resets:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.session.Store(s)
	go c.work(s)

	c.log.Debug().Int("rate", f.SampleRate).Int("channels", f.Channels).Msg("Recognizer session opened")
	return nil
}

// Frame runs on the driver thread: meter, convert, hand off. It never blocks.
func (c *channel) Frame(buf []byte) {
	s := c.session.Load()
	if s == nil {
		return
	}

	c.level.Store(math.Float32bits(audio.Peak(buf, s.format.Encoding)))

	if !c.app.Enabled() {
		return
	}

	// buf belongs to the driver; passthrough frames must be copied.
	var pcm []byte
	if s.format == audio.RecognizerFormat {
		pcm = append([]byte(nil), buf...)
	} else {
		pcm = audio.ToRecognizerPCM(buf, s.format)
	}

	select {
	case s.frames <- pcm:
	default:
		observe.Inc(context.Background(), c.app.metrics.FramesDropped, c.name)
	}
}

// Close tears down the session. The capture has already stopped the stream.
func (c *channel) Close() {
	s := c.session.Swap(nil)
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.quit) })
	<-s.done

	if err := s.adapter.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Closing recognizer session")
	}
	c.log.Debug().Msg("Recognizer session closed")
}

// reset asks the worker to drop any partial utterance.
func (c *channel) reset() {
	s := c.session.Load()
	if s == nil {
		return
	}
	select {
	case s.resets <- struct{}{}:
	default:
	}
}

// work feeds frames to the session strictly in delivery order.
func (c *channel) work(s *session) {
	defer close(s.done)
	for {
		// A pending reset goes ahead of queued frames.
		select {
		case <-s.resets:
			s.adapter.Reset()
		default:
		}

		select {
		case <-s.quit:
			return
		case <-s.resets:
			s.adapter.Reset()
		case pcm := <-s.frames:
			c.process(s, pcm)
		}
	}
}

func (c *channel) process(s *session, pcm []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered panic in recognition")
		}
	}()

	if !s.adapter.Feed(pcm) {
		return
	}

	ctx := context.Background()
	res := s.adapter.TakeResult()
	observe.Inc(ctx, c.app.metrics.Utterances, c.name)

	switch res.Status {
	case recognizer.StatusMalformed:
		observe.Inc(ctx, c.app.metrics.ResultErrors, c.name)
		return
	case recognizer.StatusEmpty:
		return
	}

	c.app.heard(res.Top())
	if c.app.interpreter.Interpret(c.name, res) {
		observe.Inc(ctx, c.app.metrics.Triggers, c.name)
	}
}
