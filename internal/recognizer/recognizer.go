// Package recognizer adapts a streaming speech engine to the capture
// pipeline. An Engine consumes mono 16 kHz s16le PCM and signals when it has
// finalized an utterance; the Adapter turns the engine's raw result into a
// ranked list of hypotheses.
package recognizer

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Engine is one stateful streaming session of a speech engine.
//
// AcceptWaveform consumes pcm and returns true once an utterance has been
// finalized. Result then returns the structured result for that utterance
// and clears the engine's accumulation state. Engines are used from a single
// goroutine.
type Engine interface {
	AcceptWaveform(pcm []byte) bool
	Result() []byte
	Reset()
	Close() error
}

// Options configures a new engine session.
type Options struct {
	SampleRate      int
	MaxAlternatives int
	Words           bool
}

// Factory creates engine sessions. Implementations share heavy state (models)
// across sessions.
type Factory interface {
	NewEngine(opts Options) (Engine, error)
}

// Adapter wraps one engine session. Not safe for concurrent use.
type Adapter struct {
	engine Engine
	log    zerolog.Logger
}

func NewAdapter(e Engine, log zerolog.Logger) *Adapter {
	return &Adapter{engine: e, log: log}
}

// Feed pushes one frame into the session. It reports true when a finalized
// result is ready for TakeResult. An engine panic is logged and reported as
// false.
func (a *Adapter) Feed(frame []byte) (final bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Engine panicked on frame")
			final = false
		}
	}()
	return a.engine.AcceptWaveform(frame)
}

// TakeResult returns the finalized utterance and resets accumulation. Output
// that cannot be parsed yields a StatusMalformed result with no hypotheses.
func (a *Adapter) TakeResult() Result {
	res, err := ParseResult(a.engine.Result())
	if err != nil {
		a.log.Warn().Err(err).Msg("Discarding unparseable engine result")
	}
	return res
}

// Reset drops any partially accumulated utterance.
func (a *Adapter) Reset() {
	a.engine.Reset()
}

func (a *Adapter) Close() error {
	return a.engine.Close()
}
