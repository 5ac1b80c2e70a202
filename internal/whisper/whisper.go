package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/config"
	"github.com/petems/voiceclip/internal/recognizer"
)

var _ recognizer.Factory = (*Factory)(nil)

// transcribeFunc runs inference over one finalized utterance.
type transcribeFunc func(samples []float32) ([]segment, error)

// Factory owns a loaded whisper.cpp model and creates recognizer sessions
// that share it.
type Factory struct {
	cfg config.RecognizerConfig
	log zerolog.Logger

	// infer is held for a whole inference. Contexts made from one model
	// share its native state, so whisper_full must not run twice at once.
	infer sync.Mutex

	mu        sync.Mutex // guards model and run
	model     whisper.Model
	run       transcribeFunc
	modelPath string
}

// New loads the configured model, downloading it first if it is missing.
func New(ctx context.Context, cfg config.RecognizerConfig, log zerolog.Logger) (*Factory, error) {
	log = log.With().Str("component", "whisper").Logger()
	modelPath := filepath.Join(config.ModelsPath(), cfg.Model+".bin")

	// Check if model exists, download if needed
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := downloadModel(ctx, log, cfg.Model, modelPath); err != nil {
			return nil, fmt.Errorf("failed to download model: %w", err)
		}
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	log.Info().Str("model", cfg.Model).Str("path", modelPath).Msg("Model loaded")
	f := &Factory{
		cfg:       cfg,
		log:       log,
		model:     model,
		modelPath: modelPath,
	}
	f.run = f.process
	return f, nil
}

// NewEngine starts a session. Each finalized utterance gets a fresh
// whisper.cpp context from the shared model.
func (f *Factory) NewEngine(opts recognizer.Options) (recognizer.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.run == nil {
		return nil, errors.New("whisper: model closed")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return newEngine(f.cfg, opts, f.transcribe, f.log), nil
}

// transcribe runs one inference at a time across every engine of f.
func (f *Factory) transcribe(samples []float32) ([]segment, error) {
	f.infer.Lock()
	defer f.infer.Unlock()

	f.mu.Lock()
	run := f.run
	f.mu.Unlock()
	if run == nil {
		return nil, errors.New("whisper: model closed")
	}
	return run(samples)
}

// process must be called with f.infer held.
func (f *Factory) process(samples []float32) ([]segment, error) {
	wctx, err := f.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if f.cfg.Threads > 0 {
		wctx.SetThreads(uint(f.cfg.Threads))
	}
	if f.cfg.Language != "auto" && f.cfg.Language != "" {
		if err := wctx.SetLanguage(f.cfg.Language); err != nil {
			f.log.Warn().Err(err).Str("language", f.cfg.Language).Msg("Failed to set language, using default")
		}
	}
	wctx.SetTranslate(false)
	wctx.SetTokenTimestamps(f.cfg.Words)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper process failed: %w", err)
	}

	var segments []segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		s := segment{Text: seg.Text}
		for _, tok := range seg.Tokens {
			s.Tokens = append(s.Tokens, token{Text: tok.Text, P: tok.P, Start: tok.Start, End: tok.End})
		}
		segments = append(segments, s)
	}
	return segments, nil
}

// Close waits for a running inference, then frees the model.
func (f *Factory) Close() error {
	f.infer.Lock()
	defer f.infer.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.run = nil
	if f.model != nil {
		err := f.model.Close()
		f.model = nil
		return err
	}
	return nil
}

// Engine is a streaming session: audio is endpointed locally and each
// utterance is transcribed in one pass once it ends.
type Engine struct {
	ep         endpointer
	transcribe transcribeFunc
	maxAlts    int
	words      bool
	log        zerolog.Logger

	result []byte
}

func newEngine(cfg config.RecognizerConfig, opts recognizer.Options, fn transcribeFunc, log zerolog.Logger) *Engine {
	return &Engine{
		ep: endpointer{
			sampleRate: opts.SampleRate,
			threshold:  cfg.RMSThreshold,
			silenceMs:  cfg.SilenceMs,
			maxMs:      cfg.MaxUtteranceMs,
		},
		transcribe: fn,
		maxAlts:    opts.MaxAlternatives,
		words:      opts.Words,
		log:        log,
	}
}

// AcceptWaveform buffers pcm and, when the utterance ends, transcribes it.
// Inference failures drop the utterance and report false.
func (e *Engine) AcceptWaveform(pcm []byte) bool {
	if !e.ep.push(pcm) {
		return false
	}

	utterance := e.ep.take()
	segments, err := e.transcribe(pcmToFloat32(utterance))
	if err != nil {
		e.log.Error().Err(err).Int("bytes", len(utterance)).Msg("Inference failed, dropping utterance")
		return false
	}

	e.result = buildResult(segments, e.maxAlts, e.words)
	e.log.Debug().RawJSON("result", e.result).Msg("Utterance finalized")
	return true
}

// Result returns the last finalized utterance and clears it.
func (e *Engine) Result() []byte {
	out := e.result
	e.result = nil
	if out == nil {
		return []byte(`{"alternatives":[]}`)
	}
	return out
}

func (e *Engine) Reset() {
	e.ep.reset()
	e.result = nil
}

func (e *Engine) Close() error {
	e.Reset()
	return nil
}
