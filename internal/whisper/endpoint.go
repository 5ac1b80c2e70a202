package whisper

import (
	"encoding/binary"
	"math"
)

// endpointer accumulates s16le mono audio and decides when an utterance is
// over: after silenceMs of quiet following speech, or once maxMs of audio is
// buffered. Leading silence is never buffered.
type endpointer struct {
	sampleRate int
	threshold  float64 // RMS on the int16 scale
	silenceMs  int
	maxMs      int

	buffer    []byte
	hadSpeech bool
	silentMs  int
}

// push buffers chunk and reports whether the utterance should be finalized.
func (e *endpointer) push(chunk []byte) bool {
	ms := chunkMs(chunk, e.sampleRate)

	if rms(chunk) < e.threshold {
		if !e.hadSpeech {
			return false
		}
		e.silentMs += ms
		e.buffer = append(e.buffer, chunk...)
		return e.silentMs >= e.silenceMs
	}

	e.hadSpeech = true
	e.silentMs = 0
	e.buffer = append(e.buffer, chunk...)
	return e.maxMs > 0 && len(e.buffer) >= e.maxMs*e.sampleRate*2/1000
}

// take returns the buffered utterance and resets for the next one.
func (e *endpointer) take() []byte {
	out := e.buffer
	e.reset()
	return out
}

func (e *endpointer) reset() {
	e.buffer = nil
	e.hadSpeech = false
	e.silentMs = 0
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func chunkMs(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return len(pcm) / 2 * 1000 / sampleRate
}

func pcmToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}
