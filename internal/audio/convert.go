package audio

import (
	"encoding/binary"
	"math"
)

// ToRecognizerPCM converts a buffer in format from to RecognizerFormat.
// Conversion order: decode, downmix, resample, encode. If from already matches,
// buf is returned as is.
func ToRecognizerPCM(buf []byte, from Format) []byte {
	if from == RecognizerFormat {
		return buf
	}

	channels := from.Channels
	if channels < 1 {
		channels = 1
	}
	samples := decode(buf, from.Encoding)
	frames := len(samples) / channels

	mono := downmixInterleaved(samples, channels, frames)
	if from.SampleRate > 0 && from.SampleRate != RecognizerFormat.SampleRate {
		mono = resampleLinear(mono, from.SampleRate, RecognizerFormat.SampleRate)
	}
	return encodeS16LE(mono)
}

func decode(buf []byte, enc Encoding) []float32 {
	if enc == EncodingF32LE {
		out := make([]float32, len(buf)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return out
	}
	out := make([]float32, len(buf)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
	}
	return out
}

// downmixInterleaved averages each interleaved frame into a single sample.
// Mono input is copied so the result never aliases the caller's slice.
func downmixInterleaved(samples []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, samples[:frames])
		return out
	}
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += samples[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resampleLinear converts mono samples between rates using linear interpolation.
func resampleLinear(in []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, outLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 < len(in) {
			out[i] = in[idx]*(1-frac) + in[idx+1]*frac
		} else {
			out[i] = in[len(in)-1]
		}
	}
	return out
}

func encodeS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
