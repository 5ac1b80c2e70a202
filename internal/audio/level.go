package audio

import (
	"encoding/binary"
	"math"
)

// Peak returns the largest absolute normalized sample in buf, in [0,1].
func Peak(buf []byte, enc Encoding) float32 {
	if enc == EncodingF32LE {
		return PeakF32LE(buf)
	}
	return PeakS16LE(buf)
}

// PeakS16LE scans 16-bit little-endian signed samples. A trailing odd byte is ignored.
func PeakS16LE(buf []byte) float32 {
	var peak float32
	for i := 0; i+1 < len(buf); i += 2 {
		s := float32(int16(binary.LittleEndian.Uint16(buf[i:]))) / 32768
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// PeakF32LE scans 32-bit float samples. Values outside [-1,1] are clipped and
// NaNs skipped so the result stays in range.
func PeakF32LE(buf []byte) float32 {
	var peak float32
	for i := 0; i+3 < len(buf); i += 4 {
		s := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
		if s != s {
			continue
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak > 1 {
		return 1
	}
	return peak
}
