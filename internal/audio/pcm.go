package audio

import (
	"encoding/binary"
	"math"
)

const pcm16Scale = 32768.0

func decodePCM16LE(c Clip) (Samples, error) {
	if c.SampleRate <= 0 {
		return Samples{}, &DecodeError{Encoding: RawPCM16LE, Reason: "missing sample rate"}
	}
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	if len(c.Data) == 0 {
		return Samples{}, &DecodeError{Encoding: RawPCM16LE, Reason: "empty payload"}
	}
	n := len(c.Data) / 2 // odd trailing byte is ignored
	n -= n % ch          // as is an incomplete trailing frame
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(c.Data[i*2:]))
		out[i] = float32(float64(v) / pcm16Scale)
	}
	return Samples{SampleRate: c.SampleRate, Channels: ch, Samples: out}, nil
}

// EncodePCM16LE quantizes floats to signed 16-bit little-endian PCM, clamping to range.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := math.Round(float64(f) * pcm16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
