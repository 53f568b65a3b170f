package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits interleaved stereo int16 LE.
const (
	mp3Channels   = 2
	mp3FrameBytes = mp3Channels * 2
)

// decodeMP3 reads the stream to its end and keeps exactly the frames produced.
// Decoder.Length() is an estimate from the headers and may overshoot, which
// shows up as trailing silence when used to size the buffer.
func decodeMP3(data []byte) (Samples, error) {
	if len(data) == 0 {
		return Samples{}, &DecodeError{Encoding: Compressed, Reason: "empty payload"}
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Samples{}, &DecodeError{Encoding: Compressed, Reason: "bad header", Err: err}
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return Samples{}, &DecodeError{Encoding: Compressed, Reason: "truncated stream", Err: err}
	}
	frames := len(raw) / mp3FrameBytes
	if frames == 0 {
		return Samples{}, &DecodeError{Encoding: Compressed, Reason: "no audio frames"}
	}
	out := make([]float32, frames*mp3Channels)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(float64(v) / pcm16Scale)
	}
	return Samples{SampleRate: dec.SampleRate(), Channels: mp3Channels, Samples: out}, nil
}
