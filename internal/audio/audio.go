// Package audio turns synthesized speech payloads into normalized sample buffers.
package audio

import "fmt"

// Encoding identifies how an AudioClip's bytes are laid out.
type Encoding int

const (
	// Compressed is a lossy compressed stream (MP3).
	Compressed Encoding = iota + 1
	// RawPCM16LE is signed 16-bit little-endian PCM, interleaved when multi-channel.
	RawPCM16LE
)

func (e Encoding) String() string {
	switch e {
	case Compressed:
		return "compressed"
	case RawPCM16LE:
		return "pcm16le"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Clip is an encoded audio payload as returned by a TTS provider.
type Clip struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	Data       []byte
}

// Samples is a decoded clip: interleaved floats in [-1, 1].
type Samples struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames (samples per channel).
func (s Samples) Frames() int {
	if s.Channels <= 0 {
		return len(s.Samples)
	}
	return len(s.Samples) / s.Channels
}

// DecodeError reports a malformed or truncated payload.
type DecodeError struct {
	Encoding Encoding
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Encoding, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Encoding, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode converts a clip to normalized samples. It never returns a partial buffer.
func Decode(c Clip) (Samples, error) {
	switch c.Encoding {
	case RawPCM16LE:
		return decodePCM16LE(c)
	case Compressed:
		return decodeMP3(c.Data)
	default:
		return Samples{}, &DecodeError{Encoding: c.Encoding, Reason: "unknown encoding"}
	}
}
