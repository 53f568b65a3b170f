package audio

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"testing"

	"github.com/hajimehoshi/go-mp3"
)

func TestPCMRoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1, 0.999, 1, -0.000031, 0.123456}
	got, err := Decode(Clip{Encoding: RawPCM16LE, SampleRate: 24000, Channels: 1, Data: EncodePCM16LE(in)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Samples) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(got.Samples))
	}
	for i := range in {
		if d := math.Abs(float64(got.Samples[i] - in[i])); d > 1.0/32768+1e-9 {
			t.Errorf("sample %d: in=%f out=%f diff=%g", i, in[i], got.Samples[i], d)
		}
	}
	if got.SampleRate != 24000 || got.Channels != 1 {
		t.Fatalf("unexpected format %+v", got)
	}
}

func TestPCMScaling(t *testing.T) {
	// 0x8000 = -32768, 0x4000 = 16384, 0x7fff = 32767
	data := []byte{0x00, 0x80, 0x00, 0x40, 0xff, 0x7f}
	got, err := Decode(Clip{Encoding: RawPCM16LE, SampleRate: 16000, Data: data})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float32{-1, 0.5, float32(32767.0 / 32768.0)}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Errorf("sample %d: want %f got %f", i, want[i], got.Samples[i])
		}
	}
}

func TestPCMOddTrailingByteIgnored(t *testing.T) {
	data := append(EncodePCM16LE([]float32{0.5, -0.5}), 0x7f)
	got, err := Decode(Clip{Encoding: RawPCM16LE, SampleRate: 16000, Channels: 1, Data: data})
	if err != nil {
		t.Fatalf("odd byte should not be an error: %v", err)
	}
	if len(got.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got.Samples))
	}
}

func TestPCMShorterThanOneSample(t *testing.T) {
	got, err := Decode(Clip{Encoding: RawPCM16LE, SampleRate: 16000, Channels: 1, Data: []byte{0x7f}})
	if err != nil {
		t.Fatalf("lone trailing byte should not be an error: %v", err)
	}
	if len(got.Samples) != 0 || got.SampleRate != 16000 {
		t.Fatalf("expected empty 16 kHz result, got %+v", got)
	}
}

func TestPCMStereoFrames(t *testing.T) {
	data := EncodePCM16LE([]float32{0.1, 0.2, 0.3, 0.4, 0.5})
	got, err := Decode(Clip{Encoding: RawPCM16LE, SampleRate: 48000, Channels: 2, Data: data})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frames() != 2 || len(got.Samples) != 4 {
		t.Fatalf("expected 2 whole frames, got %d samples", len(got.Samples))
	}
}

func TestPCMErrors(t *testing.T) {
	cases := map[string]Clip{
		"empty":      {Encoding: RawPCM16LE, SampleRate: 16000},
		"no rate":    {Encoding: RawPCM16LE, Data: []byte{1, 2}},
		"bad format": {Encoding: Encoding(9), Data: []byte{1, 2}},
	}
	for name, c := range cases {
		_, err := Decode(c)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("%s: expected DecodeError, got %v", name, err)
		}
	}
}

func TestCompressedGarbageIsDecodeError(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("definitely not an mp3 stream")} {
		got, err := Decode(Clip{Encoding: Compressed, Data: data})
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if len(got.Samples) != 0 {
			t.Fatalf("expected no samples on failure, got %d", len(got.Samples))
		}
	}
}

func TestCompressedKeepsNativeFormatAndDecodedLength(t *testing.T) {
	data, err := os.ReadFile("testdata/silence_44100_stereo.mp3")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reference decoder: %v", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("reference read: %v", err)
	}

	got, err := Decode(Clip{Encoding: Compressed, Data: data})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != dec.SampleRate() || got.SampleRate != 44100 {
		t.Fatalf("expected native rate %d, got %d", dec.SampleRate(), got.SampleRate)
	}
	if got.Channels != 2 {
		t.Fatalf("expected stereo, got %d channels", got.Channels)
	}
	if len(got.Samples) != len(raw)/2 {
		t.Fatalf("expected %d samples (decoded bytes/2), got %d; header estimate is %d bytes",
			len(raw)/2, len(got.Samples), dec.Length())
	}
	if got.Frames() == 0 {
		t.Fatalf("expected audio frames")
	}
}

func TestCompressedTruncatedIsDecodeError(t *testing.T) {
	data, err := os.ReadFile("testdata/silence_44100_stereo.mp3")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	got, err := Decode(Clip{Encoding: Compressed, Data: data[:200]})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Encoding != Compressed || len(got.Samples) != 0 {
		t.Fatalf("expected no samples from a partial frame, got %d (%v)", len(got.Samples), de)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := EncodePCM16LE([]float32{0.25, -0.25, 0.75})
	wav := EncodeWAV(Clip{Encoding: RawPCM16LE, SampleRate: 22050, Channels: 1, Data: pcm})
	if !IsWAV(wav) {
		t.Fatalf("expected RIFF header")
	}
	clip, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 || len(clip.Data) != len(pcm) {
		t.Fatalf("unexpected clip %+v", clip)
	}
	s, err := Decode(clip)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Samples[1] != -0.25 {
		t.Fatalf("expected -0.25, got %f", s.Samples[1])
	}
}

func TestParseWAVRejects(t *testing.T) {
	if _, err := ParseWAV([]byte("RIFF")); err == nil {
		t.Fatalf("expected error for short input")
	}
	wav := EncodeWAV(Clip{SampleRate: 8000, Channels: 1, Data: make([]byte, 10)})
	if _, err := ParseWAV(wav[:len(wav)-4]); err == nil {
		t.Fatalf("expected error for truncated data chunk")
	}
}
