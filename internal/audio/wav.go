package audio

import (
	"bytes"
	"encoding/binary"
)

const wavHeaderLen = 44

// IsWAV reports whether b starts with a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// ParseWAV extracts the PCM16 data chunk of a WAV container as a RawPCM16LE clip.
// Only uncompressed 16-bit PCM is accepted.
func ParseWAV(b []byte) (Clip, error) {
	if len(b) < wavHeaderLen || !IsWAV(b) {
		return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "not a WAV"}
	}
	off := 12
	var channels, bits uint16
	var rate uint32
	var sawFmt bool
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		switch id {
		case "fmt ":
			if size < 16 || off+size > len(b) {
				return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "bad fmt chunk"}
			}
			tag := binary.LittleEndian.Uint16(b[off:])
			channels = binary.LittleEndian.Uint16(b[off+2:])
			rate = binary.LittleEndian.Uint32(b[off+4:])
			bits = binary.LittleEndian.Uint16(b[off+14:])
			if tag != 1 || bits != 16 {
				return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "unsupported WAV format"}
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "data before fmt"}
			}
			if off+size > len(b) {
				return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "truncated data chunk"}
			}
			return Clip{
				Encoding:   RawPCM16LE,
				SampleRate: int(rate),
				Channels:   int(channels),
				Data:       b[off : off+size],
			}, nil
		}
		off += size + size%2 // chunks are word aligned
	}
	return Clip{}, &DecodeError{Encoding: RawPCM16LE, Reason: "no data chunk"}
}

// EncodeWAV wraps a RawPCM16LE clip in a canonical 44-byte WAV header.
func EncodeWAV(c Clip) []byte {
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	var buf bytes.Buffer
	buf.Grow(wavHeaderLen + len(c.Data))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(c.Data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, uint16(ch))
	_ = binary.Write(&buf, le, uint32(c.SampleRate))
	_ = binary.Write(&buf, le, uint32(c.SampleRate*ch*2))
	_ = binary.Write(&buf, le, uint16(ch*2))
	_ = binary.Write(&buf, le, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(c.Data)))
	buf.Write(c.Data)
	return buf.Bytes()
}
