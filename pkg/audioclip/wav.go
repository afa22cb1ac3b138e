package audioclip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by DecodeWAV for data that is not 16-bit PCM WAV.
var ErrNotWAV = errors.New("audioclip: not a 16-bit PCM WAV")

const wavHeaderSize = 44

// EncodeWAV wraps pcm in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	binary.Write(&buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, le, uint32(16))
	binary.Write(&buf, le, uint16(1))
	binary.Write(&buf, le, uint16(f.Channels()))
	binary.Write(&buf, le, uint32(f.SampleRate))
	binary.Write(&buf, le, uint32(f.SampleRate*f.FrameBytes()))
	binary.Write(&buf, le, uint16(f.FrameBytes()))
	binary.Write(&buf, le, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, le, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV returns the samples and format of a 16-bit PCM WAV. Chunks other
// than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	le := binary.LittleEndian
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}
	var (
		f      Format
		hasFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(le.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			audioFormat := le.Uint16(data[body:])
			channels := le.Uint16(data[body+2:])
			bits := le.Uint16(data[body+14:])
			if audioFormat != 1 || bits != 16 || channels < 1 || channels > 2 {
				return nil, Format{}, fmt.Errorf("%w: format=%d channels=%d bits=%d", ErrNotWAV, audioFormat, channels, bits)
			}
			f = Format{SampleRate: int(le.Uint32(data[body+4:])), Stereo: channels == 2}
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, Format{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return data[body:end], f, nil
		}
		off = body + size + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}
