package audioclip

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Decoder decodes voice chunks to PCM. It implements smartnpc.AudioDecoder
// for the "mp3", "wav" and "pcm" formats.
type Decoder struct {
	// Output, if set, is the format every clip is converted to.
	Output *Format

	// Raw is the format of "pcm" input. Default mono 24 kHz.
	Raw Format
}

var _ smartnpc.AudioDecoder = (*Decoder)(nil)

// Decode implements smartnpc.AudioDecoder.
func (d *Decoder) Decode(ctx context.Context, data []byte, format string) (*smartnpc.Clip, error) {
	var (
		pcm []byte
		f   Format
		err error
	)
	switch format {
	case "mp3", "":
		pcm, f, err = decodeMP3(ctx, data)
	case "wav":
		pcm, f, err = DecodeWAV(data)
	case "pcm":
		pcm, f = data, d.Raw
		if f.SampleRate == 0 {
			f = Format{SampleRate: 24000}
		}
	default:
		return nil, fmt.Errorf("audioclip: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if d.Output != nil && *d.Output != f {
		if pcm, err = Resample(pcm, f, *d.Output); err != nil {
			return nil, err
		}
		f = *d.Output
	}
	return &smartnpc.Clip{
		Format:     format,
		Data:       data,
		PCM:        pcm,
		SampleRate: f.SampleRate,
		Channels:   f.Channels(),
		Duration:   f.Duration(len(pcm)),
	}, nil
}

// decodeMP3 decodes a whole MP3 buffer. go-mp3 always yields stereo.
func decodeMP3(ctx context.Context, data []byte) ([]byte, Format, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, Format{}, fmt.Errorf("audioclip: decode mp3: %w", err)
	}
	f := Format{SampleRate: dec.SampleRate(), Stereo: true}

	var out bytes.Buffer
	if n := dec.Length(); n > 0 {
		out.Grow(int(n))
	}
	buf := make([]byte, 16*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, Format{}, err
		}
		n, err := dec.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Format{}, fmt.Errorf("audioclip: decode mp3: %w", err)
		}
	}
	return out.Bytes(), f, nil
}
