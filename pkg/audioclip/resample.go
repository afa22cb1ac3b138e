package audioclip

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts a PCM stream from one Format to another. It must be
// closed to release the conversion state.
type Resampler struct {
	src    io.Reader
	srcFmt Format
	dstFmt Format

	mu       sync.Mutex
	closeErr error
	rs       resampling.Resampler
	readBuf  []byte
	leftover []byte
}

// NewResampler reads src in srcFmt and yields dst. Both sample rate and
// channel count may differ.
func NewResampler(src io.Reader, srcFmt, dstFmt Format) (*Resampler, error) {
	r := &Resampler{
		src:    &frameReader{r: src, frame: srcFmt.FrameBytes()},
		srcFmt: srcFmt,
		dstFmt: dstFmt,
	}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.Channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("audioclip: create resampler: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// Resample converts a whole buffer.
func Resample(pcm []byte, srcFmt, dstFmt Format) ([]byte, error) {
	if srcFmt == dstFmt {
		return pcm, nil
	}
	r, err := NewResampler(bytes.NewReader(pcm), srcFmt, dstFmt)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Read fills p with converted samples.
func (r *Resampler) Read(p []byte) (int, error) {
	frame := r.dstFmt.FrameBytes()
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < frame {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/frame*frame]

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}
	if r.closeErr != nil {
		return 0, r.closeErr
	}
	if r.rs == nil {
		return r.readChannels(p)
	}
	return r.readResampled(p)
}

func (r *Resampler) readChannels(p []byte) (int, error) {
	n, err := r.readSource(len(p))
	if n == 0 {
		return 0, err
	}
	copy(p, r.readBuf[:n])
	return n, err
}

func (r *Resampler) readResampled(p []byte) (int, error) {
	ratio := float64(r.srcFmt.SampleRate) / float64(r.dstFmt.SampleRate)
	want := int(float64(len(p))*ratio) + r.dstFmt.FrameBytes()*4

	n, readErr := r.readSource(want)
	if n == 0 {
		if readErr == nil {
			readErr = io.EOF
		}
		return 0, readErr
	}

	samples := n / 2
	input := make([]float64, samples)
	for i := range samples {
		s := int16(r.readBuf[i*2]) | int16(r.readBuf[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}
	output, err := r.rs.Process(input)
	if err != nil {
		return 0, fmt.Errorf("audioclip: resample: %w", err)
	}
	if len(output) == 0 {
		return 0, readErr
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	out = out[:len(out)/r.dstFmt.FrameBytes()*r.dstFmt.FrameBytes()]

	m := copy(p, out)
	if len(out) > m {
		r.leftover = append(r.leftover, out[m:]...)
	}
	return m, readErr
}

// readSource reads up to dstLen bytes in the destination channel layout
// into readBuf.
func (r *Resampler) readSource(dstLen int) (int, error) {
	switch {
	case r.srcFmt.Stereo && !r.dstFmt.Stereo:
		srcLen := dstLen * 2
		r.grow(srcLen)
		n, err := r.src.Read(r.readBuf[:srcLen])
		if n == 0 {
			return 0, err
		}
		return stereoToMono(r.readBuf[:n]), err
	case !r.srcFmt.Stereo && r.dstFmt.Stereo:
		r.grow(dstLen)
		n, err := r.src.Read(r.readBuf[:dstLen/2])
		if n == 0 {
			return 0, err
		}
		return monoToStereo(r.readBuf[:n*2]), err
	default:
		r.grow(dstLen)
		return r.src.Read(r.readBuf[:dstLen])
	}
}

func (r *Resampler) grow(n int) {
	if cap(r.readBuf) < n {
		r.readBuf = make([]byte, n)
	}
	r.readBuf = r.readBuf[:cap(r.readBuf)]
}

// Close releases the conversion state. Later reads fail with
// io.ErrClosedPipe.
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = fmt.Errorf("audioclip: resampler: %w", io.ErrClosedPipe)
	}
	r.rs = nil
	return nil
}

// frameReader reads whole frames from r. A partial frame is held until the
// rest of it arrives; one still pending at EOF is dropped.
type frameReader struct {
	r       io.Reader
	frame   int
	pending []byte
}

func (fr *frameReader) Read(p []byte) (int, error) {
	if len(p) < fr.frame {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fr.frame*fr.frame]
	n := copy(p, fr.pending)
	fr.pending = fr.pending[:0]

	m, err := fr.r.Read(p[n:])
	n += m
	whole := n / fr.frame * fr.frame
	if err == io.EOF {
		return whole, err
	}
	fr.pending = append(fr.pending, p[whole:n]...)
	return whole, err
}

// stereoToMono averages L and R in place and returns the mono length.
func stereoToMono(b []byte) int {
	frames := len(b) / 4
	for i := range frames {
		j, k := i*4, i*2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return frames * 2
}

// monoToStereo duplicates each sample in place. b holds the mono samples in
// its first half.
func monoToStereo(b []byte) int {
	samples := len(b) / 4
	for i := samples - 1; i >= 0; i-- {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		b[j], b[j+1] = s0, s1
		b[j+2], b[j+3] = s0, s1
	}
	return len(b)
}
