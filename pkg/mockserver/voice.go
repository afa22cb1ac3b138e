package mockserver

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
)

// ToneWAV returns a WAV file of a sine tone, fading in and out to avoid
// clicks between chunks.
func ToneWAV(freq float64, d time.Duration, f audioclip.Format) []byte {
	frames := f.Bytes(d) / f.FrameBytes()
	pcm := make([]byte, frames*f.FrameBytes())
	fade := max(frames/10, 1)
	for i := range frames {
		amp := 0.3
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if frames-i < fade {
			amp *= float64(frames-i) / float64(fade)
		}
		v := int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
		for ch := range f.Channels() {
			binary.LittleEndian.PutUint16(pcm[(i*f.Channels()+ch)*2:], uint16(v))
		}
	}
	return audioclip.EncodeWAV(pcm, f)
}
