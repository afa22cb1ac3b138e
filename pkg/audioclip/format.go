package audioclip

import "time"

// Format describes 16-bit signed little-endian PCM.
type Format struct {
	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Stereo is true for 2 interleaved channels, false for mono.
	Stereo bool
}

// Speech is the format the SmartNPC service expects for speech input.
var Speech = Format{SampleRate: 16000}

// Channels returns 2 for stereo and 1 for mono.
func (f Format) Channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// FrameBytes returns the size of one sample across all channels.
func (f Format) FrameBytes() int {
	return 2 * f.Channels()
}

// Duration returns the playback length of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	frames := int64(n / f.FrameBytes())
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the number of bytes in d, aligned to whole frames.
func (f Format) Bytes(d time.Duration) int {
	frames := int64(f.SampleRate) * int64(d) / int64(time.Second)
	return int(frames) * f.FrameBytes()
}
