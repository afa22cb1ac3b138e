// Package audioclip decodes and plays SmartNPC voice chunks.
//
// Decoder turns MP3, WAV or raw PCM chunks into 16-bit PCM clips and can
// convert them to a fixed output Format. TimedPlayer and WAVRecorder are
// players for hosts without an audio device. EncodeWAV and Resample prepare
// microphone audio for smartnpc.SpeechRecognizer:
//
//	pcm, _ := audioclip.Resample(captured, audioclip.Format{SampleRate: 48000}, audioclip.Speech)
//	recognizer.SendAudio(audioclip.EncodeWAV(pcm, audioclip.Speech))
package audioclip
