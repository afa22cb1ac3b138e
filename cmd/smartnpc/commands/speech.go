package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

var speechCmd = &cobra.Command{
	Use:   "speech",
	Short: "Speech recognition",
}

var speechRecognizeCmd = &cobra.Command{
	Use:   "recognize <file.wav>",
	Short: "Transcribe a WAV file",
	Long: `Transcribe a WAV file with the service's speech recognition.

The audio is converted to 16 kHz mono and streamed in chunks, as a
microphone would deliver it. With --realtime the chunks are paced at
playback speed.

Examples:
  smartnpc speech recognize hello.wav
  smartnpc speech recognize hello.wav --language es --chunk 500ms --realtime`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

type recognition struct {
	File     string            `json:"file" yaml:"file"`
	Language smartnpc.Language `json:"language" yaml:"language"`
	Audio    string            `json:"audio" yaml:"audio"`
	Text     string            `json:"text" yaml:"text"`
}

const speechWait = 30 * time.Second

func runRecognize(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	language, _ := flags.GetString("language")
	chunk, _ := flags.GetDuration("chunk")
	realtime, _ := flags.GetBool("realtime")

	c, err := getContext()
	if err != nil {
		return err
	}
	lang := smartnpc.Language(language)
	if lang == "" {
		lang = c.Language
	}
	if lang == "" {
		lang = smartnpc.LanguageEnglish
	}
	if !slices.Contains(smartnpc.Languages, lang) {
		return fmt.Errorf("unknown language %q", lang)
	}
	if chunk <= 0 {
		return fmt.Errorf("--chunk must be positive")
	}

	chunks, total, err := speechChunks(args[0], chunk)
	if err != nil {
		return err
	}
	printer().Debug("Audio: %s in %d chunks", cli.FormatDuration(total), len(chunks))

	ctx, cancel := interruptible()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	text, err := recognize(ctx, s.conn, lang, chunks, realtime)
	if err != nil {
		return err
	}

	if structuredOutput() {
		return outputResult(recognition{
			File:     args[0],
			Language: lang,
			Audio:    cli.FormatDuration(total),
			Text:     text,
		})
	}
	fmt.Println(text)
	return nil
}

// audioChunk is one WAV chunk in the speech format.
type audioChunk struct {
	wav      []byte
	duration time.Duration
}

// speechChunks loads a WAV file and splits it into chunks in the speech
// format.
func speechChunks(path string, chunk time.Duration) ([]audioChunk, time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	pcm, f, err := audioclip.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	if pcm, err = audioclip.Resample(pcm, f, audioclip.Speech); err != nil {
		return nil, 0, err
	}

	size := max(audioclip.Speech.Bytes(chunk), audioclip.Speech.FrameBytes())
	var chunks []audioChunk
	for off := 0; off < len(pcm); off += size {
		part := pcm[off:min(off+size, len(pcm))]
		chunks = append(chunks, audioChunk{
			wav:      audioclip.EncodeWAV(part, audioclip.Speech),
			duration: audioclip.Speech.Duration(len(part)),
		})
	}
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("%s: no audio", path)
	}
	return chunks, audioclip.Speech.Duration(len(pcm)), nil
}

// recognize streams chunks and returns the final transcript. It stops the
// session once the first partial transcript arrives, so the service
// finishes with the audio it has.
func recognize(ctx context.Context, conn *smartnpc.Connection, lang smartnpc.Language, chunks []audioChunk, realtime bool) (string, error) {
	r := smartnpc.NewSpeechRecognizer(conn, nil)
	defer r.Close()

	var once sync.Once
	progressed := make(chan struct{})
	complete := make(chan string, 1)
	failed := make(chan string, 1)

	r.OnProgress(func(text string, finishing bool) {
		once.Do(func() { close(progressed) })
		printer().Debug("Partial: %s", text)
	})
	r.OnAbort(func() {
		printer().Debug("Aborted before any text; waiting for a late transcript")
	})
	r.OnComplete(func(text string) { offer(complete, text) })
	r.OnException(func(msg string) { offer(failed, msg) })

	if err := r.Start(lang); err != nil {
		return "", err
	}
	for _, c := range chunks {
		if err := r.SendAudio(c.wav); err != nil {
			return "", err
		}
		if realtime {
			select {
			case <-time.After(c.duration):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	deadline := time.After(speechWait)
	select {
	case <-progressed:
		if err := r.Stop(); err != nil {
			return "", err
		}
	case text := <-complete:
		return text, nil
	case msg := <-failed:
		return "", fmt.Errorf("speech recognition: %s", msg)
	case <-deadline:
		return "", fmt.Errorf("speech recognition: %w", smartnpc.ErrTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case text := <-complete:
		return text, nil
	case msg := <-failed:
		return "", fmt.Errorf("speech recognition: %s", msg)
	case <-deadline:
		return "", fmt.Errorf("speech recognition: %w", smartnpc.ErrTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// offer sends v unless ch is full, so loop callbacks never block.
func offer[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func init() {
	speechRecognizeCmd.Flags().StringP("language", "l", "", "Speech language (default from context, then en)")
	speechRecognizeCmd.Flags().Duration("chunk", 250*time.Millisecond, "Audio per chunk")
	speechRecognizeCmd.Flags().Bool("realtime", false, "Pace chunks at playback speed")

	speechCmd.AddCommand(speechRecognizeCmd)
}
