package commands

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

var chatCmd = &cobra.Command{
	Use:   "chat [character] [message...]",
	Short: "Talk to a character",
	Long: `Talk to a character. Replies are streamed word by word, with behaviors
shown as stage directions.

With a message, it is sent and the command exits after the reply. Without
one, an interactive session starts; type /help for its commands. With
--script, the messages of a script file are sent one after another.

Voice replies are decoded and played on a timer that matches the audio
length, so text is revealed at speaking pace. --save-voice writes the
audio of the session to a WAV file.

Example script (chat.yaml):
  character: mira
  behaviors: true
  pause: 1s
  messages:
    - Hello there
    - Where is the lighthouse?

Examples:
  smartnpc chat mira "Hello!"
  smartnpc chat mira --voice --save-voice ./voice
  smartnpc chat --script chat.yaml --json`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

// transcript is the structured output of a chat.
type transcript struct {
	Character string          `json:"character" yaml:"character"`
	Exchanges []exchangeEntry `json:"exchanges" yaml:"exchanges"`
	Voice     string          `json:"voice,omitempty" yaml:"voice,omitempty"`
}

type exchangeEntry struct {
	Message   string   `json:"message" yaml:"message"`
	Response  string   `json:"response,omitempty" yaml:"response,omitempty"`
	Behaviors []string `json:"behaviors,omitempty" yaml:"behaviors,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
	Duration  string   `json:"duration" yaml:"duration"`
}

func runChat(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	scriptFile, _ := flags.GetString("script")

	var (
		script *cli.Script
		id     string
	)
	if scriptFile != "" {
		s, err := cli.LoadScript(scriptFile)
		if err != nil {
			return err
		}
		script = s
		id = s.Character
		if len(args) > 0 {
			id = args[0]
		}
		if len(args) > 1 {
			return fmt.Errorf("messages cannot be combined with --script")
		}
	} else if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		return fmt.Errorf("character is required")
	}

	c, err := getContext()
	if err != nil {
		return err
	}
	voice, behaviors := c.Voice, c.Behaviors
	if script != nil {
		if script.Voice != nil {
			voice = *script.Voice
		}
		if script.Behaviors != nil {
			behaviors = *script.Behaviors
		}
	}
	if flags.Changed("voice") {
		voice, _ = flags.GetBool("voice")
	}
	if flags.Changed("behaviors") {
		behaviors, _ = flags.GetBool("behaviors")
	}
	voiceFormat, _ := flags.GetString("voice-format")
	voiceDir, _ := flags.GetString("save-voice")
	speed, _ := flags.GetFloat64("speed")

	ctx, cancel := interruptible()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cs := &chatSession{
		id:      id,
		out:     os.Stdout,
		styles:  cli.NewStyles(cli.DefaultTheme),
		quiet:   structuredOutput(),
		done:    make(chan smartnpc.Message, 1),
		pcmFmt:  audioclip.Format{SampleRate: 24000},
		timeout: time.Duration(c.Timeout) * time.Second,
	}
	opts := smartnpc.CharacterOptions{Voice: voice, Behaviors: behaviors, VoiceFormat: voiceFormat}
	if voice {
		opts.Decoder = &audioclip.Decoder{Output: &cs.pcmFmt}
		if speed > 0 {
			opts.Player = &audioclip.TimedPlayer{Sink: &cs.pcm, Speed: speed}
		} else {
			cs.recorder = &audioclip.WAVRecorder{Format: cs.pcmFmt}
			opts.Player = cs.recorder
		}
	}

	ch, err := s.character(ctx, id, opts)
	if err != nil {
		return err
	}
	defer ch.Close()
	cs.bind(ch)

	if cache, err := openCache(c); err != nil {
		printer().Warning("History cache unavailable: %v", err)
	} else {
		defer cache.Close()
		cs.cache = cache
	}

	switch {
	case script != nil:
		err = cs.runScript(ctx, script)
	case len(args) > 1:
		_, err = cs.send(ctx, strings.Join(args[1:], " "))
	default:
		err = cs.interactive(ctx, os.Stdin)
	}

	if voice && voiceDir != "" {
		path, werr := cs.saveVoice(voiceDir)
		if werr != nil {
			printer().Warning("Saving voice: %v", werr)
		} else if path != "" {
			cs.result.Voice = path
			if !cs.quiet {
				printer().Success("Voice saved to %s", path)
			}
		}
	}
	if err != nil {
		return err
	}
	if cs.quiet {
		cs.result.Character = id
		return outputResult(cs.result)
	}
	return nil
}

// chatSession prints a conversation with one character.
type chatSession struct {
	id      string
	out     io.Writer
	styles  cli.Styles
	quiet   bool
	timeout time.Duration
	ch      *smartnpc.Character
	cache   history.Store
	done    chan smartnpc.Message
	result  transcript

	pcmFmt   audioclip.Format
	pcm      bytes.Buffer
	recorder *audioclip.WAVRecorder
}

// bind subscribes to the character. Handlers run on the loop goroutine.
func (cs *chatSession) bind(ch *smartnpc.Character) {
	cs.ch = ch
	name := cs.id
	if info := ch.Info(); info != nil && info.Name != "" {
		name = info.Name
	}
	started := false

	ch.OnMessageStart(func(smartnpc.Message) { started = false })
	ch.OnMessageProgress(func(m smartnpc.Message) {
		if cs.quiet || m.Chunk == "" {
			return
		}
		if !started {
			fmt.Fprint(cs.out, cs.styles.Speaker(name, false))
			started = true
		}
		fmt.Fprint(cs.out, m.Chunk)
	})
	ch.Behaviors().Consume(func(b smartnpc.Behavior, next func()) {
		if !cs.quiet {
			fmt.Fprint(cs.out, " "+cs.styles.BehaviorLine(b)+" ")
		}
		next()
	})
	ch.OnExpressionChange(func(expr string) {
		if !cs.quiet {
			fmt.Fprint(cs.out, " "+cs.styles.BehaviorLine(smartnpc.Expression{Current: expr})+" ")
		}
	})
	ch.OnMessageComplete(func(m smartnpc.Message) {
		if !cs.quiet {
			fmt.Fprintln(cs.out)
		}
		offer(cs.done, m)
	})
	ch.OnMessageException(func(m smartnpc.Message) {
		if !cs.quiet {
			if started {
				fmt.Fprintln(cs.out)
			}
			fmt.Fprintln(cs.out, cs.styles.ErrorLine(m.Err))
		}
		offer(cs.done, m)
	})
	ch.Voice().OnError(func(err error) {
		printer().Debug("voice: %v", err)
	})
}

// send sends text and waits for the reply to finish, voice included.
func (cs *chatSession) send(ctx context.Context, text string) (smartnpc.Message, error) {
	select {
	case <-cs.done: // late reply of a timed-out message
	default:
	}
	start := time.Now()
	if err := cs.ch.SendMessage(text); err != nil {
		return smartnpc.Message{}, err
	}

	var timeout <-chan time.Time
	if cs.timeout > 0 {
		timeout = time.After(cs.timeout)
	}
	var msg smartnpc.Message
	select {
	case msg = <-cs.done:
	case <-timeout:
		return msg, fmt.Errorf("reply from %s: %w", cs.id, smartnpc.ErrTimeout)
	case <-ctx.Done():
		return msg, ctx.Err()
	}

	entry := exchangeEntry{
		Message:  text,
		Response: msg.Response,
		Duration: cli.FormatDuration(time.Since(start)),
	}
	for _, b := range msg.Behaviors {
		raw := smartnpc.Raw(b)
		entry.Behaviors = append(entry.Behaviors, fmt.Sprintf("%s%v", raw.Type, raw.Args))
	}
	if msg.Err != nil {
		entry.Error = msg.Err.Error()
	} else if cs.cache != nil {
		if err := cs.cache.Append(ctx, cs.id, msg.Record()); err != nil {
			printer().Warning("Caching history: %v", err)
		}
	}
	cs.result.Exchanges = append(cs.result.Exchanges, entry)
	printer().Debug("Reply took %s", entry.Duration)
	return msg, nil
}

func (cs *chatSession) runScript(ctx context.Context, s *cli.Script) error {
	for i, text := range s.Messages {
		if i > 0 && s.Pause > 0 {
			select {
			case <-time.After(time.Duration(s.Pause)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !cs.quiet {
			fmt.Fprintln(cs.out, cs.styles.Speaker("You", true)+text)
		}
		if _, err := cs.send(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

const interactiveHelp = `Commands:
  /info     show the character's profile
  /history  show the conversation so far
  /clear    clear the message history
  /quit     leave`

func (cs *chatSession) interactive(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(cs.out, cs.styles.Help.Render("Talking to "+cs.id+". Type /help for commands."))
	for {
		fmt.Fprint(cs.out, cs.styles.Speaker("You", true))
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(cs.out)
				return nil
			}
			line = strings.TrimSpace(l)
		case <-ctx.Done():
			fmt.Fprintln(cs.out)
			return nil
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(cs.out, cs.styles.Help.Render(interactiveHelp))
			continue
		case "/info":
			if info := cs.ch.Info(); info != nil {
				fmt.Fprintln(cs.out, cli.CharacterCard(cs.styles, info).Render(60))
			}
			continue
		case "/history":
			for _, m := range cs.ch.Messages() {
				fmt.Fprintln(cs.out, cs.styles.Speaker("You", true)+m.Message)
				fmt.Fprintln(cs.out, cs.styles.Speaker(cs.id, false)+m.Response)
			}
			continue
		case "/clear":
			if err := cs.clear(ctx); err != nil {
				fmt.Fprintln(cs.out, cs.styles.ErrorLine(err))
			} else {
				printer().Success("History cleared")
			}
			continue
		}

		if _, err := cs.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(cs.out, cs.styles.ErrorLine(err))
		}
	}
}

func (cs *chatSession) clear(ctx context.Context) error {
	done := make(chan error, 1)
	if err := cs.ch.ClearMessageHistory(func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if cs.cache != nil {
		return cs.cache.Clear(ctx, cs.id)
	}
	return nil
}

// saveVoice writes the session's audio under dir. It returns "" when no
// audio was played.
func (cs *chatSession) saveVoice(dir string) (string, error) {
	var wav []byte
	if cs.recorder != nil {
		if cs.recorder.Len() == 0 {
			return "", nil
		}
		var buf bytes.Buffer
		if _, err := cs.recorder.WriteTo(&buf); err != nil {
			return "", err
		}
		wav = buf.Bytes()
	} else {
		if cs.pcm.Len() == 0 {
			return "", nil
		}
		wav = audioclip.EncodeWAV(cs.pcm.Bytes(), cs.pcmFmt)
	}

	if _, err := cli.EnsureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.wav", cs.id, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", err
	}
	printer().Debug("Wrote %s of audio", cli.FormatBytes(len(wav)))
	return path, nil
}

func init() {
	chatCmd.Flags().StringP("script", "f", "", "Run a chat script (YAML or JSON, - for stdin)")
	chatCmd.Flags().Bool("voice", false, "Request spoken replies (default from context)")
	chatCmd.Flags().Bool("behaviors", false, "Request behaviors (default from context)")
	chatCmd.Flags().String("voice-format", "mp3", "Encoding of voice chunks (mp3, wav, pcm)")
	chatCmd.Flags().String("save-voice", "", "Directory to save the session's audio to")
	chatCmd.Flags().Float64("speed", 1, "Playback speed for voice pacing; 0 skips waiting")
}
