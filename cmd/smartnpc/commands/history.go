package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Message history",
	Long: `View and clear the message history of a character.

History fetched from the service is cached locally per context in
~/.smartnpc/smartnpc/history/<context>, so it can be read offline with
--cached.`,
}

// historyRecord is the printable form of a history entry.
type historyRecord struct {
	Seq       uint64   `json:"seq" yaml:"seq"`
	Time      string   `json:"time" yaml:"time"`
	Message   string   `json:"message" yaml:"message"`
	Response  string   `json:"response" yaml:"response"`
	Behaviors []string `json:"behaviors,omitempty" yaml:"behaviors,omitempty"`
}

var historyListCmd = &cobra.Command{
	Use:   "list <character>",
	Short: "List a character's message history",
	Long: `List a character's message history, oldest first.

Examples:
  smartnpc history list mira
  smartnpc history list mira --cached
  smartnpc history list mira --json | jq '.[].response'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		cached, _ := cmd.Flags().GetBool("cached")

		c, err := getContext()
		if err != nil {
			return err
		}
		cache, err := openCache(c)
		if err != nil {
			return err
		}
		defer cache.Close()

		ctx, cancel := interruptible()
		defer cancel()

		if !cached {
			if err := refreshCache(ctx, cache, id); err != nil {
				return err
			}
		}
		entries, err := cache.List(ctx, id)
		if err != nil {
			return err
		}
		return printHistory(id, entries)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <character>",
	Short: "Clear a character's message history",
	Long: `Ask the service to forget the conversation with a character and
drop the local cache. With --cached only the local cache is dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		cachedOnly, _ := cmd.Flags().GetBool("cached")

		c, err := getContext()
		if err != nil {
			return err
		}
		ctx, cancel := interruptible()
		defer cancel()

		if !cachedOnly {
			if err := clearRemote(ctx, id); err != nil {
				return err
			}
		}

		cache, err := openCache(c)
		if err != nil {
			return err
		}
		defer cache.Close()
		if err := cache.Clear(ctx, id); err != nil {
			return err
		}

		printer().Success("History of %q cleared", id)
		return nil
	},
}

// refreshCache replaces the cached history of a character with the
// service's copy.
func refreshCache(ctx context.Context, cache history.Store, id string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ch, err := s.character(ctx, id, smartnpc.CharacterOptions{})
	if err != nil {
		return err
	}
	defer ch.Close()

	msgs := ch.Messages()
	records := make([]smartnpc.HistoryMessage, len(msgs))
	for i, m := range msgs {
		records[i] = m.Record()
	}
	printer().Debug("Fetched %d messages", len(records))
	return cache.Replace(ctx, id, records)
}

func clearRemote(ctx context.Context, id string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ch, err := s.character(ctx, id, smartnpc.CharacterOptions{})
	if err != nil {
		return err
	}
	defer ch.Close()

	done := make(chan error, 1)
	if err := ch.ClearMessageHistory(func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toRecords(entries []history.Entry) []historyRecord {
	now := time.Now()
	out := make([]historyRecord, 0, len(entries))
	for _, e := range entries {
		r := historyRecord{
			Seq:      e.Seq,
			Time:     cli.FormatTime(e.Time, now),
			Message:  e.Message.Message,
			Response: e.Message.Response,
		}
		for _, b := range e.Message.Behaviors {
			r.Behaviors = append(r.Behaviors, fmt.Sprintf("%s%v", b.Type, b.Args))
		}
		out = append(out, r)
	}
	return out
}

func printHistory(id string, entries []history.Entry) error {
	if structuredOutput() {
		return outputResult(toRecords(entries))
	}
	if len(entries) == 0 {
		fmt.Printf("No messages with %s\n", id)
		return nil
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	now := time.Now()
	for _, e := range entries {
		fmt.Println(styles.Help.Render(fmt.Sprintf("#%d  %s", e.Seq, cli.FormatTime(e.Time, now))))
		fmt.Println(styles.Speaker("You", true) + e.Message.Message)
		fmt.Println(styles.Speaker(id, false) + e.Message.Response)
		behaviors, errs := smartnpc.ParseBehaviors(e.Message.Behaviors)
		for _, b := range behaviors {
			fmt.Println("  " + styles.BehaviorLine(b))
		}
		for _, err := range errs {
			printer().Debug("skip behavior: %v", err)
		}
		fmt.Println()
	}
	return nil
}

func init() {
	historyListCmd.Flags().Bool("cached", false, "Read the local cache without connecting")
	historyClearCmd.Flags().Bool("cached", false, "Only clear the local cache")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
}
