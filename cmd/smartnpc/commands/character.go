package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Character information",
}

var characterInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show a character's profile",
	Long: `Show a character's profile: background, personality, and the
actions, gestures and expressions it can perform.

Examples:
  smartnpc character info mira
  smartnpc character info mira --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := interruptible()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		ch, err := s.character(ctx, args[0], smartnpc.CharacterOptions{})
		if err != nil {
			return err
		}
		defer ch.Close()

		info := ch.Info()
		if structuredOutput() {
			return outputResult(info)
		}
		width, _ := cmd.Flags().GetInt("width")
		card := cli.CharacterCard(cli.NewStyles(cli.DefaultTheme), info)
		card.Help = fmt.Sprintf("%d messages in history", len(ch.Messages()))
		fmt.Println(card.Render(width))
		return nil
	},
}

func init() {
	characterInfoCmd.Flags().Int("width", 60, "Card width")
	characterCmd.AddCommand(characterInfoCmd)
}
