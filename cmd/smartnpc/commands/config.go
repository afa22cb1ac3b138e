package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context holds the key pair of one SmartNPC project together with the
player identity and request defaults used with it.

Configuration is stored in ~/.smartnpc/smartnpc/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name. The first context added
becomes the current one.

Example:
  smartnpc config add-context game --key-id KEY_ID --public-key PUBLIC_KEY
  smartnpc config add-context mock --key-id k --public-key p --host http://localhost:8080 \
    --player-id p1 --player-name Alice --voice --behaviors`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()

		keyID, _ := flags.GetString("key-id")
		publicKey, _ := flags.GetString("public-key")
		host, _ := flags.GetString("host")
		playerID, _ := flags.GetString("player-id")
		playerName, _ := flags.GetString("player-name")
		voice, _ := flags.GetBool("voice")
		behaviors, _ := flags.GetBool("behaviors")
		language, _ := flags.GetString("language")
		timeout, _ := flags.GetInt("timeout")

		ctx := &cli.Context{
			KeyID:     keyID,
			PublicKey: publicKey,
			Host:      host,
			Voice:     voice,
			Behaviors: behaviors,
			Language:  smartnpc.Language(language),
			Timeout:   timeout,
		}
		if playerID != "" {
			ctx.Player = &smartnpc.PlayerInfo{ID: playerID, Name: playerName}
		}

		cfg := getConfig()
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}

		printer().Success("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg := getConfig()
		if err := cfg.DeleteContext(name); err != nil {
			return err
		}

		printer().Success("Context %q deleted", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg := getConfig()
		if err := cfg.UseContext(name); err != nil {
			return err
		}

		printer().Success("Switched to context %q", name)
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}

		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tHOST\tPLAYER")

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			host := ctx.Host
			if host == "" {
				host = "(default)"
			}
			player := "-"
			if ctx.Player != nil {
				player = ctx.Player.ID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, host, player)
		}

		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if structuredOutput() {
			masked := make(map[string]*cli.Context, len(cfg.Contexts))
			for name, ctx := range cfg.Contexts {
				masked[name] = ctx.Masked()
			}
			return outputResult(map[string]any{
				"path":            cfg.Path(),
				"current_context": cfg.CurrentContext,
				"contexts":        masked,
			})
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			fmt.Printf("\n  %s:\n", name)
			fmt.Printf("    Key ID: %s\n", ctx.KeyID)
			fmt.Printf("    Public Key: %s\n", cli.MaskAPIKey(ctx.PublicKey))
			if ctx.Host != "" {
				fmt.Printf("    Host: %s\n", ctx.Host)
			}
			if ctx.Player != nil {
				fmt.Printf("    Player: %s (%s)\n", ctx.Player.ID, ctx.Player.Name)
			}
			if ctx.Language != "" {
				fmt.Printf("    Language: %s\n", ctx.Language)
			}
			if ctx.Timeout > 0 {
				fmt.Printf("    Timeout: %ds\n", ctx.Timeout)
			}
			fmt.Printf("    Voice: %v  Behaviors: %v\n", ctx.Voice, ctx.Behaviors)
		}

		return nil
	},
}

func init() {
	// add-context flags
	configAddContextCmd.Flags().String("key-id", "", "Key ID (required)")
	configAddContextCmd.Flags().String("public-key", "", "Public key (required)")
	configAddContextCmd.Flags().String("host", "", "Service URL (default "+smartnpc.DefaultHost+")")
	configAddContextCmd.Flags().String("player-id", "", "Player ID announced after authentication")
	configAddContextCmd.Flags().String("player-name", "", "Player display name")
	configAddContextCmd.Flags().Bool("voice", false, "Request spoken replies by default")
	configAddContextCmd.Flags().Bool("behaviors", false, "Request behaviors by default")
	configAddContextCmd.Flags().String("language", "", "Default speech recognition language")
	configAddContextCmd.Flags().Int("timeout", 0, "Request timeout in seconds")

	// Add subcommands
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
