package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartnpc/smartnpc-go/pkg/cli"
)

const appName = "smartnpc"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smartnpc",
	Short: "SmartNPC CLI tool",
	Long: `SmartNPC CLI - talk to SmartNPC characters from the terminal.

This tool connects to the SmartNPC service and lets you:
  - Inspect characters
  - Chat with a character, with streamed text, voice and behaviors
  - Run scripted conversations
  - View, cache and clear message history
  - Transcribe WAV files with speech recognition

Configuration is stored in ~/.smartnpc/smartnpc/ and supports multiple
contexts, similar to kubectl's context management.

Examples:
  # Set up a new context
  smartnpc config add-context game --key-id KEY_ID --public-key PUBLIC_KEY

  # Point a context at a local mock server
  smartnpc config add-context mock --key-id k --public-key p --host http://localhost:8080

  # Talk to a character
  smartnpc -c game chat mira "Where is the lighthouse?"

  # Pipe history to another command
  smartnpc history list mira --json | jq '.[].response'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.smartnpc/smartnpc/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(characterCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(speechCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c flag or set a default context with 'smartnpc config use-context'")
		}
		return nil, err
	}

	return ctx, nil
}

// printer returns the status printer for the global flags
func printer() *cli.Printer {
	return cli.NewPrinter(verbose)
}

// structuredOutput reports whether results go to a file or a pipe
func structuredOutput() bool {
	return outputJSON || outputFile != ""
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}
