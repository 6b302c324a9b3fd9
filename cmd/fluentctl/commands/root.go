package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/internal/app"
	"github.com/satriahrh/fluent/internal/config"
)

var (
	// Global flags
	outputFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fluentctl",
	Short: "Fluent voice coach CLI",
	Long: `fluentctl - talk to the Fluent English-practice coach from a terminal.

Examples:
  # List the voices a session can select
  fluentctl voices

  # Synthesize a sentence with a British voice
  fluentctl synthesize --voice en-GB-Neural2-A -o hello.mp3 "Hello there!"

  # Run a whole turn locally with the mock backends
  STT_BACKEND=mock TTS_BACKEND=mock MOCK_LLM=true fluentctl turn question.webm

  # Talk to a running server
  fluentctl converse --server ws://localhost:8080/ws -o reply.mp3 question.webm
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file for synthesized audio")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend activity to stderr")

	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(converseCmd)
}

// loadBackends reads the configuration and builds the configured backends.
// Logging is silent unless --verbose is set.
func loadBackends(ctx context.Context) (*config.Config, *app.Backends, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		cfg.Log.Format = "console"
		if logger, err = cfg.Log.NewLogger(); err != nil {
			return nil, nil, nil, err
		}
	}

	backends, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, backends, logger, nil
}
