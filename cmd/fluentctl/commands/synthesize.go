package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satriahrh/fluent/domain/entities"
)

var synthesizeVoice string

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <text>",
	Short: "Speak text with the configured text-to-speech backend",
	Long: `Synthesize speech and write it to a file.

Example:
  fluentctl synthesize --voice en-AU-Neural2-A -o ava.mp3 "G'day, how are you going?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFile == "" {
			return fmt.Errorf("output file is required, use -o flag")
		}
		voice, ok := entities.LookupVoice(synthesizeVoice)
		if !ok {
			return fmt.Errorf("unknown voice %q, see 'fluentctl voices'", synthesizeVoice)
		}

		_, backends, _, err := loadBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer backends.Close()

		clip, err := backends.TextToSpeech.SynthesizeAudio(cmd.Context(), strings.Join(args, " "), voice)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputFile, clip.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		fmt.Printf("Wrote %d bytes of %s to %s\n", len(clip.Data), clip.MimeType, outputFile)
		return nil
	},
}

func init() {
	synthesizeCmd.Flags().StringVar(&synthesizeVoice, "voice", entities.DefaultVoiceID, "voice id from the catalog")
}
