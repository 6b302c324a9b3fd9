package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satriahrh/fluent/adapters"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/internal/app"
	"github.com/satriahrh/fluent/internal/orchestrator"
	"github.com/satriahrh/fluent/internal/recorder"
)

var (
	turnProvider string
	turnVoice    string
)

var turnCmd = &cobra.Command{
	Use:   "turn <audio-file>",
	Short: "Run one conversation turn in-process from an audio file",
	Long: `Record the audio file as if it were spoken into the microphone, then
transcribe it, ask the selected provider for a reply and speak it. The reply
is typed out while it plays.

Example:
  fluentctl turn --provider anthropic -o reply.mp3 question.webm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clip, err := adapters.LoadAudioClip(args[0])
		if err != nil {
			return err
		}

		cfg, backends, logger, err := loadBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer backends.Close()

		observer := &turnObserver{
			out:  &typewriter{w: os.Stdout},
			idle: make(chan entities.StateSnapshot, 16),
		}
		player := adapters.NewMemoryPlayer(nil, 0)

		session := app.SessionConfig(cfg)
		orch, err := orchestrator.New(session, orchestrator.Dependencies{
			Recorder: recorder.New(adapters.NewMemoryAudioInput(clip), logger),
			Pipeline: backends.Pipeline,
			Player:   player,
			Observer: observer,
		}, logger)
		if err != nil {
			return err
		}
		defer orch.Close()

		if turnProvider != "" {
			if _, err := orch.SetProvider(turnProvider); err != nil {
				return err
			}
		}
		if turnVoice != "" {
			if err := orch.SetVoice(turnVoice); err != nil {
				return err
			}
		}

		snap, err := runTurn(cmd.Context(), orch, observer)
		if err != nil {
			return err
		}
		observer.out.reset()

		if snap.LastError != "" {
			return fmt.Errorf("turn failed: %s", snap.LastError)
		}
		if n := len(snap.Messages); n >= 2 {
			fmt.Printf("\nYou said: %s\n", snap.Messages[n-2].Content)
		}

		if outputFile != "" {
			played := player.Played()
			if len(played) == 0 {
				return fmt.Errorf("no audio was spoken")
			}
			if err := os.WriteFile(outputFile, played[len(played)-1].Data, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		return nil
	},
}

func init() {
	turnCmd.Flags().StringVar(&turnProvider, "provider", "", "reply provider: openai, anthropic or gemini")
	turnCmd.Flags().StringVar(&turnVoice, "voice", "", "voice id from the catalog")
}

// runTurn records, submits and waits until the session is idle again
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, observer *turnObserver) (entities.StateSnapshot, error) {
	if err := orch.StartRecording(ctx); err != nil {
		if snap := orch.Snapshot(); snap.LastError != "" {
			return snap, nil
		}
		return entities.StateSnapshot{}, err
	}
	observer.drain()

	if err := orch.StopRecording(ctx); err != nil {
		if snap := orch.Snapshot(); snap.LastError != "" {
			return snap, nil
		}
		return entities.StateSnapshot{}, err
	}

	for {
		select {
		case snap := <-observer.idle:
			if orch.Snapshot().Phase == entities.PhaseIdle {
				return snap, nil
			}
		case <-ctx.Done():
			return entities.StateSnapshot{}, ctx.Err()
		}
	}
}

// turnObserver prints the reveal and reports every return to idle
type turnObserver struct {
	out  *typewriter
	idle chan entities.StateSnapshot
}

func (o *turnObserver) StateChanged(snap entities.StateSnapshot) {
	if snap.Phase != entities.PhaseIdle {
		return
	}
	select {
	case o.idle <- snap:
	default:
	}
}

func (o *turnObserver) Revealed(visible string, index, length int) {
	o.out.reveal(visible, index)
}

func (o *turnObserver) drain() {
	for {
		select {
		case <-o.idle:
		default:
			return
		}
	}
}
