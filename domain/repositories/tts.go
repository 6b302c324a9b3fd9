package repositories

import (
	"context"

	"github.com/satriahrh/fluent/domain/entities"
)

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// SynthesizeAudio renders text in the given catalog voice
	SynthesizeAudio(ctx context.Context, text string, voice entities.Voice) (entities.AudioClip, error)
}
