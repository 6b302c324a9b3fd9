package repositories

import (
	"context"

	"github.com/satriahrh/fluent/domain/entities"
)

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// GenerateReply returns the next assistant turn for an ordered transcript.
	// The last message is the user's latest utterance.
	GenerateReply(ctx context.Context, history []entities.Message) (string, error)
}
