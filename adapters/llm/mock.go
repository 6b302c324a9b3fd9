package llm

import (
	"context"
	"fmt"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

// MockLLM is a canned reply backend for local development and tests
type MockLLM struct {
	name string
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a mock backend that signs replies with name
func NewMockLLM(name string) *MockLLM {
	return &MockLLM{name: name}
}

// GenerateReply implements repositories.LargeLanguageModel
func (m *MockLLM) GenerateReply(ctx context.Context, history []entities.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	said := lastUserMessage(history)
	if said == "" {
		return "Hi! I'm your English coach. What would you like to talk about today?", nil
	}

	return fmt.Sprintf("Nice! You said: %q. That sounds natural. Can you tell me a bit more? (%s)", said, m.name), nil
}
