package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

// ChatService routes reply generation to the backend of the selected provider
type ChatService struct {
	backends        map[entities.Provider]repositories.LargeLanguageModel
	defaultProvider entities.Provider
	logger          *zap.Logger
}

// NewChatService creates a new chat service. Providers without a registered
// backend report domain.ErrProviderUnavailable.
func NewChatService(defaultProvider entities.Provider, logger *zap.Logger) *ChatService {
	if !defaultProvider.IsValid() {
		defaultProvider = entities.ProviderOpenAI
	}
	return &ChatService{
		backends:        make(map[entities.Provider]repositories.LargeLanguageModel),
		defaultProvider: defaultProvider,
		logger:          logger,
	}
}

// Register installs the backend for a provider
func (s *ChatService) Register(provider entities.Provider, llm repositories.LargeLanguageModel) {
	s.backends[provider] = llm
	s.logger.Info("Reply backend registered", zap.String("provider", string(provider)))
}

// DefaultProvider is used when a request names an unknown provider
func (s *ChatService) DefaultProvider() entities.Provider {
	return s.defaultProvider
}

// Available reports which providers have a backend
func (s *ChatService) Available() map[entities.Provider]bool {
	out := make(map[entities.Provider]bool, 3)
	for _, p := range entities.Providers() {
		out[p] = s.backends[p] != nil
	}
	return out
}

// Reply generates the assistant's next message for history using provider
func (s *ChatService) Reply(ctx context.Context, history []entities.Message, provider entities.Provider) (string, error) {
	if !provider.IsValid() {
		provider = s.defaultProvider
	}

	backend := s.backends[provider]
	if backend == nil {
		return "", fmt.Errorf("%w: %s is not configured", domain.ErrProviderUnavailable, provider)
	}

	reply, err := backend.GenerateReply(ctx, history)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return "", err
		}
		return "", &domain.ProviderError{Provider: provider, Err: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w from %s", domain.ErrEmptyReply, provider)
	}

	return reply, nil
}
