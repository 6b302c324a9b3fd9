package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

const (
	defaultAnthropicModel     = "claude-3-5-sonnet-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicConfig holds configuration for the Anthropic backend
type AnthropicConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
}

// ValidateAnthropicConfig validates the AnthropicConfig
func ValidateAnthropicConfig(config AnthropicConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Anthropic API key is required")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// AnthropicLLM implements the LargeLanguageModel interface using the Anthropic messages API
type AnthropicLLM struct {
	client    anthropic.Client
	logger    *zap.Logger
	model     string
	maxTokens int
	timeout   time.Duration
}

var _ repositories.LargeLanguageModel = (*AnthropicLLM)(nil)

// NewAnthropicLLM creates a new Anthropic LLM instance
func NewAnthropicLLM(config AnthropicConfig, logger *zap.Logger) (*AnthropicLLM, error) {
	if err := ValidateAnthropicConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultAnthropicModel
		logger.Info("Using default model", zap.String("model", model))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &AnthropicLLM{
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		logger:    logger,
		model:     model,
		maxTokens: maxTokens,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// GenerateReply sends the whole transcript and returns the model's answer
func (a *AnthropicLLM) GenerateReply(ctx context.Context, history []entities.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages:  toAnthropicMessages(history),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	reply := b.String()

	a.logger.Info("Anthropic reply generated",
		zap.String("userMessage", preview(lastUserMessage(history))),
		zap.String("responsePreview", preview(reply)),
		zap.String("stopReason", string(message.StopReason)),
		zap.Int("historyLength", len(history)))

	return reply, nil
}

func toAnthropicMessages(history []entities.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))

	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case entities.MessageRoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	return messages
}
