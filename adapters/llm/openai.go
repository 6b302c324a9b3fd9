package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI backend
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	MaxTokens      int
	TimeoutSeconds int
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// OpenAILLM implements the LargeLanguageModel interface using the OpenAI chat completions API
type OpenAILLM struct {
	client    openai.Client
	logger    *zap.Logger
	model     string
	maxTokens int
	timeout   time.Duration
}

var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

// NewOpenAILLM creates a new OpenAI LLM instance
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &OpenAILLM{
		client:    openai.NewClient(opts...),
		logger:    logger,
		model:     model,
		maxTokens: config.MaxTokens,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// GenerateReply sends the whole transcript and returns the model's answer
func (o *OpenAILLM) GenerateReply(ctx context.Context, history []entities.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: toOpenAIMessages(SystemPrompt, history),
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(o.maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		o.logger.Warn("No choices returned", zap.String("model", o.model))
		return "", nil
	}

	reply := resp.Choices[0].Message.Content

	o.logger.Info("OpenAI reply generated",
		zap.String("userMessage", preview(lastUserMessage(history))),
		zap.String("responsePreview", preview(reply)),
		zap.Int("historyLength", len(history)))

	return reply, nil
}

func toOpenAIMessages(system string, history []entities.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(system))

	for _, msg := range history {
		switch msg.Role {
		case entities.MessageRoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	return messages
}
