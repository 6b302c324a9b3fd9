// Package app assembles the configured speech and reply backends into the
// services shared by every session.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/adapters/llm"
	"github.com/satriahrh/fluent/adapters/stt"
	"github.com/satriahrh/fluent/adapters/tts"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
	"github.com/satriahrh/fluent/internal/config"
	"github.com/satriahrh/fluent/usecase"
)

// Backends are the process-wide collaborators of the turn pipeline
type Backends struct {
	SpeechToText repositories.SpeechToText
	TextToSpeech repositories.TextToSpeech
	Chat         *usecase.ChatService
	Pipeline     *usecase.TurnPipeline

	closers []func() error
}

// Build creates every backend the configuration selects
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}

	speechToText, err := b.buildSpeechToText(ctx, cfg.Speech, cfg.Providers.OpenAI.APIKey, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create speech-to-text backend: %w", err)
	}
	b.SpeechToText = speechToText

	textToSpeech, err := b.buildTextToSpeech(ctx, cfg.Synthesis, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create text-to-speech backend: %w", err)
	}
	b.TextToSpeech = textToSpeech

	chat, err := buildChat(ctx, cfg, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Chat = chat

	b.Pipeline = usecase.NewTurnPipeline(b.SpeechToText, b.Chat, b.TextToSpeech, AudioConfig(cfg), logger)
	return b, nil
}

// AudioConfig is the transcription default for clips without a known MIME type
func AudioConfig(cfg *config.Config) repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: cfg.Speech.SampleRate,
		Encoding:   cfg.Speech.Encoding,
		Language:   cfg.Speech.LanguageCode,
	}
}

// Close releases backend clients
func (b *Backends) Close() error {
	var errs []error
	for _, closeFn := range b.closers {
		errs = append(errs, closeFn())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) buildSpeechToText(ctx context.Context, cfg config.SpeechConfig, openAIKey string, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch cfg.Backend {
	case config.BackendMock:
		logger.Info("Using mock speech-to-text")
		return stt.NewMockSpeechToText(logger), nil
	case config.BackendWhisper:
		return stt.NewWhisperSpeechToText(stt.WhisperConfig{
			APIKey: openAIKey,
			Model:  cfg.WhisperModel,
		}, logger)
	default:
		google, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleSpeechConfig{
			APIKey: cfg.GoogleAPIKey,
			Model:  cfg.GoogleModel,
		}, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, google.Close)
		return google, nil
	}
}

func (b *Backends) buildTextToSpeech(ctx context.Context, cfg config.SynthesisConfig, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.Backend {
	case config.BackendMock:
		logger.Info("Using mock text-to-speech")
		return tts.NewMockTextToSpeech(logger), nil
	case config.BackendElevenLabs:
		voiceMap, err := tts.ParseVoiceMap(cfg.ElevenLabsVoiceMap)
		if err != nil {
			return nil, err
		}
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:   cfg.ElevenLabsAPIKey,
			VoiceMap: voiceMap,
		}, logger)
	default:
		google, err := tts.NewGoogleTTS(ctx, tts.GoogleTTSConfig{
			APIKey:       cfg.GoogleAPIKey,
			SpeakingRate: cfg.SpeakingRate,
		}, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, google.Close)
		return google, nil
	}
}

// buildChat registers a backend for every provider with credentials. The
// others stay unavailable unless mock replies are enabled.
func buildChat(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*usecase.ChatService, error) {
	chat := usecase.NewChatService(cfg.DefaultProvider(), logger)
	providers := cfg.Providers

	if key := providers.OpenAI.APIKey; key != "" {
		backend, err := llm.NewOpenAILLM(llm.OpenAIConfig{APIKey: key, Model: providers.OpenAI.Model}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI backend: %w", err)
		}
		chat.Register(entities.ProviderOpenAI, backend)
	}

	if key := providers.Anthropic.APIKey; key != "" {
		backend, err := llm.NewAnthropicLLM(llm.AnthropicConfig{APIKey: key, Model: providers.Anthropic.Model}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic backend: %w", err)
		}
		chat.Register(entities.ProviderAnthropic, backend)
	}

	if key := providers.Gemini.APIKey; key != "" {
		backend, err := llm.NewGeminiLLM(ctx, llm.GeminiConfig{APIKey: key, Model: providers.Gemini.Model}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini backend: %w", err)
		}
		chat.Register(entities.ProviderGemini, backend)
	}

	for provider, available := range chat.Available() {
		switch {
		case available:
		case providers.Mock:
			chat.Register(provider, llm.NewMockLLM(string(provider)))
		default:
			logger.Warn("Provider not configured", zap.String("provider", string(provider)))
		}
	}

	return chat, nil
}
