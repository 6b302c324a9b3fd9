package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// TranscribeAudio implements repositories.SpeechToText.
// Very short clips are treated as silence.
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	switch {
	case len(audioData) > 10000:
		return "How do I improve my pronunciation?", nil
	case len(audioData) > 5000:
		return "Can you help me practice for a job interview?", nil
	case len(audioData) > 1000:
		return "Hello coach!", nil
	case len(audioData) > 100:
		return "Hi", nil
	default:
		return "", nil
	}
}
