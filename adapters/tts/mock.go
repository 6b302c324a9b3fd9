package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

// MockTextToSpeech returns silent placeholder audio sized to the text
type MockTextToSpeech struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// SynthesizeAudio implements repositories.TextToSpeech
func (m *MockTextToSpeech) SynthesizeAudio(ctx context.Context, text string, voice entities.Voice) (entities.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return entities.AudioClip{}, fmt.Errorf("text cannot be empty")
	}

	m.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", voice.ID))

	// one frame header plus padding proportional to the text
	audio := make([]byte, 4+len(text)*16)
	copy(audio, []byte{0xFF, 0xFB, 0x90, 0x64})
	return entities.AudioClip{Data: audio, MimeType: "audio/mpeg"}, nil
}
