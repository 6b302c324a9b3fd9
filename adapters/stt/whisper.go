package stt

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/repositories"
)

// WhisperConfig holds configuration for OpenAI Whisper transcription
type WhisperConfig struct {
	APIKey string
	Model  string
}

// WhisperSpeechToText implements SpeechToText with the OpenAI audio transcription API
type WhisperSpeechToText struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

// NewWhisperSpeechToText creates a Whisper transcription client
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for whisper transcription")
	}

	model := config.Model
	if model == "" {
		model = openai.Whisper1
		logger.Info("Using default model", zap.String("model", model))
	}

	return &WhisperSpeechToText{
		client: openai.NewClient(config.APIKey),
		model:  model,
		logger: logger,
	}, nil
}

// TranscribeAudio uploads the clip and returns Whisper's transcript
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance" + fileExtension(config.Encoding),
		Reader:   bytes.NewReader(audioData),
		Language: whisperLanguage(config.Language),
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	w.logger.Info("Transcription completed",
		zap.Int("audioSize", len(audioData)),
		zap.Int("transcriptLength", len(resp.Text)))

	return resp.Text, nil
}

// fileExtension picks the upload filename extension Whisper uses to sniff the container
func fileExtension(encoding string) string {
	switch encoding {
	case "WEBM_OPUS":
		return ".webm"
	case "OGG_OPUS":
		return ".ogg"
	case "LINEAR16", "WAV":
		return ".wav"
	case "FLAC":
		return ".flac"
	case "MP3":
		return ".mp3"
	default:
		return ".webm"
	}
}

// whisperLanguage reduces a BCP-47 code like "en-US" to ISO-639-1 "en"
func whisperLanguage(language string) string {
	if len(language) >= 2 {
		return language[:2]
	}
	return ""
}
