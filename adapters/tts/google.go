package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

// GoogleTTSConfig holds configuration for Google Cloud Text-to-Speech.
// Without an API key the client falls back to application default credentials.
type GoogleTTSConfig struct {
	APIKey       string
	SpeakingRate float64
}

// GoogleTTS implements TextToSpeech with Google Cloud Text-to-Speech.
// Catalog voice ids are Google voice names, so they are sent as is.
type GoogleTTS struct {
	client       *texttospeech.Client
	speakingRate float64
	logger       *zap.Logger
}

var _ repositories.TextToSpeech = (*GoogleTTS)(nil)

// NewGoogleTTS creates a Google Cloud Text-to-Speech client
func NewGoogleTTS(ctx context.Context, config GoogleTTSConfig, logger *zap.Logger) (*GoogleTTS, error) {
	if config.SpeakingRate < 0 || config.SpeakingRate > 4 {
		return nil, fmt.Errorf("speaking rate must be between 0 and 4, got %f", config.SpeakingRate)
	}

	var opts []option.ClientOption
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	} else {
		logger.Info("No Google API key configured, using application default credentials")
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	return &GoogleTTS{
		client:       client,
		speakingRate: config.SpeakingRate,
		logger:       logger,
	}, nil
}

// SynthesizeAudio renders text as MP3 in the selected voice
func (g *GoogleTTS) SynthesizeAudio(ctx context.Context, text string, voice entities.Voice) (entities.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return entities.AudioClip{}, fmt.Errorf("text cannot be empty")
	}

	resp, err := g.client.SynthesizeSpeech(ctx, synthesizeRequest(text, voice, g.speakingRate))
	if err != nil {
		return entities.AudioClip{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return entities.AudioClip{}, fmt.Errorf("text-to-speech returned no audio")
	}

	g.logger.Info("Speech synthesized",
		zap.String("voiceID", voice.ID),
		zap.Int("textLength", len(text)),
		zap.Int("totalBytes", len(resp.AudioContent)))

	return entities.AudioClip{Data: resp.AudioContent, MimeType: "audio/mpeg"}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleTTS) Close() error {
	return g.client.Close()
}

func synthesizeRequest(text string, voice entities.Voice, speakingRate float64) *texttospeechpb.SynthesizeSpeechRequest {
	gender := texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	switch voice.Gender {
	case entities.VoiceGenderMale:
		gender = texttospeechpb.SsmlVoiceGender_MALE
	case entities.VoiceGenderFemale:
		gender = texttospeechpb.SsmlVoiceGender_FEMALE
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode(),
			Name:         voice.ID,
			SsmlGender:   gender,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  speakingRate,
		},
	}
}
