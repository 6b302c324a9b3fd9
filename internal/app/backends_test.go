package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/fluent/adapters/stt"
	"github.com/satriahrh/fluent/adapters/tts"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/internal/config"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Speech.Backend = config.BackendMock
	cfg.Synthesis.Backend = config.BackendMock
	return cfg
}

func TestBuild_MockBackends(t *testing.T) {
	cfg := mockConfig()
	cfg.Providers.Mock = true

	b, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &stt.MockSpeechToText{}, b.SpeechToText)
	assert.IsType(t, &tts.MockTextToSpeech{}, b.TextToSpeech)
	assert.NotNil(t, b.Pipeline)
	for provider, available := range b.Chat.Available() {
		assert.True(t, available, "provider %s", provider)
	}
}

func TestBuild_ProvidersWithoutKeysAreUnavailable(t *testing.T) {
	cfg := mockConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"

	b, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, map[entities.Provider]bool{
		entities.ProviderOpenAI:    true,
		entities.ProviderAnthropic: false,
		entities.ProviderGemini:    false,
	}, b.Chat.Available())
}

func TestBuild_ElevenLabsVoiceMapIsValidated(t *testing.T) {
	cfg := mockConfig()
	cfg.Synthesis.Backend = config.BackendElevenLabs
	cfg.Synthesis.ElevenLabsAPIKey = "xi-test"
	cfg.Synthesis.ElevenLabsVoiceMap = "robot=abc"

	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestAudioConfig(t *testing.T) {
	cfg := config.Default()
	ac := AudioConfig(cfg)
	assert.Equal(t, 48000, ac.SampleRate)
	assert.Equal(t, "WEBM_OPUS", ac.Encoding)
	assert.Equal(t, "en-US", ac.Language)
}

func TestHubConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.DefaultProvider = "gemini"
	cfg.Session.DefaultVoice = "en-GB-Neural2-B"

	hub := HubConfig(cfg)
	assert.Equal(t, entities.ProviderGemini, hub.Session.DefaultProvider)
	assert.Equal(t, "en-GB-Neural2-B", hub.Session.DefaultVoice)
	assert.Equal(t, 3*time.Second, hub.Session.ErrorDismissAfter)
	assert.Equal(t, 80*time.Millisecond, hub.Session.Typing.Punctuation)
	assert.Equal(t, 2*time.Minute, hub.PlaybackTimeout)
}
