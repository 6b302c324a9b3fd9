// Package config loads server settings from an optional TOML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/internal/typing"
)

// Duration decodes from TOML strings such as "3s" or "80ms"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full server configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Session   SessionConfig   `toml:"session"`
	Speech    SpeechConfig    `toml:"speech"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Providers ProvidersConfig `toml:"providers"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

// SessionConfig tunes each conversation session
type SessionConfig struct {
	DefaultProvider   string       `toml:"default_provider"`
	DefaultVoice      string       `toml:"default_voice"`
	ErrorDismissAfter Duration     `toml:"error_dismiss_after"`
	PlaybackTimeout   Duration     `toml:"playback_timeout"`
	CaptureTimeout    Duration     `toml:"capture_timeout"`
	IdleTimeout       Duration     `toml:"idle_timeout"`
	Typing            TypingConfig `toml:"typing"`
}

type TypingConfig struct {
	Whitespace  Duration `toml:"whitespace"`
	Punctuation Duration `toml:"punctuation"`
	Default     Duration `toml:"default"`
}

// SpeechConfig selects and configures speech recognition
type SpeechConfig struct {
	Backend      string `toml:"backend"`
	LanguageCode string `toml:"language_code"`
	SampleRate   int    `toml:"sample_rate"`
	Encoding     string `toml:"encoding"`
	GoogleAPIKey string `toml:"google_api_key"`
	GoogleModel  string `toml:"google_model"`
	WhisperModel string `toml:"whisper_model"`
}

// SynthesisConfig selects and configures speech synthesis
type SynthesisConfig struct {
	Backend            string  `toml:"backend"`
	GoogleAPIKey       string  `toml:"google_api_key"`
	SpeakingRate       float64 `toml:"speaking_rate"`
	ElevenLabsAPIKey   string  `toml:"eleven_labs_api_key"`
	ElevenLabsVoiceMap string  `toml:"eleven_labs_voice_map"`
}

type ProviderConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// ProvidersConfig holds reply backend credentials. With Mock set, providers
// without an API key get a canned local backend instead of being unavailable.
type ProvidersConfig struct {
	Mock      bool           `toml:"mock"`
	OpenAI    ProviderConfig `toml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic"`
	Gemini    ProviderConfig `toml:"gemini"`
}

type LogConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

const (
	BackendGoogle     = "google"
	BackendWhisper    = "whisper"
	BackendElevenLabs = "elevenlabs"
	BackendMock       = "mock"
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Session: SessionConfig{
			DefaultProvider:   string(entities.ProviderOpenAI),
			DefaultVoice:      entities.DefaultVoiceID,
			ErrorDismissAfter: Duration{3 * time.Second},
			PlaybackTimeout:   Duration{2 * time.Minute},
			CaptureTimeout:    Duration{10 * time.Second},
			IdleTimeout:       Duration{30 * time.Minute},
			Typing: TypingConfig{
				Whitespace:  Duration{20 * time.Millisecond},
				Punctuation: Duration{80 * time.Millisecond},
				Default:     Duration{30 * time.Millisecond},
			},
		},
		Speech: SpeechConfig{
			Backend:      BackendGoogle,
			LanguageCode: "en-US",
			SampleRate:   48000,
			Encoding:     "WEBM_OPUS",
		},
		Synthesis: SynthesisConfig{
			Backend:      BackendGoogle,
			SpeakingRate: 1.0,
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// FLUENT_CONFIG, then .env, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("FLUENT_CONFIG"); path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Unknown keys are an error.
func LoadTOML(cfg *Config, path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides overlays environment variables found by lookup
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("PORT", &c.Server.Port)

	str("DEFAULT_LLM_PROVIDER", &c.Session.DefaultProvider)
	str("DEFAULT_VOICE", &c.Session.DefaultVoice)
	duration("ERROR_DISMISS_AFTER", &c.Session.ErrorDismissAfter)
	duration("PLAYBACK_TIMEOUT", &c.Session.PlaybackTimeout)
	duration("CAPTURE_TIMEOUT", &c.Session.CaptureTimeout)
	duration("SESSION_IDLE_TIMEOUT", &c.Session.IdleTimeout)
	duration("TYPING_DELAY_WHITESPACE", &c.Session.Typing.Whitespace)
	duration("TYPING_DELAY_PUNCTUATION", &c.Session.Typing.Punctuation)
	duration("TYPING_DELAY_DEFAULT", &c.Session.Typing.Default)

	str("STT_BACKEND", &c.Speech.Backend)
	str("LANGUAGE_CODE", &c.Speech.LanguageCode)
	integer("SAMPLE_RATE", &c.Speech.SampleRate)
	str("AUDIO_ENCODING", &c.Speech.Encoding)
	str("GOOGLE_API_KEY", &c.Speech.GoogleAPIKey)
	str("WHISPER_MODEL", &c.Speech.WhisperModel)

	str("TTS_BACKEND", &c.Synthesis.Backend)
	str("GOOGLE_API_KEY", &c.Synthesis.GoogleAPIKey)
	float("SPEAKING_RATE", &c.Synthesis.SpeakingRate)
	str("ELEVEN_LABS_API_KEY", &c.Synthesis.ElevenLabsAPIKey)
	str("ELEVEN_LABS_VOICE_MAP", &c.Synthesis.ElevenLabsVoiceMap)

	boolean("MOCK_LLM", &c.Providers.Mock)
	str("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.Providers.OpenAI.Model)
	str("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	str("ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)
	str("GOOGLE_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	str("GEMINI_MODEL", &c.Providers.Gemini.Model)

	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// ValidationError reports one invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is every validation failure found
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		add("server.port", "invalid port %q", c.Server.Port)
	}

	if !entities.Provider(strings.ToLower(c.Session.DefaultProvider)).IsValid() {
		add("session.default_provider", "unknown provider %q, must be one of: openai, anthropic, gemini", c.Session.DefaultProvider)
	}
	if _, ok := entities.LookupVoice(c.Session.DefaultVoice); !ok {
		add("session.default_voice", "voice %q is not in the catalog", c.Session.DefaultVoice)
	}
	if c.Session.ErrorDismissAfter.Duration <= 0 {
		add("session.error_dismiss_after", "must be positive")
	}
	if c.Session.PlaybackTimeout.Duration <= 0 {
		add("session.playback_timeout", "must be positive")
	}
	if c.Session.CaptureTimeout.Duration <= 0 {
		add("session.capture_timeout", "must be positive")
	}
	if c.Session.IdleTimeout.Duration <= 0 {
		add("session.idle_timeout", "must be positive")
	}
	for field, d := range map[string]Duration{
		"session.typing.whitespace":  c.Session.Typing.Whitespace,
		"session.typing.punctuation": c.Session.Typing.Punctuation,
		"session.typing.default":     c.Session.Typing.Default,
	} {
		if d.Duration <= 0 || d.Duration > time.Second {
			add(field, "must be between 1ns and 1s, got %s", d.Duration)
		}
	}

	switch c.Speech.Backend {
	case BackendGoogle, BackendWhisper, BackendMock:
	default:
		add("speech.backend", "unknown backend %q, must be one of: google, whisper, mock", c.Speech.Backend)
	}
	if c.Speech.Backend == BackendWhisper && c.Providers.OpenAI.APIKey == "" {
		add("speech.backend", "whisper requires OPENAI_API_KEY")
	}
	if c.Speech.SampleRate <= 0 {
		add("speech.sample_rate", "must be positive")
	}
	if c.Speech.LanguageCode == "" {
		add("speech.language_code", "is required")
	}

	switch c.Synthesis.Backend {
	case BackendGoogle, BackendMock:
	case BackendElevenLabs:
		if c.Synthesis.ElevenLabsAPIKey == "" {
			add("synthesis.eleven_labs_api_key", "elevenlabs requires ELEVEN_LABS_API_KEY")
		}
	default:
		add("synthesis.backend", "unknown backend %q, must be one of: google, elevenlabs, mock", c.Synthesis.Backend)
	}
	if c.Synthesis.SpeakingRate < 0.25 || c.Synthesis.SpeakingRate > 4.0 {
		add("synthesis.speaking_rate", "must be between 0.25 and 4.0")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format", "unknown format %q, must be json or console", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// DefaultProvider is the parsed session default provider
func (c *Config) DefaultProvider() entities.Provider {
	return entities.ParseProvider(c.Session.DefaultProvider, entities.ProviderOpenAI)
}

// TypingPolicy is the reveal pacing for replies
func (c *Config) TypingPolicy() typing.DelayPolicy {
	return typing.DelayPolicy{
		Whitespace:  c.Session.Typing.Whitespace.Duration,
		Punctuation: c.Session.Typing.Punctuation.Duration,
		Default:     c.Session.Typing.Default.Duration,
	}
}
