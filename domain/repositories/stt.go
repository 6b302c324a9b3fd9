package repositories

import (
	"context"
	"strings"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts audio data to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate" toml:"sample_rate"`
	Encoding   string `json:"encoding" toml:"encoding"`
	Language   string `json:"language" toml:"language"`
}

// EncodingForMIME maps a recorder MIME type such as "audio/webm;codecs=opus"
// to the encoding names used in AudioConfig.
func EncodingForMIME(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "audio/webm"):
		return "WEBM_OPUS"
	case strings.HasPrefix(mt, "audio/ogg"):
		return "OGG_OPUS"
	case strings.HasPrefix(mt, "audio/wav"), strings.HasPrefix(mt, "audio/x-wav"), strings.HasPrefix(mt, "audio/l16"):
		return "LINEAR16"
	case strings.HasPrefix(mt, "audio/flac"):
		return "FLAC"
	case strings.HasPrefix(mt, "audio/mpeg"), strings.HasPrefix(mt, "audio/mp3"):
		return "MP3"
	default:
		return ""
	}
}
