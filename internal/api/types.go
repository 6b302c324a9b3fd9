package api

import "github.com/satriahrh/fluent/domain/entities"

// TranscriptResponse is returned by speech-to-text
type TranscriptResponse struct {
	Transcript string `json:"transcript"`
}

// ChatRequest represents the request payload for a single reply
type ChatRequest struct {
	Messages []entities.Message `json:"messages"`
	Provider string             `json:"provider,omitempty"`
}

// ChatResponse represents the generated reply
type ChatResponse struct {
	Reply    string            `json:"reply"`
	Provider entities.Provider `json:"provider"`
}

// SynthesizeRequest represents the request payload for text-to-speech
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId,omitempty"`
}

// ProviderStatus reports whether a reply provider has a backend
type ProviderStatus struct {
	ID        entities.Provider `json:"id"`
	Available bool              `json:"available"`
	Default   bool              `json:"default,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
