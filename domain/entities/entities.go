package entities

import (
	"errors"
	"strings"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single entry in the conversation transcript.
// Messages are never mutated once appended.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Validate checks the message has a known role and non-blank content
func (m Message) Validate() error {
	if m.Role != MessageRoleUser && m.Role != MessageRoleAssistant {
		return errors.New("role must be user or assistant")
	}
	if strings.TrimSpace(m.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

// Provider identifies a reply generation backend
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Providers returns the supported providers in display order
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// IsValid reports whether p is one of the supported providers
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// ParseProvider returns the provider named by s, or fallback when s is unknown.
func ParseProvider(s string, fallback Provider) Provider {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p.IsValid() {
		return p
	}
	return fallback
}

// AudioClip is a finished recording or synthesized utterance
type AudioClip struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// Empty reports whether the clip carries no audio
func (c AudioClip) Empty() bool {
	return len(c.Data) == 0
}
