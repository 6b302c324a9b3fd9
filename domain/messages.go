package domain

import (
	"errors"
	"strings"
)

// Notification texts shown to the user when a turn fails
const (
	MessageDeviceUnavailable   = "Please allow microphone access to continue"
	MessageEmptyCapture        = "No audio was recorded. Please try again."
	MessageNoSpeechDetected    = "No speech detected. Please try again."
	MessageTranscriptionFailed = "Could not transcribe your speech. Please try again."
	MessageProviderUnavailable = "The selected AI provider is not configured."
	MessageEmptyReply          = "The coach had nothing to say. Please try again."
	MessageSynthesisFailed     = "Could not play the reply audio."
	MessageUnexpected          = "Something went wrong. Please try again."
)

// UserMessage maps a turn error to a short notification for the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		return MessageDeviceUnavailable
	case errors.Is(err, ErrEmptyCapture):
		return MessageEmptyCapture
	case errors.Is(err, ErrNoSpeechDetected):
		return MessageNoSpeechDetected
	case errors.Is(err, ErrTranscriptionFailed):
		return MessageTranscriptionFailed
	case errors.Is(err, ErrProviderUnavailable):
		return MessageProviderUnavailable
	case errors.As(err, &providerErr):
		return "The " + providerName(string(providerErr.Provider)) + " provider returned an error: " + providerErr.Err.Error()
	case errors.Is(err, ErrProviderError):
		return "The AI provider returned an error."
	case errors.Is(err, ErrEmptyReply):
		return MessageEmptyReply
	case errors.Is(err, ErrSynthesisFailed):
		return MessageSynthesisFailed
	default:
		return MessageUnexpected
	}
}

func providerName(p string) string {
	switch p {
	case "openai":
		return "OpenAI"
	case "":
		return "AI"
	default:
		return strings.ToUpper(p[:1]) + p[1:]
	}
}
