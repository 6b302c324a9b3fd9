package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/fluent/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client to server
const (
	MessageTypeStartRecording MessageType = "start_recording"
	MessageTypeStopRecording  MessageType = "stop_recording"
	MessageTypeStopSpeaking   MessageType = "stop_speaking"
	MessageTypeSetProvider    MessageType = "set_provider"
	MessageTypeSetVoice       MessageType = "set_voice"
	MessageTypeClear          MessageType = "clear"
	MessageTypeCaptureReady   MessageType = "capture_ready"
	MessageTypeCaptureDenied  MessageType = "capture_denied"
	MessageTypePlaybackEnded  MessageType = "playback_ended"
	MessageTypePlaybackError  MessageType = "playback_error"
	MessageTypePing           MessageType = "ping"
)

// Server to client
const (
	MessageTypeSession          MessageType = "session"
	MessageTypeState            MessageType = "state"
	MessageTypeReveal           MessageType = "reveal"
	MessageTypeCaptureStart     MessageType = "capture_start"
	MessageTypeCaptureStop      MessageType = "capture_stop"
	MessageTypeSpeakingStart    MessageType = "speaking_start"
	MessageTypeSpeakingAudioEnd MessageType = "speaking_audio_end"
	MessageTypePlaybackStop     MessageType = "playback_stop"
	MessageTypePong             MessageType = "pong"
	MessageTypeError            MessageType = "error"
)

const defaultCaptureMimeType = "audio/webm"

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ClientMessage is any JSON message a client sends. Only the fields of its
// type are set.
type ClientMessage struct {
	BaseMessage
	Provider   string `json:"provider,omitempty"`
	Voice      string `json:"voice,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	PlaybackID string `json:"playback_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Data       string `json:"data,omitempty"`
}

// IsControl reports whether the message drives the conversation, as opposed
// to acknowledging something the server asked for.
func (m *ClientMessage) IsControl() bool {
	switch m.Type {
	case MessageTypeStartRecording, MessageTypeStopRecording, MessageTypeStopSpeaking,
		MessageTypeSetProvider, MessageTypeSetVoice, MessageTypeClear:
		return true
	default:
		return false
	}
}

// SessionMessage greets a new connection
type SessionMessage struct {
	BaseMessage
	SessionID string                 `json:"session_id"`
	State     entities.StateSnapshot `json:"state"`
	Voices    []entities.Voice       `json:"voices"`
}

// StateMessage carries a state snapshot after every change
type StateMessage struct {
	BaseMessage
	State entities.StateSnapshot `json:"state"`
}

// RevealMessage is one typing tick of the reply
type RevealMessage struct {
	BaseMessage
	Text   string `json:"text"`
	Index  int    `json:"index"`
	Length int    `json:"length"`
}

// CaptureMessage asks the client to start or stop its microphone
type CaptureMessage struct {
	BaseMessage
	MaxBytes int `json:"max_bytes,omitempty"`
}

// SpeakingMessage frames the binary audio of one playback
type SpeakingMessage struct {
	BaseMessage
	PlaybackID string `json:"playback_id"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int    `json:"size,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if msg.Timestamp == "" {
		msg.Timestamp = now()
	}

	switch msg.Type {
	case MessageTypeStartRecording, MessageTypeStopRecording, MessageTypeStopSpeaking,
		MessageTypeClear, MessageTypePing:
		return &msg, nil

	case MessageTypeSetProvider:
		if strings.TrimSpace(msg.Provider) == "" {
			return nil, fmt.Errorf("provider is required")
		}
		return &msg, nil

	case MessageTypeSetVoice:
		if strings.TrimSpace(msg.Voice) == "" {
			return nil, fmt.Errorf("voice is required")
		}
		return &msg, nil

	case MessageTypeCaptureReady:
		if msg.MimeType == "" {
			msg.MimeType = defaultCaptureMimeType
		}
		if !strings.HasPrefix(strings.ToLower(msg.MimeType), "audio/") {
			return nil, fmt.Errorf("mime_type must be an audio type")
		}
		return &msg, nil

	case MessageTypeCaptureDenied:
		if msg.Reason == "" {
			msg.Reason = "permission denied"
		}
		return &msg, nil

	case MessageTypePlaybackEnded, MessageTypePlaybackError:
		if msg.PlaybackID == "" {
			return nil, fmt.Errorf("playback_id is required")
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message missing type field")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

func base(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: now()}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: base(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: base(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage wraps a snapshot for the client
func CreateStateMessage(snap entities.StateSnapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: base(MessageTypeState),
		State:       snap,
	}
}

// CreateRevealMessage reports the visible part of the reply
func CreateRevealMessage(text string, index, length int) *RevealMessage {
	return &RevealMessage{
		BaseMessage: base(MessageTypeReveal),
		Text:        text,
		Index:       index,
		Length:      length,
	}
}
