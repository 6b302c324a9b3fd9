package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
	"github.com/satriahrh/fluent/internal/websocket"
	"github.com/satriahrh/fluent/usecase"
)

// maxAudioUpload bounds speech-to-text request bodies
const maxAudioUpload = 10 << 20

// Services are the backends the one-shot endpoints call directly
type Services struct {
	SpeechToText repositories.SpeechToText
	TextToSpeech repositories.TextToSpeech
	Chat         *usecase.ChatService
	AudioConfig  repositories.AudioConfig
}

type handler struct {
	services Services
	logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, services Services, logger *zap.Logger) {
	h := &handler{services: services, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "ok",
			"service":  "fluent-server",
			"sessions": hub.Count(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.GET("/voices", h.voices)
	v1.GET("/providers", h.providers)
	v1.POST("/speech-to-text", h.speechToText)
	v1.POST("/chat", h.chat)
	v1.POST("/text-to-speech", h.textToSpeech)

	// Conversation sessions
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c)
	})
}

func (h *handler) voices(c echo.Context) error {
	return c.JSON(http.StatusOK, entities.Voices())
}

func (h *handler) providers(c echo.Context) error {
	available := h.services.Chat.Available()
	out := make([]ProviderStatus, 0, len(available))
	for _, p := range entities.Providers() {
		out = append(out, ProviderStatus{
			ID:        p,
			Available: available[p],
			Default:   p == h.services.Chat.DefaultProvider(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// speechToText accepts either a raw audio body or a multipart form with an
// "audio" file.
func (h *handler) speechToText(c echo.Context) error {
	audio, mimeType, err := readAudio(c)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "audio_too_large",
			Message: fmt.Sprintf("Audio must be at most %d bytes", tooLarge.Limit),
		})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: err.Error(),
		})
	}
	if len(audio) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "empty_audio",
			Message: domain.MessageEmptyCapture,
		})
	}

	config := h.services.AudioConfig
	if encoding := repositories.EncodingForMIME(mimeType); encoding != "" {
		config.Encoding = encoding
	}

	transcript, err := h.services.SpeechToText.TranscribeAudio(c.Request().Context(), audio, config)
	if err != nil {
		h.logger.Error("Failed to transcribe audio",
			zap.Int("audioSize", len(audio)),
			zap.String("mimeType", mimeType),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: domain.MessageTranscriptionFailed,
		})
	}

	return c.JSON(http.StatusOK, TranscriptResponse{Transcript: strings.TrimSpace(transcript)})
}

func (h *handler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "At least one message is required",
		})
	}
	for i, m := range req.Messages {
		if err := m.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_message",
				Message: fmt.Sprintf("message %d: %v", i, err),
			})
		}
	}

	provider := entities.ParseProvider(req.Provider, h.services.Chat.DefaultProvider())
	reply, err := h.services.Chat.Reply(c.Request().Context(), req.Messages, provider)
	if err != nil {
		h.logger.Warn("Failed to generate reply", zap.String("provider", string(provider)), zap.Error(err))
		return c.JSON(replyStatus(err), ErrorResponse{
			Error:   "reply_failed",
			Message: domain.UserMessage(err),
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{Reply: reply, Provider: provider})
}

func (h *handler) textToSpeech(c echo.Context) error {
	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Text is required",
		})
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = entities.DefaultVoiceID
	}
	voice, ok := entities.LookupVoice(voiceID)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unknown_voice",
			Message: fmt.Sprintf("Voice %q is not available", voiceID),
		})
	}

	clip, err := h.services.TextToSpeech.SynthesizeAudio(c.Request().Context(), req.Text, voice)
	if err != nil {
		h.logger.Error("Failed to synthesize speech", zap.String("voiceID", voice.ID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "synthesis_failed",
			Message: domain.MessageSynthesisFailed,
		})
	}

	return c.Blob(http.StatusOK, clip.MimeType, clip.Data)
}

func readAudio(c echo.Context) ([]byte, string, error) {
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, maxAudioUpload)

	if strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
			return nil, "", fmt.Errorf("failed to parse form: %w", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return nil, "", fmt.Errorf("missing audio file: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		return data, header.Header.Get(echo.HeaderContentType), err
	}

	data, err := io.ReadAll(r.Body)
	return data, r.Header.Get(echo.HeaderContentType), err
}

func replyStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
