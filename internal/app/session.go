package app

import (
	"github.com/satriahrh/fluent/internal/config"
	"github.com/satriahrh/fluent/internal/orchestrator"
	"github.com/satriahrh/fluent/internal/websocket"
)

// SessionConfig is the orchestrator configuration for every session
func SessionConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		DefaultProvider:   cfg.DefaultProvider(),
		DefaultVoice:      cfg.Session.DefaultVoice,
		ErrorDismissAfter: cfg.Session.ErrorDismissAfter.Duration,
		Typing:            cfg.TypingPolicy(),
	}
}

// HubConfig is the websocket hub configuration
func HubConfig(cfg *config.Config) websocket.HubConfig {
	return websocket.HubConfig{
		Session:         SessionConfig(cfg),
		CaptureTimeout:  cfg.Session.CaptureTimeout.Duration,
		PlaybackTimeout: cfg.Session.PlaybackTimeout.Duration,
	}
}
