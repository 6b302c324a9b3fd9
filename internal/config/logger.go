package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger: json uses the production encoder,
// console the development one.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if c.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		zapConfig.Level = level
	}

	return zapConfig.Build()
}
