package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

var (
	ErrCaptureInProgress = errors.New("recorder: capture already in progress")
	ErrNotCapturing      = errors.New("recorder: not capturing")
)

// Recorder owns the capture lifecycle of one AudioInput. At most one capture
// is open at a time and the device is released on every exit path.
type Recorder struct {
	input  repositories.AudioInput
	logger *zap.Logger

	mu      sync.Mutex
	capture repositories.Capture
	opening bool
}

// New creates a recorder over input
func New(input repositories.AudioInput, logger *zap.Logger) *Recorder {
	return &Recorder{input: input, logger: logger}
}

// Begin acquires the device exclusively and starts capturing
func (r *Recorder) Begin(ctx context.Context) error {
	r.mu.Lock()
	if r.capture != nil || r.opening {
		r.mu.Unlock()
		return ErrCaptureInProgress
	}
	r.opening = true
	r.mu.Unlock()

	capture, err := r.input.Open(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.opening = false

	if err != nil {
		r.logger.Warn("Audio input unavailable", zap.Error(err))
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	r.capture = capture
	r.logger.Debug("Capture started")
	return nil
}

// Capturing reports whether a capture is open
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture != nil
}

// End stops capture, releases the device and returns the recorded clip
func (r *Recorder) End(ctx context.Context) (entities.AudioClip, error) {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.mu.Unlock()

	if capture == nil {
		return entities.AudioClip{}, ErrNotCapturing
	}

	defer func() {
		if err := capture.Close(); err != nil {
			r.logger.Warn("Failed to release audio input", zap.Error(err))
		}
	}()

	clip, err := capture.Stop(ctx)
	if err != nil {
		return entities.AudioClip{}, fmt.Errorf("stop capture: %w", err)
	}
	if clip.Empty() {
		return entities.AudioClip{}, domain.ErrEmptyCapture
	}

	r.logger.Debug("Capture finished",
		zap.Int("size", len(clip.Data)),
		zap.String("mimeType", clip.MimeType))

	return clip, nil
}

// Abort releases the device without producing a clip
func (r *Recorder) Abort() {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.mu.Unlock()

	if capture == nil {
		return
	}
	if err := capture.Close(); err != nil {
		r.logger.Warn("Failed to release audio input", zap.Error(err))
	}
}
