package repositories

import (
	"context"

	"github.com/satriahrh/fluent/domain/entities"
)

// AudioInput is a microphone that can be held by one capture at a time.
type AudioInput interface {
	// Open acquires the device and starts capturing. It fails with
	// domain.ErrDeviceUnavailable when access is denied or no device exists.
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open capture session on an AudioInput.
type Capture interface {
	// Stop ends capture and returns everything recorded so far.
	Stop(ctx context.Context) (entities.AudioClip, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// AudioPlayer plays synthesized speech to the user.
type AudioPlayer interface {
	Play(ctx context.Context, clip entities.AudioClip) (Playback, error)
}

// Playback is a clip being played.
type Playback interface {
	// Done receives exactly one value when playback ends: nil when the clip
	// finished, the playback error otherwise.
	Done() <-chan error
	// Stop cuts playback short. Done still fires.
	Stop()
}
