package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

var extensionMIME = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".mp3":  "audio/mpeg",
}

// LoadAudioClip reads an audio file, guessing its MIME type from the extension.
func LoadAudioClip(path string) (entities.AudioClip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.AudioClip{}, fmt.Errorf("failed to read audio file: %w", err)
	}
	mimeType, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mimeType = "application/octet-stream"
	}
	return entities.AudioClip{Data: data, MimeType: mimeType}, nil
}

// MemoryAudioInput is a microphone that always records the same clip.
// It stands in for a real device in the CLI and in tests.
type MemoryAudioInput struct {
	mu     sync.Mutex
	clip   entities.AudioClip
	held   bool
	denied bool
}

var _ repositories.AudioInput = (*MemoryAudioInput)(nil)

// NewMemoryAudioInput creates an input that records clip on every capture
func NewMemoryAudioInput(clip entities.AudioClip) *MemoryAudioInput {
	return &MemoryAudioInput{clip: clip}
}

// Deny makes every following Open fail as if permission was refused
func (m *MemoryAudioInput) Deny() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = true
}

// Open implements repositories.AudioInput
func (m *MemoryAudioInput) Open(ctx context.Context) (repositories.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.denied:
		return nil, fmt.Errorf("%w: permission denied", domain.ErrDeviceUnavailable)
	case m.held:
		return nil, fmt.Errorf("%w: device busy", domain.ErrDeviceUnavailable)
	}
	m.held = true
	return &memoryCapture{input: m}, nil
}

func (m *MemoryAudioInput) release() {
	m.mu.Lock()
	m.held = false
	m.mu.Unlock()
}

type memoryCapture struct {
	input *MemoryAudioInput
	once  sync.Once
}

func (c *memoryCapture) Stop(ctx context.Context) (entities.AudioClip, error) {
	defer c.Close()

	c.input.mu.Lock()
	clip := c.input.clip
	c.input.mu.Unlock()

	clip.Data = append([]byte(nil), clip.Data...)
	return clip, nil
}

func (c *memoryCapture) Close() error {
	c.once.Do(c.input.release)
	return nil
}

// defaultBytesPerSecond approximates 64 kbps MP3
const defaultBytesPerSecond = 8000

// MemoryPlayer "plays" a clip by waiting as long as the audio would last.
// Every clip is kept so callers can save or inspect what was spoken.
type MemoryPlayer struct {
	clock          clock.Clock
	bytesPerSecond int

	mu     sync.Mutex
	played []entities.AudioClip
}

var _ repositories.AudioPlayer = (*MemoryPlayer)(nil)

// NewMemoryPlayer creates a player whose playback length is the clip size at
// bytesPerSecond; zero selects a typical MP3 bitrate.
func NewMemoryPlayer(clk clock.Clock, bytesPerSecond int) *MemoryPlayer {
	if clk == nil {
		clk = clock.New()
	}
	if bytesPerSecond <= 0 {
		bytesPerSecond = defaultBytesPerSecond
	}
	return &MemoryPlayer{clock: clk, bytesPerSecond: bytesPerSecond}
}

// Played returns the clips played so far
func (p *MemoryPlayer) Played() []entities.AudioClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entities.AudioClip, len(p.played))
	copy(out, p.played)
	return out
}

// Duration is how long clip plays for
func (p *MemoryPlayer) Duration(clip entities.AudioClip) time.Duration {
	return time.Duration(len(clip.Data)) * time.Second / time.Duration(p.bytesPerSecond)
}

// Play implements repositories.AudioPlayer
func (p *MemoryPlayer) Play(ctx context.Context, clip entities.AudioClip) (repositories.Playback, error) {
	if len(clip.Data) == 0 {
		return nil, errors.New("nothing to play")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.played = append(p.played, clip)
	p.mu.Unlock()

	pb := &memoryPlayback{done: make(chan error, 1)}
	pb.timer = p.clock.AfterFunc(p.Duration(clip), func() { pb.finish() })
	return pb, nil
}

type memoryPlayback struct {
	done  chan error
	once  sync.Once
	timer *clock.Timer
}

func (pb *memoryPlayback) Done() <-chan error {
	return pb.done
}

func (pb *memoryPlayback) Stop() {
	pb.timer.Stop()
	pb.finish()
}

func (pb *memoryPlayback) finish() {
	pb.once.Do(func() { pb.done <- nil })
}
