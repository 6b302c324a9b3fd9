package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

const audioChunkSize = 32 * 1024

var ErrPlaybackTimeout = errors.New("playback did not finish in time")

// socketPlayer streams synthesized speech to the client, which reports back
// when it has finished playing.
type socketPlayer struct {
	out     outbox
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	current *socketPlayback
}

var _ repositories.AudioPlayer = (*socketPlayer)(nil)

func newSocketPlayer(out outbox, timeout time.Duration, logger *zap.Logger) *socketPlayer {
	return &socketPlayer{out: out, timeout: timeout, logger: logger}
}

// Play implements repositories.AudioPlayer
func (p *socketPlayer) Play(ctx context.Context, clip entities.AudioClip) (repositories.Playback, error) {
	if clip.Empty() {
		return nil, errors.New("nothing to play")
	}

	pb := &socketPlayback{player: p, id: uuid.NewString(), done: make(chan error, 1)}

	p.mu.Lock()
	prev := p.current
	p.current = pb
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	start := &SpeakingMessage{
		BaseMessage: base(MessageTypeSpeakingStart),
		PlaybackID:  pb.id,
		MimeType:    clip.MimeType,
		Size:        len(clip.Data),
	}
	if err := p.out.deliver(ctx, jsonFrame(start)); err != nil {
		p.abandon(pb)
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}

	for offset := 0; offset < len(clip.Data); offset += audioChunkSize {
		end := min(offset+audioChunkSize, len(clip.Data))
		frame := WriteData{Type: websocket.BinaryMessage, Payload: clip.Data[offset:end]}
		if err := p.out.deliver(ctx, frame); err != nil {
			p.abandon(pb)
			return nil, fmt.Errorf("failed to stream audio: %w", err)
		}
	}

	end := &SpeakingMessage{BaseMessage: base(MessageTypeSpeakingAudioEnd), PlaybackID: pb.id}
	if err := p.out.deliver(ctx, jsonFrame(end)); err != nil {
		p.abandon(pb)
		return nil, fmt.Errorf("failed to finish playback: %w", err)
	}

	pb.mu.Lock()
	if !pb.finished {
		pb.timer = time.AfterFunc(p.timeout, func() {
			p.logger.Warn("Playback timed out", zap.String("playbackID", pb.id))
			p.release(pb)
			pb.finish(ErrPlaybackTimeout)
		})
	}
	pb.mu.Unlock()

	p.logger.Debug("Playback streamed",
		zap.String("playbackID", pb.id),
		zap.Int("size", len(clip.Data)))

	return pb, nil
}

// ended completes the playback the client reported on
func (p *socketPlayer) ended(playbackID string, err error) bool {
	p.mu.Lock()
	pb := p.current
	if pb == nil || pb.id != playbackID {
		p.mu.Unlock()
		return false
	}
	p.current = nil
	p.mu.Unlock()

	return pb.finish(err)
}

func (p *socketPlayer) release(pb *socketPlayback) {
	p.mu.Lock()
	if p.current == pb {
		p.current = nil
	}
	p.mu.Unlock()
}

func (p *socketPlayer) abandon(pb *socketPlayback) {
	p.release(pb)
	pb.finish(nil)
}

type socketPlayback struct {
	player *socketPlayer
	id     string
	done   chan error

	mu       sync.Mutex
	finished bool
	timer    *time.Timer
}

// Done implements repositories.Playback
func (pb *socketPlayback) Done() <-chan error {
	return pb.done
}

// Stop implements repositories.Playback; the client is told to stop playing.
func (pb *socketPlayback) Stop() {
	pb.player.release(pb)
	if pb.finish(nil) {
		pb.player.out.offer(jsonFrame(&SpeakingMessage{BaseMessage: base(MessageTypePlaybackStop), PlaybackID: pb.id}))
	}
}

func (pb *socketPlayback) finish(err error) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.finished {
		return false
	}
	pb.finished = true
	if pb.timer != nil {
		pb.timer.Stop()
	}
	pb.done <- err
	return true
}
