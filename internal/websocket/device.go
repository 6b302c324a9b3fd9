package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

var errCaptureTimeout = errors.New("microphone did not respond")

// outbox queues frames for the connection
type outbox interface {
	// deliver blocks until msg is queued, the connection closes or ctx ends.
	deliver(ctx context.Context, msg WriteData) error
	// offer queues msg if there is room and reports whether it did.
	offer(msg WriteData) bool
}

type captureAck struct {
	capture *socketCapture
	err     error
}

// socketMicrophone is the browser microphone of one session. Open asks the
// client to start recording and waits for it to confirm; audio then arrives
// as binary frames.
type socketMicrophone struct {
	out      outbox
	timeout  time.Duration
	maxBytes int
	logger   *zap.Logger

	mu      sync.Mutex
	pending chan captureAck
	active  *socketCapture
}

var _ repositories.AudioInput = (*socketMicrophone)(nil)

func newSocketMicrophone(out outbox, timeout time.Duration, maxBytes int, logger *zap.Logger) *socketMicrophone {
	return &socketMicrophone{out: out, timeout: timeout, maxBytes: maxBytes, logger: logger}
}

// Open implements repositories.AudioInput
func (m *socketMicrophone) Open(ctx context.Context) (repositories.Capture, error) {
	ack := make(chan captureAck, 1)

	m.mu.Lock()
	if m.pending != nil || m.active != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: microphone busy", domain.ErrDeviceUnavailable)
	}
	m.pending = ack
	m.mu.Unlock()

	start := &CaptureMessage{BaseMessage: base(MessageTypeCaptureStart), MaxBytes: m.maxBytes}
	if !m.out.offer(jsonFrame(start)) {
		m.abandon(ack)
		return nil, fmt.Errorf("%w: connection unavailable", domain.ErrDeviceUnavailable)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case a := <-ack:
		if a.err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, a.err)
		}
		return a.capture, nil
	case <-timer.C:
		m.abandon(ack)
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, errCaptureTimeout)
	case <-ctx.Done():
		m.abandon(ack)
		return nil, ctx.Err()
	}
}

// abandon withdraws a request Open stopped waiting for. A capture the client
// confirmed in the meantime is closed again.
func (m *socketMicrophone) abandon(ack chan captureAck) {
	m.mu.Lock()
	if m.pending == ack {
		m.pending = nil
	}
	m.mu.Unlock()

	select {
	case a := <-ack:
		if a.capture != nil {
			a.capture.Close()
		}
	default:
	}
}

// resolve answers a pending Open. On success the capture is active before
// resolve returns, so binary frames read right after the confirmation are
// kept. A late confirmation tells the client to stop again.
func (m *socketMicrophone) resolve(mimeType string, err error) bool {
	m.mu.Lock()
	ack := m.pending
	m.pending = nil
	if ack != nil {
		a := captureAck{err: err}
		if err == nil {
			a.capture = &socketCapture{mic: m, mimeType: mimeType}
			m.active = a.capture
		}
		ack <- a
	}
	m.mu.Unlock()

	if ack == nil {
		if err == nil {
			m.logger.Warn("Capture confirmed but none was requested")
			m.out.offer(jsonFrame(&CaptureMessage{BaseMessage: base(MessageTypeCaptureStop)}))
		}
		return false
	}
	return true
}

// write appends a chunk to the open capture
func (m *socketMicrophone) write(chunk []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.active
	if c == nil || c.stopped {
		return false
	}
	if c.truncated || (m.maxBytes > 0 && len(c.data)+len(chunk) > m.maxBytes) {
		if !c.truncated {
			m.logger.Warn("Capture size limit reached, dropping audio", zap.Int("maxBytes", m.maxBytes))
		}
		c.truncated = true
		return true
	}
	c.data = append(c.data, chunk...)
	return true
}

type socketCapture struct {
	mic       *socketMicrophone
	mimeType  string
	data      []byte
	stopped   bool
	truncated bool
}

// Stop implements repositories.Capture. Chunks are read in order from the
// same connection as the stop command, so the buffer is complete.
func (c *socketCapture) Stop(ctx context.Context) (entities.AudioClip, error) {
	c.mic.mu.Lock()
	if c.stopped {
		c.mic.mu.Unlock()
		return entities.AudioClip{}, errors.New("capture already stopped")
	}
	c.stopped = true
	clip := entities.AudioClip{Data: c.data, MimeType: c.mimeType}
	c.data = nil
	c.mic.mu.Unlock()

	c.mic.out.offer(jsonFrame(&CaptureMessage{BaseMessage: base(MessageTypeCaptureStop)}))
	return clip, nil
}

// Close implements repositories.Capture
func (c *socketCapture) Close() error {
	c.mic.mu.Lock()
	if c.mic.active == c {
		c.mic.active = nil
	}
	wasRecording := !c.stopped
	c.stopped = true
	c.data = nil
	c.mic.mu.Unlock()

	if wasRecording {
		c.mic.out.offer(jsonFrame(&CaptureMessage{BaseMessage: base(MessageTypeCaptureStop)}))
	}
	return nil
}
