package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
)

type fakeOutbox struct {
	mu     sync.Mutex
	frames []WriteData
}

func (f *fakeOutbox) deliver(ctx context.Context, msg WriteData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.offer(msg)
	return nil
}

func (f *fakeOutbox) offer(msg WriteData) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, msg)
	return true
}

// types lists the type of every JSON frame, and "binary" for audio
func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		if frame.Type == websocket.BinaryMessage {
			out = append(out, "binary")
			continue
		}
		var msg BaseMessage
		json.Unmarshal(frame.Payload, &msg)
		out = append(out, string(msg.Type))
	}
	return out
}

func (f *fakeOutbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// confirmWhenAsked answers the capture request once it has been sent
func confirmWhenAsked(out *fakeOutbox, mic *socketMicrophone, mimeType string, err error) {
	sent := out.count()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for out.count() == sent && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		mic.resolve(mimeType, err)
	}()
}

func TestSocketMicrophone_Capture(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 1024, zap.NewNop())

	assert.False(t, mic.write([]byte("early")), "no capture is open yet")

	confirmWhenAsked(out, mic, "audio/ogg;codecs=opus", nil)
	capture, err := mic.Open(context.Background())
	require.NoError(t, err)

	assert.True(t, mic.write([]byte("abc")))
	assert.True(t, mic.write([]byte("def")))

	_, err = mic.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable, "microphone is held by the open capture")

	clip, err := capture.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.AudioClip{Data: []byte("abcdef"), MimeType: "audio/ogg;codecs=opus"}, clip)
	assert.False(t, mic.write([]byte("late")))

	require.NoError(t, capture.Close())
	require.NoError(t, capture.Close())
	assert.Equal(t, []string{"capture_start", "capture_stop"}, out.types())
}

func TestSocketMicrophone_Denied(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 0, zap.NewNop())

	confirmWhenAsked(out, mic, "", errors.New("NotAllowedError"))
	_, err := mic.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "NotAllowedError")
}

func TestSocketMicrophone_Timeout(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 20*time.Millisecond, 0, zap.NewNop())

	_, err := mic.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.ErrorIs(t, err, errCaptureTimeout)

	// A confirmation arriving after the timeout is answered with a stop.
	assert.False(t, mic.resolve("audio/webm", nil))
	assert.Equal(t, []string{"capture_start", "capture_stop"}, out.types())
}

func TestSocketMicrophone_SizeLimit(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 4, zap.NewNop())

	confirmWhenAsked(out, mic, "audio/webm", nil)
	capture, err := mic.Open(context.Background())
	require.NoError(t, err)

	mic.write([]byte("abc"))
	mic.write([]byte("def"))
	mic.write([]byte("g"))

	clip, err := capture.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(clip.Data), "audio after the limit is dropped")
}

func TestSocketMicrophone_CloseWithoutStop(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 0, zap.NewNop())

	confirmWhenAsked(out, mic, "audio/webm", nil)
	capture, err := mic.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, capture.Close())
	assert.Equal(t, []string{"capture_start", "capture_stop"}, out.types())

	confirmWhenAsked(out, mic, "audio/webm", nil)
	_, err = mic.Open(context.Background())
	assert.NoError(t, err, "device is free again after Close")
}

func TestSocketMicrophone_ChunksRightAfterConfirmation(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 0, zap.NewNop())

	// The read pump resolves and writes from one goroutine with no pause,
	// so the chunk can land before Open has returned.
	written := make(chan bool, 1)
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for out.count() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		mic.resolve("audio/webm", nil)
		written <- mic.write([]byte("first"))
	}()

	capture, err := mic.Open(context.Background())
	require.NoError(t, err)
	require.True(t, <-written)

	clip, err := capture.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", string(clip.Data))
}

func TestSocketMicrophone_AbandonClosesConfirmedCapture(t *testing.T) {
	out := &fakeOutbox{}
	mic := newSocketMicrophone(out, 2*time.Second, 0, zap.NewNop())

	ack := make(chan captureAck, 1)
	mic.pending = ack
	require.True(t, mic.resolve("audio/webm", nil))
	require.NotNil(t, mic.active)

	mic.abandon(ack)
	assert.Nil(t, mic.active)
	assert.Nil(t, mic.pending)
	assert.False(t, mic.write([]byte("late")))
	assert.Equal(t, []string{"capture_stop"}, out.types())
}
