package orchestrator

import (
	"context"
	"sync"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

type fakeInput struct {
	mu      sync.Mutex
	openErr error
	clip    entities.AudioClip
	opened  int
	closed  int
}

func (f *fakeInput) Open(ctx context.Context) (repositories.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeCapture{input: f}, nil
}

func (f *fakeInput) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCapture struct {
	input *fakeInput
}

func (c *fakeCapture) Stop(ctx context.Context) (entities.AudioClip, error) {
	c.input.mu.Lock()
	defer c.input.mu.Unlock()
	return c.input.clip, nil
}

func (c *fakeCapture) Close() error {
	c.input.mu.Lock()
	defer c.input.mu.Unlock()
	c.input.closed++
	return nil
}

type fakeSTT struct {
	mu         sync.Mutex
	transcript string
	calls      int
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.transcript, nil
}

func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLLM struct {
	mu          sync.Mutex
	reply       string
	err         error
	gate        chan struct{}
	calls       int
	lastHistory []entities.Message
}

func (f *fakeLLM) GenerateReply(ctx context.Context, history []entities.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastHistory = append([]entities.Message(nil), history...)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) history() []entities.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHistory
}

type fakeTTS struct {
	mu        sync.Mutex
	err       error
	gate      chan struct{}
	calls     int
	lastVoice entities.Voice
}

// SynthesizeAudio holds on gate without watching ctx, so a cancelled turn
// still gets its audio late.
func (f *fakeTTS) SynthesizeAudio(ctx context.Context, text string, voice entities.Voice) (entities.AudioClip, error) {
	f.mu.Lock()
	f.calls++
	f.lastVoice = voice
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return entities.AudioClip{}, f.err
	}
	return entities.AudioClip{Data: []byte("mp3:" + text), MimeType: "audio/mpeg"}, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTTS) voice() entities.Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVoice
}

type fakePlayer struct {
	mu        sync.Mutex
	playbacks []*fakePlayback
}

func (p *fakePlayer) Play(ctx context.Context, clip entities.AudioClip) (repositories.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pb := &fakePlayback{clip: clip, done: make(chan error, 1)}
	p.playbacks = append(p.playbacks, pb)
	return pb, nil
}

func (p *fakePlayer) latest() *fakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.playbacks) == 0 {
		return nil
	}
	return p.playbacks[len(p.playbacks)-1]
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.playbacks)
}

type fakePlayback struct {
	clip    entities.AudioClip
	done    chan error
	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

func (pb *fakePlayback) Done() <-chan error {
	return pb.done
}

func (pb *fakePlayback) Stop() {
	pb.mu.Lock()
	pb.stopped = true
	pb.mu.Unlock()
	pb.finish(nil)
}

func (pb *fakePlayback) finish(err error) {
	pb.once.Do(func() { pb.done <- err })
}

func (pb *fakePlayback) wasStopped() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped
}

type event struct {
	snap     *entities.StateSnapshot
	revealed int
	length   int
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingObserver) StateChanged(snap entities.StateSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{snap: &snap})
}

func (r *recordingObserver) Revealed(visible string, index, length int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{revealed: index, length: length})
}

func (r *recordingObserver) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}
