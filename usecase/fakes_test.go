package usecase

import (
	"context"
	"sync"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

type fakeSTT struct {
	mu         sync.Mutex
	transcript string
	err        error
	calls      int
	lastConfig repositories.AudioConfig
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastConfig = config
	return f.transcript, f.err
}

type fakeLLM struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	lastHistory []entities.Message
}

func (f *fakeLLM) GenerateReply(ctx context.Context, history []entities.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastHistory = append([]entities.Message(nil), history...)
	return f.reply, f.err
}

type fakeTTS struct {
	mu        sync.Mutex
	err       error
	calls     int
	lastVoice entities.Voice
}

func (f *fakeTTS) SynthesizeAudio(ctx context.Context, text string, voice entities.Voice) (entities.AudioClip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastVoice = voice
	if f.err != nil {
		return entities.AudioClip{}, f.err
	}
	return entities.AudioClip{Data: []byte("mp3:" + text), MimeType: "audio/mpeg"}, nil
}
