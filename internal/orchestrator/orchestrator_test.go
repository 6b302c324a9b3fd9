package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
	"github.com/satriahrh/fluent/internal/recorder"
	"github.com/satriahrh/fluent/internal/typing"
	"github.com/satriahrh/fluent/usecase"
)

const (
	question = "How do I pronounce thorough?"
	answer   = "Say THUR-oh. The 'gh' is silent."
)

type harness struct {
	orch      *Orchestrator
	clock     *clock.Mock
	input     *fakeInput
	stt       *fakeSTT
	openai    *fakeLLM
	anthropic *fakeLLM
	tts       *fakeTTS
	player    *fakePlayer
	observer  *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		clock:     clock.NewMock(),
		input:     &fakeInput{clip: entities.AudioClip{Data: make([]byte, 2048), MimeType: "audio/webm"}},
		stt:       &fakeSTT{transcript: question},
		openai:    &fakeLLM{reply: answer},
		anthropic: &fakeLLM{reply: "Anthropic says hi."},
		tts:       &fakeTTS{},
		player:    &fakePlayer{},
		observer:  &recordingObserver{},
	}

	chat := usecase.NewChatService(entities.ProviderOpenAI, logger)
	chat.Register(entities.ProviderOpenAI, h.openai)
	chat.Register(entities.ProviderAnthropic, h.anthropic)
	pipeline := usecase.NewTurnPipeline(h.stt, chat, h.tts,
		repositories.AudioConfig{SampleRate: 48000, Encoding: "WEBM_OPUS", Language: "en-US"}, logger)

	orch, err := New(Config{DefaultProvider: entities.ProviderOpenAI}, Dependencies{
		Recorder: recorder.New(h.input, logger),
		Pipeline: pipeline,
		Player:   h.player,
		Clock:    h.clock,
		Observer: h.observer,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	h.orch = orch
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) phase() entities.Phase {
	return h.orch.Snapshot().Phase
}

// record runs one StartRecording/StopRecording pair
func (h *harness) record(t *testing.T) error {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.orch.StartRecording(ctx))
	return h.orch.StopRecording(ctx)
}

func (h *harness) awaitPlayback(t *testing.T) *fakePlayback {
	t.Helper()
	waitFor(t, "playback", func() bool { return h.player.latest() != nil })
	return h.player.latest()
}

func TestOrchestrator_CompletedTurn(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.record(t))
	playback := h.awaitPlayback(t)
	assert.Equal(t, entities.PhaseSpeaking, h.phase())
	assert.Equal(t, "mp3:"+answer, string(playback.clip.Data))

	playback.finish(nil)
	waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })

	snap := h.orch.Snapshot()
	assert.Equal(t, []entities.Message{
		{Role: entities.MessageRoleUser, Content: question},
		{Role: entities.MessageRoleAssistant, Content: answer},
	}, snap.Messages)
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.HasReply)
	assert.Equal(t, entities.DefaultVoiceID, h.tts.voice().ID)
	assert.False(t, playback.wasStopped())
}

func TestOrchestrator_PhasesAreExclusive(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.record(t))
	h.awaitPlayback(t).finish(nil)
	waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })

	seen := map[entities.Phase]bool{}
	for _, ev := range h.observer.all() {
		if ev.snap == nil {
			continue
		}
		set := 0
		for _, flag := range []bool{ev.snap.IsRecording, ev.snap.IsProcessing, ev.snap.IsSpeaking} {
			if flag {
				set++
			}
		}
		if ev.snap.Phase == entities.PhaseIdle {
			assert.Equal(t, 0, set)
		} else {
			assert.Equal(t, 1, set, "phase %s", ev.snap.Phase)
		}
		seen[ev.snap.Phase] = true
	}
	for _, p := range []entities.Phase{entities.PhaseIdle, entities.PhaseRecording, entities.PhaseProcessing, entities.PhaseSpeaking} {
		assert.True(t, seen[p], "phase %s was never observed", p)
	}
}

func TestOrchestrator_DegradedTurnCommitsAfterReveal(t *testing.T) {
	h := newHarness(t)
	h.tts.err = errors.New("tts quota exceeded")

	require.NoError(t, h.record(t))
	waitFor(t, "speaking", func() bool { return h.phase() == entities.PhaseSpeaking })

	var advanced time.Duration
	deadline := time.Now().Add(5 * time.Second)
	for h.phase() != entities.PhaseIdle {
		require.False(t, time.Now().After(deadline), "degraded turn never finished")
		h.clock.Add(10 * time.Millisecond)
		advanced += 10 * time.Millisecond
	}

	total := typing.DefaultPolicy().Duration(answer)
	assert.GreaterOrEqual(t, advanced, total)
	assert.LessOrEqual(t, advanced, total+500*time.Millisecond)

	snap := h.orch.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, answer, snap.Messages[1].Content)
	assert.Empty(t, snap.LastError, "synthesis failure is not surfaced")
	assert.Equal(t, 0, h.player.count())

	last := -1
	for _, ev := range h.observer.all() {
		if ev.snap != nil {
			continue
		}
		assert.Greater(t, ev.revealed, last)
		last = ev.revealed
	}
	assert.Equal(t, len([]rune(answer)), last)
}

func TestOrchestrator_StopSpeakingFlushesReveal(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.record(t))
	playback := h.awaitPlayback(t)

	require.NoError(t, h.orch.StopSpeaking())

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, answer, snap.Messages[1].Content)
	assert.True(t, playback.wasStopped())

	fullReveal, commit := -1, -1
	for i, ev := range h.observer.all() {
		if ev.snap == nil && ev.revealed == ev.length && ev.length == len([]rune(answer)) {
			fullReveal = i
		}
		if ev.snap != nil && len(ev.snap.Messages) == 2 && commit < 0 {
			commit = i
		}
	}
	require.GreaterOrEqual(t, fullReveal, 0, "reply was never fully revealed")
	assert.Less(t, fullReveal, commit, "reply must be fully revealed before it is committed")

	// Late ticks and the playback completion belong to a finished turn.
	h.clock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.orch.Snapshot().Messages, 2)
	assert.ErrorIs(t, h.orch.StopSpeaking(), ErrNotSpeaking)
}

func TestOrchestrator_PlaybackErrorEndsTurn(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.record(t))
	playback := h.awaitPlayback(t)
	playback.finish(errors.New("decode error"))
	waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })

	snap := h.orch.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, entities.Message{Role: entities.MessageRoleAssistant, Content: answer}, snap.Messages[1])
	assert.Empty(t, snap.LastError, "playback failure is not surfaced")
	assert.False(t, snap.HasReply)
}

func TestOrchestrator_StopSpeakingDuringSynthesis(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.tts.gate = gate

	require.NoError(t, h.record(t))
	waitFor(t, "synthesis", func() bool { return h.tts.callCount() == 1 })
	require.Equal(t, entities.PhaseSpeaking, h.phase())

	require.NoError(t, h.orch.StopSpeaking())

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, answer, snap.Messages[1].Content)

	fullReveal, commit := -1, -1
	for i, ev := range h.observer.all() {
		if ev.snap == nil && ev.revealed == ev.length && ev.length == len([]rune(answer)) {
			fullReveal = i
		}
		if ev.snap != nil && len(ev.snap.Messages) == 2 && commit < 0 {
			commit = i
		}
	}
	require.GreaterOrEqual(t, fullReveal, 0, "reply was never fully revealed")
	assert.Less(t, fullReveal, commit, "reply must be fully revealed before it is committed")

	// The audio finishing afterwards belongs to a finished turn.
	close(gate)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, h.player.count())
	snap = h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	assert.Len(t, snap.Messages, 2)
	assert.Empty(t, snap.LastError)
}

func TestOrchestrator_NoSpeechDetected(t *testing.T) {
	h := newHarness(t)
	h.stt.transcript = "  "

	require.NoError(t, h.record(t))
	waitFor(t, "error", func() bool { return h.orch.Snapshot().LastError != "" })

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	assert.Equal(t, domain.MessageNoSpeechDetected, snap.LastError)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, 0, h.openai.callCount())
}

func TestOrchestrator_EmptyCapture(t *testing.T) {
	h := newHarness(t)
	h.input.clip = entities.AudioClip{MimeType: "audio/webm"}

	err := h.record(t)
	assert.ErrorIs(t, err, domain.ErrEmptyCapture)

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	assert.Equal(t, domain.MessageEmptyCapture, snap.LastError)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, 0, h.stt.callCount())
	assert.Equal(t, 0, h.openai.callCount())
	assert.Equal(t, 1, h.input.closedCount(), "device must be released")
}

func TestOrchestrator_DeviceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.input.openErr = errors.New("permission denied")

	err := h.orch.StartRecording(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	assert.Equal(t, domain.MessageDeviceUnavailable, snap.LastError)
}

func TestOrchestrator_ProviderErrorSurfaced(t *testing.T) {
	h := newHarness(t)
	h.openai.err = errors.New("rate limited")

	require.NoError(t, h.record(t))
	waitFor(t, "error", func() bool { return h.orch.Snapshot().LastError != "" })

	snap := h.orch.Snapshot()
	assert.Equal(t, "The OpenAI provider returned an error: rate limited", snap.LastError)
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	require.Len(t, snap.Messages, 1, "the user's message stays in the transcript")
	assert.Equal(t, entities.MessageRoleUser, snap.Messages[0].Role)
}

func TestOrchestrator_ErrorAutoDismiss(t *testing.T) {
	h := newHarness(t)
	h.input.openErr = errors.New("no device")

	require.Error(t, h.orch.StartRecording(context.Background()))
	h.clock.Add(2999 * time.Millisecond)
	assert.Equal(t, domain.MessageDeviceUnavailable, h.orch.Snapshot().LastError)

	h.clock.Add(time.Millisecond)
	waitFor(t, "dismissal", func() bool { return h.orch.Snapshot().LastError == "" })
}

func TestOrchestrator_NewerErrorRestartsDismissal(t *testing.T) {
	h := newHarness(t)
	h.input.openErr = errors.New("no device")
	ctx := context.Background()

	require.Error(t, h.orch.StartRecording(ctx))
	h.clock.Add(2 * time.Second)
	require.Error(t, h.orch.StartRecording(ctx))

	h.clock.Add(1500 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.NotEmpty(t, h.orch.Snapshot().LastError, "first timer must not dismiss the newer error")

	h.clock.Add(1500 * time.Millisecond)
	waitFor(t, "dismissal", func() bool { return h.orch.Snapshot().LastError == "" })
}

func TestOrchestrator_RejectsSwitchesOutsideIdle(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.openai.gate = gate
	ctx := context.Background()

	require.NoError(t, h.orch.StartRecording(ctx))
	_, err := h.orch.SetProvider("anthropic")
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.ErrorIs(t, h.orch.SetVoice("en-GB-Neural2-A"), ErrNotIdle)
	assert.ErrorIs(t, h.orch.Clear(), ErrNotIdle)
	assert.ErrorIs(t, h.orch.StartRecording(ctx), recorder.ErrCaptureInProgress)
	assert.ErrorIs(t, h.orch.StopSpeaking(), ErrNotSpeaking)

	require.NoError(t, h.orch.StopRecording(ctx))
	waitFor(t, "reply request", func() bool { return h.openai.callCount() == 1 })
	assert.Equal(t, entities.PhaseProcessing, h.phase())

	_, err = h.orch.SetProvider("anthropic")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.ErrorIs(t, h.orch.StartRecording(ctx), ErrBusy)
	assert.ErrorIs(t, h.orch.StopRecording(ctx), ErrBusy)
	assert.ErrorIs(t, h.orch.StopSpeaking(), ErrBusy)

	close(gate)
	playback := h.awaitPlayback(t)

	err = h.orch.SetVoice("en-GB-Neural2-A")
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.NotErrorIs(t, err, ErrBusy)

	playback.finish(nil)
	waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.ProviderOpenAI, snap.Provider)
	assert.Equal(t, entities.DefaultVoiceID, snap.Voice.ID)
}

func TestOrchestrator_SelectionsReachBackends(t *testing.T) {
	h := newHarness(t)

	provider, err := h.orch.SetProvider("anthropic")
	require.NoError(t, err)
	assert.Equal(t, entities.ProviderAnthropic, provider)
	require.NoError(t, h.orch.SetVoice("en-GB-Neural2-A"))
	assert.ErrorIs(t, h.orch.SetVoice("robot"), entities.ErrUnknownVoice)

	require.NoError(t, h.record(t))
	h.awaitPlayback(t).finish(nil)
	waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })

	assert.Equal(t, 0, h.openai.callCount())
	assert.Equal(t, 1, h.anthropic.callCount())
	assert.Equal(t, "en-GB-Neural2-A", h.tts.voice().ID)

	provider, err = h.orch.SetProvider("llama")
	require.NoError(t, err)
	assert.Equal(t, entities.ProviderOpenAI, provider)
}

func TestOrchestrator_HistoryCarriesAcrossTurns(t *testing.T) {
	h := newHarness(t)

	for turn := 1; turn <= 2; turn++ {
		require.NoError(t, h.record(t))
		waitFor(t, "playback", func() bool { return h.player.count() == turn })
		h.player.latest().finish(nil)
		waitFor(t, "idle", func() bool { return h.phase() == entities.PhaseIdle })
	}

	assert.Len(t, h.orch.Snapshot().Messages, 4)
	history := h.openai.history()
	require.Len(t, history, 3)
	assert.Equal(t, entities.MessageRoleAssistant, history[1].Role)

	require.NoError(t, h.orch.Clear())
	assert.Empty(t, h.orch.Snapshot().Messages)
}

func TestOrchestrator_CloseDiscardsTurnInFlight(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.openai.gate = gate

	require.NoError(t, h.record(t))
	waitFor(t, "reply request", func() bool { return h.openai.callCount() == 1 })

	h.orch.Close()
	close(gate)
	time.Sleep(20 * time.Millisecond)

	snap := h.orch.Snapshot()
	assert.Equal(t, entities.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.LastError)
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, 0, h.player.count())
	assert.ErrorIs(t, h.orch.StartRecording(context.Background()), ErrClosed)
}
