package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
	"github.com/satriahrh/fluent/internal/recorder"
	"github.com/satriahrh/fluent/internal/typing"
	"github.com/satriahrh/fluent/usecase"
)

var (
	ErrNotIdle      = errors.New("orchestrator: only allowed while idle")
	ErrBusy         = fmt.Errorf("%w: a turn is being processed", ErrNotIdle)
	ErrNotRecording = errors.New("orchestrator: not recording")
	ErrNotSpeaking  = errors.New("orchestrator: not speaking")
	ErrClosed       = errors.New("orchestrator: session closed")

	errStaleTurn = errors.New("turn superseded")
)

const defaultErrorDismissAfter = 3 * time.Second

// TurnRunner runs the stages of one turn
type TurnRunner interface {
	RunTurn(ctx context.Context, req usecase.TurnRequest, hooks usecase.TurnHooks) usecase.TurnResult
}

var _ TurnRunner = (*usecase.TurnPipeline)(nil)

// Observer is notified of every state change. Calls are made while the
// orchestrator holds its lock, so implementations must not block or call back.
type Observer interface {
	StateChanged(snap entities.StateSnapshot)
	Revealed(visible string, index, length int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(entities.StateSnapshot) {}
func (nopObserver) Revealed(string, int, int)          {}

// Config holds per-session settings
type Config struct {
	DefaultProvider   entities.Provider
	DefaultVoice      string
	ErrorDismissAfter time.Duration
	Typing            typing.DelayPolicy
}

// Dependencies are the collaborators of one orchestrator
type Dependencies struct {
	Recorder *recorder.Recorder
	Pipeline TurnRunner
	Player   repositories.AudioPlayer
	Clock    clock.Clock
	Observer Observer
}

// Orchestrator sequences recording, the turn pipeline, the typing reveal and
// playback for one session, and is the only writer of its ConversationState.
type Orchestrator struct {
	config   Config
	recorder *recorder.Recorder
	pipeline TurnRunner
	player   repositories.AudioPlayer
	revealer *typing.Revealer
	clock    clock.Clock
	observer Observer
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        *entities.ConversationState
	turn         uint64
	acquiring    bool
	closed       bool
	reply        string
	hasReply     bool
	reveal       *typing.Reveal
	playback     repositories.Playback
	turnCancel   context.CancelFunc
	dismissTimer *clock.Timer
}

// New creates an idle orchestrator
func New(config Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Recorder == nil || deps.Pipeline == nil || deps.Player == nil {
		return nil, errors.New("recorder, pipeline and player are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if config.DefaultVoice == "" {
		config.DefaultVoice = entities.DefaultVoiceID
	}
	if config.ErrorDismissAfter <= 0 {
		config.ErrorDismissAfter = defaultErrorDismissAfter
	}
	if config.Typing == (typing.DelayPolicy{}) {
		config.Typing = typing.DefaultPolicy()
	}

	state, err := entities.NewConversationState(config.DefaultProvider, config.DefaultVoice)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation state: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config:   config,
		recorder: deps.Recorder,
		pipeline: deps.Pipeline,
		player:   deps.Player,
		revealer: typing.NewRevealer(deps.Clock, config.Typing),
		clock:    deps.Clock,
		observer: deps.Observer,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		state:    state,
	}, nil
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() entities.StateSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Snapshot()
}

// StartRecording acquires the microphone and enters Recording
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Phase() == entities.PhaseRecording || o.acquiring {
		o.mu.Unlock()
		return recorder.ErrCaptureInProgress
	}
	if err := o.requireIdleLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.acquiring = true
	o.clearErrorLocked()
	o.notifyLocked()
	o.mu.Unlock()

	err := o.recorder.Begin(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquiring = false

	if o.closed {
		if err == nil {
			o.recorder.Abort()
		}
		return ErrClosed
	}
	if err != nil {
		o.failLocked(err)
		return err
	}

	o.turn++
	o.state.SetPhase(entities.PhaseRecording)
	o.logger.Info("Recording started", zap.Uint64("turnID", o.turn))
	o.notifyLocked()
	return nil
}

// StopRecording ends capture and hands the clip to the turn pipeline, which
// keeps running after StopRecording returns.
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.state.Phase() == entities.PhaseProcessing:
		o.mu.Unlock()
		return ErrBusy
	case o.state.Phase() != entities.PhaseRecording:
		o.mu.Unlock()
		return ErrNotRecording
	}
	token := o.turn
	o.state.SetPhase(entities.PhaseProcessing)
	o.notifyLocked()
	o.mu.Unlock()

	clip, err := o.recorder.End(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.turn || o.closed {
		return ErrClosed
	}
	if err != nil {
		o.failLocked(err)
		return err
	}

	req := usecase.TurnRequest{
		TurnID:   token,
		Clip:     clip,
		History:  o.state.Messages(),
		Provider: o.state.Provider(),
		Voice:    o.state.Voice(),
	}
	turnCtx, cancel := context.WithCancel(o.ctx)
	o.turnCancel = cancel

	go o.runTurn(turnCtx, req)
	return nil
}

// StopSpeaking cuts the reply short: audio stops, the full reply is revealed
// and committed, and the session returns to Idle.
func (o *Orchestrator) StopSpeaking() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state.Phase() {
	case entities.PhaseSpeaking:
	case entities.PhaseProcessing:
		return ErrBusy
	default:
		return ErrNotSpeaking
	}

	o.logger.Info("Speaking cancelled", zap.Uint64("turnID", o.turn))
	o.finishLocked(o.turn)
	return nil
}

// SetProvider selects the reply provider; unknown names select the default
func (o *Orchestrator) SetProvider(raw string) (entities.Provider, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireIdleLocked(); err != nil {
		return o.state.Provider(), err
	}
	provider := o.state.SetProvider(raw)
	o.notifyLocked()
	return provider, nil
}

// SetVoice selects a catalog voice
func (o *Orchestrator) SetVoice(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireIdleLocked(); err != nil {
		return err
	}
	if err := o.state.SetVoice(id); err != nil {
		return err
	}
	o.notifyLocked()
	return nil
}

// Clear drops the transcript
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireIdleLocked(); err != nil {
		return err
	}
	o.stopDismissTimerLocked()
	o.state.Reset()
	o.notifyLocked()
	return nil
}

// Close ends the session. Any turn in flight is abandoned and the microphone
// is released.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.turn++
	o.releaseTurnLocked()
	o.stopDismissTimerLocked()
	o.state.SetPhase(entities.PhaseIdle)
	o.mu.Unlock()

	o.cancel()
	o.recorder.Abort()
}

func (o *Orchestrator) runTurn(ctx context.Context, req usecase.TurnRequest) {
	token := req.TurnID
	result := o.pipeline.RunTurn(ctx, req, usecase.TurnHooks{
		Transcribed: func(msg entities.Message) error { return o.commitUserMessage(token, msg) },
		Replied:     func(reply string) error { return o.beginSpeaking(token, reply) },
	})

	switch result.Outcome {
	case usecase.OutcomeFailed:
		if errors.Is(result.Err, errStaleTurn) {
			return
		}
		o.mu.Lock()
		if token == o.turn {
			o.failLocked(result.Err)
		}
		o.mu.Unlock()
	case usecase.OutcomeDegraded:
		o.logger.Info("Presenting reply as text only",
			zap.Uint64("turnID", token),
			zap.Error(result.SynthesisErr))
		o.awaitReveal(ctx, token)
	case usecase.OutcomeSynthesized:
		o.play(ctx, token, result.Audio)
	}
}

func (o *Orchestrator) commitUserMessage(token uint64, msg entities.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.turn {
		return errStaleTurn
	}
	if err := o.state.AppendMessage(msg); err != nil {
		return err
	}
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) beginSpeaking(token uint64, reply string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.turn {
		return errStaleTurn
	}
	if err := o.state.SetStreamingReply(reply); err != nil {
		return err
	}
	o.state.SetPhase(entities.PhaseSpeaking)
	o.reply, o.hasReply = reply, true
	o.reveal = o.revealer.Start(reply, func(index int) {
		o.revealTo(token, index)
	})
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) revealTo(token uint64, index int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.turn {
		return
	}
	if err := o.state.SetRevealIndex(index); err != nil {
		o.logger.Warn("Dropping reveal tick", zap.Int("index", index), zap.Error(err))
		return
	}
	o.notifyRevealLocked()
}

// awaitReveal finishes a text-only turn once the whole reply is visible
func (o *Orchestrator) awaitReveal(ctx context.Context, token uint64) {
	o.mu.Lock()
	rv := o.reveal
	stale := token != o.turn
	o.mu.Unlock()
	if stale || rv == nil {
		return
	}

	select {
	case <-rv.Done():
	case <-ctx.Done():
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.finishLocked(token)
}

func (o *Orchestrator) play(ctx context.Context, token uint64, audio entities.AudioClip) {
	o.mu.Lock()
	stale := token != o.turn
	o.mu.Unlock()
	if stale {
		return
	}

	playback, err := o.player.Play(ctx, audio)
	if err != nil {
		o.logger.Warn("Playback failed to start", zap.Uint64("turnID", token), zap.Error(err))
		o.mu.Lock()
		o.finishLocked(token)
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	if token != o.turn {
		o.mu.Unlock()
		playback.Stop()
		return
	}
	o.playback = playback
	o.mu.Unlock()

	select {
	case err = <-playback.Done():
	case <-ctx.Done():
		return
	}
	if err != nil {
		o.logger.Warn("Playback ended with error", zap.Uint64("turnID", token), zap.Error(err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if token == o.turn {
		o.playback = nil
	}
	o.finishLocked(token)
}

// finishLocked ends the turn identified by token: the reply is fully revealed,
// committed once, and the session returns to Idle.
func (o *Orchestrator) finishLocked(token uint64) {
	if token != o.turn {
		return
	}
	o.turn++
	o.releaseTurnLocked()

	if o.hasReply {
		if o.state.RevealIndex() < o.state.ReplyLength() {
			if err := o.state.SetRevealIndex(o.state.ReplyLength()); err == nil {
				o.notifyRevealLocked()
			}
		}
		if err := o.state.AppendMessage(entities.Message{Role: entities.MessageRoleAssistant, Content: o.reply}); err != nil {
			o.logger.Error("Failed to commit reply", zap.Error(err))
		}
	}
	o.reply, o.hasReply = "", false

	o.state.SetPhase(entities.PhaseIdle)
	o.logger.Info("Turn completed", zap.Uint64("turnID", token))
	o.notifyLocked()
}

// failLocked abandons the current turn and surfaces err to the user
func (o *Orchestrator) failLocked(err error) {
	o.turn++
	o.releaseTurnLocked()
	o.reply, o.hasReply = "", false
	o.state.SetPhase(entities.PhaseIdle)

	msg := domain.UserMessage(err)
	o.logger.Warn("Turn failed",
		zap.Uint64("turnID", o.turn),
		zap.String("userMessage", msg),
		zap.Error(err))
	o.showErrorLocked(msg)
	o.notifyLocked()
}

// releaseTurnLocked stops everything the turn holds besides the microphone
func (o *Orchestrator) releaseTurnLocked() {
	if o.reveal != nil {
		o.reveal.Stop()
		o.reveal = nil
	}
	if o.playback != nil {
		o.playback.Stop()
		o.playback = nil
	}
	if o.turnCancel != nil {
		o.turnCancel()
		o.turnCancel = nil
	}
}

func (o *Orchestrator) showErrorLocked(msg string) {
	o.stopDismissTimerLocked()
	o.state.SetLastError(msg)

	token := o.turn
	o.dismissTimer = o.clock.AfterFunc(o.config.ErrorDismissAfter, func() {
		o.dismissError(token)
	})
}

func (o *Orchestrator) dismissError(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.turn || o.state.LastError() == "" {
		return
	}
	o.state.ClearLastError()
	o.notifyLocked()
}

func (o *Orchestrator) clearErrorLocked() {
	o.stopDismissTimerLocked()
	o.state.ClearLastError()
}

func (o *Orchestrator) stopDismissTimerLocked() {
	if o.dismissTimer != nil {
		o.dismissTimer.Stop()
		o.dismissTimer = nil
	}
}

func (o *Orchestrator) requireIdleLocked() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.state.Phase() == entities.PhaseProcessing:
		return ErrBusy
	case o.state.Phase() != entities.PhaseIdle || o.acquiring:
		return ErrNotIdle
	}
	return nil
}

func (o *Orchestrator) notifyLocked() {
	o.observer.StateChanged(o.state.Snapshot())
}

func (o *Orchestrator) notifyRevealLocked() {
	reply, _ := o.state.StreamingReply()
	runes := []rune(reply)
	index := o.state.RevealIndex()
	o.observer.Revealed(string(runes[:index]), index, len(runes))
}
