package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/fluent/domain"
	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/domain/repositories"
)

// StageState represents the state of an individual stage
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
	StageStateSkipped   StageState = "skipped"
)

// StageExecution records how a stage of one turn went
type StageExecution struct {
	Stage       domain.Stage `json:"stage"`
	State       StageState   `json:"state"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Duration is zero until the stage has finished
func (e StageExecution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// TurnOutcome is how far a turn got
type TurnOutcome int

const (
	OutcomeFailed TurnOutcome = iota
	OutcomeSynthesized
	OutcomeDegraded
)

func (o TurnOutcome) String() string {
	switch o {
	case OutcomeSynthesized:
		return "synthesized"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// TurnRequest is everything one turn needs
type TurnRequest struct {
	TurnID   uint64
	Clip     entities.AudioClip
	History  []entities.Message
	Provider entities.Provider
	Voice    entities.Voice
}

// TurnHooks are called between stages. A hook returning an error halts the
// turn and that error becomes the result's Err.
type TurnHooks struct {
	// Transcribed receives the user's message before the reply is requested.
	Transcribed func(msg entities.Message) error
	// Replied receives the reply text before synthesis starts.
	Replied func(reply string) error
}

// TurnResult is the outcome of RunTurn
type TurnResult struct {
	Outcome     TurnOutcome
	UserMessage entities.Message
	Reply       string
	Audio       entities.AudioClip
	// SynthesisErr is set on OutcomeDegraded.
	SynthesisErr error
	// Err is set on OutcomeFailed; stage failures are *domain.StageError.
	Err    error
	Stages []StageExecution
}

var turnStages = []domain.Stage{domain.StageTranscribe, domain.StageReply, domain.StageSynthesize}

// TurnPipeline runs transcribe, reply and synthesize strictly in order over one clip.
// It never retries; the first fatal failure halts the remaining stages.
type TurnPipeline struct {
	stt         repositories.SpeechToText
	chat        *ChatService
	tts         repositories.TextToSpeech
	audioConfig repositories.AudioConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewTurnPipeline creates a new turn pipeline. audioConfig supplies the sample
// rate, language and fallback encoding for transcription.
func NewTurnPipeline(
	stt repositories.SpeechToText,
	chat *ChatService,
	tts repositories.TextToSpeech,
	audioConfig repositories.AudioConfig,
	logger *zap.Logger,
) *TurnPipeline {
	return &TurnPipeline{
		stt:         stt,
		chat:        chat,
		tts:         tts,
		audioConfig: audioConfig,
		logger:      logger,
		now:         time.Now,
	}
}

// RunTurn drives one clip through the pipeline
func (p *TurnPipeline) RunTurn(ctx context.Context, req TurnRequest, hooks TurnHooks) TurnResult {
	result := TurnResult{Stages: make([]StageExecution, len(turnStages))}
	for i, stage := range turnStages {
		result.Stages[i] = StageExecution{Stage: stage, State: StageStatePending}
	}

	if req.Clip.Empty() {
		return p.fail(result, 0, domain.NewStageError(domain.StageCapture, domain.ErrEmptyCapture, nil))
	}

	var transcript string
	err := p.runStage(ctx, req, &result, 0, func(ctx context.Context) error {
		text, err := p.stt.TranscribeAudio(ctx, req.Clip.Data, p.audioConfigFor(req.Clip))
		if err != nil {
			return domain.NewStageError(domain.StageTranscribe, domain.ErrTranscriptionFailed, err)
		}
		transcript = strings.TrimSpace(text)
		if transcript == "" {
			return domain.NewStageError(domain.StageTranscribe, domain.ErrNoSpeechDetected, nil)
		}
		return nil
	})
	if err != nil {
		return p.fail(result, 1, err)
	}

	result.UserMessage = entities.Message{Role: entities.MessageRoleUser, Content: transcript}
	if hooks.Transcribed != nil {
		if err := hooks.Transcribed(result.UserMessage); err != nil {
			return p.fail(result, 1, err)
		}
	}

	history := make([]entities.Message, 0, len(req.History)+1)
	history = append(history, req.History...)
	history = append(history, result.UserMessage)

	err = p.runStage(ctx, req, &result, 1, func(ctx context.Context) error {
		reply, err := p.chat.Reply(ctx, history, req.Provider)
		if err != nil {
			return domain.NewStageError(domain.StageReply, replyErrorKind(err), err)
		}
		result.Reply = reply
		return nil
	})
	if err != nil {
		return p.fail(result, 2, err)
	}

	if hooks.Replied != nil {
		if err := hooks.Replied(result.Reply); err != nil {
			return p.fail(result, 2, err)
		}
	}

	err = p.runStage(ctx, req, &result, 2, func(ctx context.Context) error {
		audio, err := p.tts.SynthesizeAudio(ctx, result.Reply, req.Voice)
		if err == nil && audio.Empty() {
			err = errors.New("no audio returned")
		}
		if err != nil {
			return domain.NewStageError(domain.StageSynthesize, domain.ErrSynthesisFailed, err)
		}
		result.Audio = audio
		return nil
	})
	if err != nil {
		p.logger.Warn("Synthesis failed, continuing with text only",
			zap.Uint64("turnID", req.TurnID),
			zap.Error(err))
		result.Outcome = OutcomeDegraded
		result.SynthesisErr = err
		return result
	}

	result.Outcome = OutcomeSynthesized
	return result
}

// runStage executes a single stage and records its execution
func (p *TurnPipeline) runStage(ctx context.Context, req TurnRequest, result *TurnResult, index int, fn func(context.Context) error) error {
	exec := &result.Stages[index]
	started := p.now()
	exec.State = StageStateRunning
	exec.StartedAt = &started

	p.logger.Debug("Stage started",
		zap.Uint64("turnID", req.TurnID),
		zap.String("stage", string(exec.Stage)))

	err := fn(ctx)

	completed := p.now()
	exec.CompletedAt = &completed

	if err != nil {
		exec.State = StageStateFailed
		exec.Error = err.Error()
		p.logger.Info("Stage failed",
			zap.Uint64("turnID", req.TurnID),
			zap.String("stage", string(exec.Stage)),
			zap.Duration("duration", exec.Duration()),
			zap.Error(err))
		return err
	}

	exec.State = StageStateCompleted
	p.logger.Info("Stage completed",
		zap.Uint64("turnID", req.TurnID),
		zap.String("stage", string(exec.Stage)),
		zap.Duration("duration", exec.Duration()))
	return nil
}

// fail marks stages from index on as skipped and returns a failed result
func (p *TurnPipeline) fail(result TurnResult, index int, err error) TurnResult {
	for i := index; i < len(result.Stages); i++ {
		if result.Stages[i].State == StageStatePending {
			result.Stages[i].State = StageStateSkipped
		}
	}
	result.Outcome = OutcomeFailed
	result.Err = err
	return result
}

func (p *TurnPipeline) audioConfigFor(clip entities.AudioClip) repositories.AudioConfig {
	config := p.audioConfig
	if encoding := repositories.EncodingForMIME(clip.MimeType); encoding != "" {
		config.Encoding = encoding
	}
	return config
}

func replyErrorKind(err error) error {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return domain.ErrProviderUnavailable
	case errors.Is(err, domain.ErrEmptyReply):
		return domain.ErrEmptyReply
	default:
		return domain.ErrProviderError
	}
}
