package domain

import (
	"errors"
	"fmt"

	"github.com/satriahrh/fluent/domain/entities"
)

// Turn failure kinds. Every failure surfaced by a turn matches exactly one of
// these with errors.Is.
var (
	ErrDeviceUnavailable   = errors.New("audio input device unavailable")
	ErrEmptyCapture        = errors.New("no audio was captured")
	ErrNoSpeechDetected    = errors.New("no speech detected")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderError       = errors.New("provider error")
	ErrEmptyReply          = errors.New("empty reply")
	ErrSynthesisFailed     = errors.New("speech synthesis failed")
)

// Stage names a step of a conversation turn
type Stage string

const (
	StageCapture    Stage = "capture"
	StageTranscribe Stage = "transcribe"
	StageReply      Stage = "reply"
	StageSynthesize Stage = "synthesize"
)

// StageError reports which stage of a turn failed and why.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

// NewStageError builds a StageError; err may be nil when the kind says it all.
func NewStageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ProviderError wraps a failure returned by a reply backend.
type ProviderError struct {
	Provider entities.Provider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrProviderError) match any ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderError
}
