package entities

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownVoice      = errors.New("voice is not in the catalog")
	ErrRevealOutOfRange  = errors.New("reveal index out of range")
	ErrNoStreamingReply  = errors.New("no reply is streaming")
	ErrReplyOutsidePhase = errors.New("reply can only stream while processing or speaking")
)

// ConversationState is the single source of truth for what a session shows.
// It only enforces its own invariants; sequencing belongs to the orchestrator.
type ConversationState struct {
	phase           Phase
	messages        []Message
	defaultProvider Provider
	provider        Provider
	voice           Voice
	lastError       string

	// streamingReply is held as runes so reveal positions are character positions.
	streamingReply []rune
	hasReply       bool
	revealIndex    int
}

// NewConversationState creates an idle state. An unknown default provider
// falls back to OpenAI; an unknown voice is rejected.
func NewConversationState(defaultProvider Provider, voiceID string) (*ConversationState, error) {
	if !defaultProvider.IsValid() {
		defaultProvider = ProviderOpenAI
	}
	voice, ok := LookupVoice(voiceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
	}
	return &ConversationState{
		phase:           PhaseIdle,
		defaultProvider: defaultProvider,
		provider:        defaultProvider,
		voice:           voice,
	}, nil
}

func (s *ConversationState) Phase() Phase {
	return s.phase
}

// SetPhase moves to p. Leaving the reply-carrying phases drops the streaming reply.
func (s *ConversationState) SetPhase(p Phase) {
	s.phase = p
	if !p.HasReply() {
		s.clearReply()
	}
}

// Messages returns a copy of the transcript
func (s *ConversationState) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendMessage adds m to the end of the transcript
func (s *ConversationState) AppendMessage(m Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *ConversationState) Provider() Provider {
	return s.provider
}

// SetProvider selects the provider named by raw; unknown names select the default.
func (s *ConversationState) SetProvider(raw string) Provider {
	s.provider = ParseProvider(raw, s.defaultProvider)
	return s.provider
}

func (s *ConversationState) Voice() Voice {
	return s.voice
}

// SetVoice selects a catalog voice
func (s *ConversationState) SetVoice(id string) error {
	v, ok := LookupVoice(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}
	s.voice = v
	return nil
}

func (s *ConversationState) LastError() string {
	return s.lastError
}

func (s *ConversationState) SetLastError(msg string) {
	s.lastError = msg
}

func (s *ConversationState) ClearLastError() {
	s.lastError = ""
}

// StreamingReply returns the reply being presented, if any
func (s *ConversationState) StreamingReply() (string, bool) {
	if !s.hasReply {
		return "", false
	}
	return string(s.streamingReply), true
}

// SetStreamingReply installs a new reply with nothing revealed yet
func (s *ConversationState) SetStreamingReply(text string) error {
	if !s.phase.HasReply() {
		return fmt.Errorf("%w: phase is %s", ErrReplyOutsidePhase, s.phase)
	}
	s.streamingReply = []rune(text)
	s.hasReply = true
	s.revealIndex = 0
	return nil
}

// ReplyLength is the streaming reply length in characters
func (s *ConversationState) ReplyLength() int {
	return len(s.streamingReply)
}

func (s *ConversationState) RevealIndex() int {
	return s.revealIndex
}

// SetRevealIndex sets how many characters of the reply are visible
func (s *ConversationState) SetRevealIndex(i int) error {
	if !s.hasReply {
		return ErrNoStreamingReply
	}
	if i < 0 || i > len(s.streamingReply) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrRevealOutOfRange, i, len(s.streamingReply))
	}
	s.revealIndex = i
	return nil
}

// Reset clears the transcript and returns to Idle, keeping provider and voice.
func (s *ConversationState) Reset() {
	s.messages = nil
	s.lastError = ""
	s.SetPhase(PhaseIdle)
}

func (s *ConversationState) clearReply() {
	s.streamingReply = nil
	s.hasReply = false
	s.revealIndex = 0
}

// StateSnapshot is an immutable view of ConversationState for observers
type StateSnapshot struct {
	Phase        Phase     `json:"phase"`
	IsRecording  bool      `json:"is_recording"`
	IsProcessing bool      `json:"is_processing"`
	IsSpeaking   bool      `json:"is_speaking"`
	Messages     []Message `json:"messages"`
	Provider     Provider  `json:"provider"`
	Voice        Voice     `json:"voice"`
	LastError    string    `json:"last_error,omitempty"`
	VisibleReply string    `json:"visible_reply,omitempty"`
	RevealIndex  int       `json:"reveal_index"`
	ReplyLength  int       `json:"reply_length"`

	StreamingReply string `json:"-"`
	HasReply       bool   `json:"-"`
}

// Snapshot copies the current state
func (s *ConversationState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Phase:        s.phase,
		IsRecording:  s.phase == PhaseRecording,
		IsProcessing: s.phase == PhaseProcessing,
		IsSpeaking:   s.phase == PhaseSpeaking,
		Messages:     s.Messages(),
		Provider:     s.provider,
		Voice:        s.voice,
		LastError:    s.lastError,
		RevealIndex:  s.revealIndex,
		ReplyLength:  len(s.streamingReply),
		HasReply:     s.hasReply,
	}
	if s.hasReply {
		snap.StreamingReply = string(s.streamingReply)
		snap.VisibleReply = string(s.streamingReply[:s.revealIndex])
	}
	return snap
}
