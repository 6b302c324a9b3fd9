package entities

import (
	"errors"
	"testing"
)

func newTestState(t *testing.T) *ConversationState {
	t.Helper()
	s, err := NewConversationState(ProviderGemini, DefaultVoiceID)
	if err != nil {
		t.Fatalf("NewConversationState() error = %v", err)
	}
	return s
}

func TestNewConversationState(t *testing.T) {
	s := newTestState(t)

	if s.Phase() != PhaseIdle {
		t.Errorf("Expected phase idle, got %s", s.Phase())
	}
	if s.Provider() != ProviderGemini {
		t.Errorf("Expected provider gemini, got %s", s.Provider())
	}
	if s.Voice().ID != DefaultVoiceID {
		t.Errorf("Expected voice %s, got %s", DefaultVoiceID, s.Voice().ID)
	}

	if _, err := NewConversationState(ProviderOpenAI, "en-FR-Neural2-X"); !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("Expected ErrUnknownVoice, got %v", err)
	}

	fallback, err := NewConversationState(Provider("mistral"), DefaultVoiceID)
	if err != nil {
		t.Fatalf("NewConversationState() error = %v", err)
	}
	if fallback.Provider() != ProviderOpenAI {
		t.Errorf("Expected invalid default to fall back to openai, got %s", fallback.Provider())
	}
}

func TestSetProviderFallsBackToDefault(t *testing.T) {
	s := newTestState(t)

	tests := []struct {
		raw  string
		want Provider
	}{
		{"openai", ProviderOpenAI},
		{"Anthropic", ProviderAnthropic},
		{" gemini ", ProviderGemini},
		{"llama", ProviderGemini},
		{"", ProviderGemini},
	}

	for _, tt := range tests {
		if got := s.SetProvider(tt.raw); got != tt.want {
			t.Errorf("SetProvider(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestSetVoiceRejectsUnknownVoice(t *testing.T) {
	s := newTestState(t)

	if err := s.SetVoice("en-GB-Neural2-A"); err != nil {
		t.Fatalf("SetVoice() error = %v", err)
	}
	if err := s.SetVoice("robot"); !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("Expected ErrUnknownVoice, got %v", err)
	}
	if s.Voice().ID != "en-GB-Neural2-A" {
		t.Errorf("Rejected voice should not change selection, got %s", s.Voice().ID)
	}
}

func TestStreamingReplyInvariants(t *testing.T) {
	s := newTestState(t)

	if err := s.SetStreamingReply("hello"); !errors.Is(err, ErrReplyOutsidePhase) {
		t.Errorf("Expected ErrReplyOutsidePhase while idle, got %v", err)
	}
	if err := s.SetRevealIndex(1); !errors.Is(err, ErrNoStreamingReply) {
		t.Errorf("Expected ErrNoStreamingReply, got %v", err)
	}

	s.SetPhase(PhaseProcessing)
	if err := s.SetStreamingReply("héllo"); err != nil {
		t.Fatalf("SetStreamingReply() error = %v", err)
	}
	if s.ReplyLength() != 5 {
		t.Errorf("Expected rune length 5, got %d", s.ReplyLength())
	}

	s.SetPhase(PhaseSpeaking)
	if err := s.SetRevealIndex(2); err != nil {
		t.Fatalf("SetRevealIndex() error = %v", err)
	}
	if snap := s.Snapshot(); snap.VisibleReply != "hé" {
		t.Errorf("Expected visible reply 'hé', got %q", snap.VisibleReply)
	}
	if err := s.SetRevealIndex(6); !errors.Is(err, ErrRevealOutOfRange) {
		t.Errorf("Expected ErrRevealOutOfRange, got %v", err)
	}
	if s.RevealIndex() != 2 {
		t.Errorf("Rejected reveal should not move the index, got %d", s.RevealIndex())
	}

	s.SetPhase(PhaseIdle)
	if _, ok := s.StreamingReply(); ok {
		t.Error("Expected streaming reply to be cleared on idle")
	}
}

func TestSnapshotPhaseFlags(t *testing.T) {
	s := newTestState(t)

	for _, p := range []Phase{PhaseIdle, PhaseRecording, PhaseProcessing, PhaseSpeaking} {
		s.SetPhase(p)
		snap := s.Snapshot()
		set := 0
		for _, flag := range []bool{snap.IsRecording, snap.IsProcessing, snap.IsSpeaking} {
			if flag {
				set++
			}
		}
		want := 1
		if p == PhaseIdle {
			want = 0
		}
		if set != want {
			t.Errorf("Phase %s: expected %d flags set, got %d", p, want, set)
		}
	}
}

func TestAppendAndReset(t *testing.T) {
	s := newTestState(t)

	if err := s.AppendMessage(Message{Role: MessageRoleUser, Content: "Hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := s.AppendMessage(Message{Role: MessageRoleUser, Content: "   "}); err == nil {
		t.Error("Expected blank message to be rejected")
	}

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	if s.Messages()[0].Content != "Hi" {
		t.Error("Messages() should return a copy")
	}

	s.SetLastError("boom")
	s.Reset()
	if len(s.Messages()) != 0 || s.LastError() != "" || s.Phase() != PhaseIdle {
		t.Errorf("Reset did not clear state: %+v", s.Snapshot())
	}
}

func TestVoiceCatalog(t *testing.T) {
	voices := Voices()
	if len(voices) != 8 {
		t.Fatalf("Expected 8 voices, got %d", len(voices))
	}

	amy, ok := LookupVoice("en-GB-Neural2-A")
	if !ok {
		t.Fatal("Expected Amy in catalog")
	}
	if amy.DisplayName != "Amy" || amy.Gender != VoiceGenderFemale || amy.Accent != "UK" {
		t.Errorf("Unexpected voice %+v", amy)
	}
	if amy.LanguageCode() != "en-GB" {
		t.Errorf("Expected en-GB, got %s", amy.LanguageCode())
	}
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseRecording, PhaseProcessing, PhaseSpeaking} {
		text, _ := p.MarshalText()
		var got Phase
		if err := got.UnmarshalText(text); err != nil || got != p {
			t.Errorf("UnmarshalText(%s) = %v, %v", text, got, err)
		}
	}

	var p Phase
	if err := p.UnmarshalText([]byte("dancing")); err == nil {
		t.Error("Expected unknown phase to be rejected")
	}
}
