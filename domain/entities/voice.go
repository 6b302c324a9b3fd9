package entities

import "strings"

// VoiceGender is the presented gender of a synthesized voice
type VoiceGender string

const (
	VoiceGenderMale   VoiceGender = "Male"
	VoiceGenderFemale VoiceGender = "Female"
)

// Voice is an entry of the static voice catalog
type Voice struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"name"`
	Gender      VoiceGender `json:"gender"`
	Accent      string      `json:"accent"`
}

// DefaultVoiceID is selected when nothing else is configured
const DefaultVoiceID = "en-US-Neural2-J"

var voiceCatalog = []Voice{
	{ID: "en-US-Neural2-J", DisplayName: "James", Gender: VoiceGenderMale, Accent: "US"},
	{ID: "en-US-Neural2-D", DisplayName: "David", Gender: VoiceGenderMale, Accent: "US"},
	{ID: "en-US-Neural2-H", DisplayName: "Hannah", Gender: VoiceGenderFemale, Accent: "US"},
	{ID: "en-US-Neural2-F", DisplayName: "Fiona", Gender: VoiceGenderFemale, Accent: "US"},
	{ID: "en-GB-Neural2-B", DisplayName: "Brian", Gender: VoiceGenderMale, Accent: "UK"},
	{ID: "en-GB-Neural2-A", DisplayName: "Amy", Gender: VoiceGenderFemale, Accent: "UK"},
	{ID: "en-AU-Neural2-B", DisplayName: "Bruce", Gender: VoiceGenderMale, Accent: "AU"},
	{ID: "en-AU-Neural2-A", DisplayName: "Ava", Gender: VoiceGenderFemale, Accent: "AU"},
}

// Voices returns a copy of the voice catalog
func Voices() []Voice {
	out := make([]Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}

// LookupVoice finds a catalog voice by id
func LookupVoice(id string) (Voice, bool) {
	for _, v := range voiceCatalog {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// LanguageCode returns the BCP-47 code the voice speaks, e.g. "en-GB".
func (v Voice) LanguageCode() string {
	parts := strings.SplitN(v.ID, "-", 3)
	if len(parts) < 2 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}
