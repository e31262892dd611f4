package core

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Segment is one speaker's line of dialogue within a section.
type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Section is an ordered group of segments under a title.
type Section struct {
	Title    string    `json:"title"`
	Segments []Segment `json:"segments"`
}

// Script is the structured dialogue for one episode.
type Script struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// NormalizeSpeaker maps a raw speaker tag to the key used for voice lookup.
func NormalizeSpeaker(speaker string) string {
	return strings.ToLower(strings.TrimSpace(speaker))
}

// SpeakerIDs returns the distinct normalised speakers that have non-blank
// text, in order of first appearance.
func (s *Script) SpeakerIDs() []string {
	if s == nil {
		return nil
	}

	speakers := lo.FlatMap(s.Sections, func(section Section, _ int) []string {
		spoken := lo.Filter(section.Segments, func(segment Segment, _ int) bool {
			return strings.TrimSpace(segment.Text) != ""
		})

		return lo.Map(spoken, func(segment Segment, _ int) string {
			return NormalizeSpeaker(segment.Speaker)
		})
	})

	return lo.Uniq(speakers)
}

// SegmentCount returns the number of segments across all sections.
func (s *Script) SegmentCount() int {
	if s == nil {
		return 0
	}

	return lo.SumBy(s.Sections, func(section Section) int {
		return len(section.Segments)
	})
}

// Gender is the synthesizer-facing voice gender.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// VoicePreference selects how speakers are mapped onto voice genders.
type VoicePreference string

const (
	VoicePreferenceMale   VoicePreference = "male"
	VoicePreferenceFemale VoicePreference = "female"
	VoicePreferenceMixed  VoicePreference = "mixed"
	VoicePreferenceAuto   VoicePreference = "auto"
)

// ParseVoicePreference converts a string into a VoicePreference, defaulting to auto.
func ParseVoicePreference(value string) (VoicePreference, bool) {
	switch pref := VoicePreference(strings.ToLower(strings.TrimSpace(value))); pref {
	case VoicePreferenceMale, VoicePreferenceFemale, VoicePreferenceMixed, VoicePreferenceAuto:
		return pref, true
	case "":
		return VoicePreferenceAuto, true
	default:
		return VoicePreferenceAuto, false
	}
}

// VoiceProfile describes a synthesizer voice for one speaker.
type VoiceProfile struct {
	Name           string  `json:"name"           toml:"name"`
	Language       string  `json:"language"       toml:"language"`
	Gender         Gender  `json:"gender"         toml:"gender"`
	SpeakingRate   float64 `json:"speaking_rate"  toml:"speaking_rate"`
	PitchSemitones float64 `json:"pitch"          toml:"pitch"`
}

// PlanKind classifies an AudioSegmentPlan item.
type PlanKind string

const (
	PlanSpeech     PlanKind = "speech"
	PlanPause      PlanKind = "pause"
	PlanTransition PlanKind = "transition"
)

// PlanItem is an ephemeral unit produced by flattening a Script before synthesis.
type PlanItem struct {
	Kind          PlanKind
	Speaker       string
	AnnotatedText string
	SectionTitle  string
	Duration      time.Duration
}
