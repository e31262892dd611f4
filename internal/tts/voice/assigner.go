// Package voice binds script speakers to synthesizer voice profiles.
package voice

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	baselineSpeakingRate = 1.0
	rateSpread           = 0.1
	pitchSpread          = 1.0
	roundingFactor       = 100
	uint32Range          = 1 << 32
	languageParts        = 2
	defaultLanguage      = "en-US"
)

// premiumVoices lists synthesizer voices per gender, best first.
var premiumVoices = map[core.Gender][]string{
	core.GenderMale: {
		"en-US-Neural2-D",
		"en-US-Neural2-J",
		"en-US-Studio-O",
		"en-GB-Neural2-B",
		"en-AU-Neural2-B",
	},
	core.GenderFemale: {
		"en-US-Neural2-F",
		"en-US-Neural2-G",
		"en-US-Neural2-E",
		"en-US-Neural2-C",
		"en-GB-Neural2-A",
		"en-AU-Neural2-A",
	},
	core.GenderNeutral: {
		"en-US-Neural2-A",
		"en-US-Neural2-C",
	},
}

// knownSpeakerGenders resolves host names in auto mode.
var knownSpeakerGenders = map[string]core.Gender{
	"alex":    core.GenderMale,
	"jordan":  core.GenderMale,
	"michael": core.GenderMale,
	"david":   core.GenderMale,
	"james":   core.GenderMale,
	"alice":   core.GenderFemale,
	"emma":    core.GenderFemale,
	"olivia":  core.GenderFemale,
	"sarah":   core.GenderFemale,
	"emily":   core.GenderFemale,
}

// Assigner computes one VoiceProfile per distinct speaker.
type Assigner struct {
	overrides map[string]core.VoiceProfile
}

// NewAssigner creates an Assigner. Profiles in overrides, keyed by speaker,
// replace the computed profile for that speaker.
func NewAssigner(overrides map[string]core.VoiceProfile) *Assigner {
	normalized := make(map[string]core.VoiceProfile, len(overrides))
	for speaker, profile := range overrides {
		normalized[core.NormalizeSpeaker(speaker)] = profile
	}

	return &Assigner{overrides: normalized}
}

// Assign returns the voice binding for every speaker. Speaker ids are
// normalised and deduplicated in first-appearance order; the result is fully
// determined by the speaker list and the preference. A blank speaker is bound
// under the empty id like any other unknown speaker.
func (a *Assigner) Assign(speakers []string, pref core.VoicePreference) map[string]core.VoiceProfile {
	ordered := lo.Uniq(lo.Map(speakers, func(speaker string, _ int) string {
		return core.NormalizeSpeaker(speaker)
	}))

	genders := resolveGenders(ordered, pref)
	nextSlot := make(map[core.Gender]int, len(premiumVoices))
	bindings := make(map[string]core.VoiceProfile, len(ordered))

	for index, speaker := range ordered {
		gender := genders[index]
		ranked := premiumVoices[gender]
		name := ranked[nextSlot[gender]%len(ranked)]
		nextSlot[gender]++

		rate, pitch := perturbation(speaker, index)

		profile := core.VoiceProfile{
			Name:           name,
			Language:       languageOf(name),
			Gender:         gender,
			SpeakingRate:   rate,
			PitchSemitones: pitch,
		}

		if override, ok := a.overrides[speaker]; ok {
			profile = mergeOverride(profile, override)
		}

		bindings[speaker] = profile
	}

	return bindings
}

func resolveGenders(speakers []string, pref core.VoicePreference) []core.Gender {
	genders := make([]core.Gender, 0, len(speakers))

	switch pref {
	case core.VoicePreferenceMale:
		return lo.Map(speakers, func(string, int) core.Gender { return core.GenderMale })
	case core.VoicePreferenceFemale:
		return lo.Map(speakers, func(string, int) core.Gender { return core.GenderFemale })
	case core.VoicePreferenceMixed:
		return lo.Map(speakers, func(_ string, index int) core.Gender { return alternate(index) })
	case core.VoicePreferenceAuto:
	}

	for _, speaker := range speakers {
		if gender, ok := knownSpeakerGenders[speaker]; ok {
			genders = append(genders, gender)

			continue
		}

		if len(genders) == 0 {
			genders = append(genders, core.GenderMale)

			continue
		}

		genders = append(genders, opposite(genders[len(genders)-1]))
	}

	return genders
}

func alternate(index int) core.Gender {
	if index%2 == 0 {
		return core.GenderMale
	}

	return core.GenderFemale
}

func opposite(gender core.Gender) core.Gender {
	if gender == core.GenderMale {
		return core.GenderFemale
	}

	return core.GenderMale
}

// perturbation derives a small, reproducible rate and pitch offset from the
// speaker id and its discovery index. The first speaker stays at baseline.
func perturbation(speaker string, index int) (float64, float64) {
	if index == 0 {
		return baselineSpeakingRate, 0
	}

	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(speaker + "|" + strconv.Itoa(index)))

	sum := hasher.Sum(nil)
	low := binary.BigEndian.Uint32(sum[4:])
	high := binary.BigEndian.Uint32(sum[:4])

	rate := baselineSpeakingRate + rateSpread*unitSpread(low)
	pitch := pitchSpread * unitSpread(high)

	return round2(rate), round2(pitch)
}

// unitSpread maps a uint32 onto [-1, 1).
func unitSpread(value uint32) float64 {
	return float64(value)/uint32Range*2 - 1
}

func round2(value float64) float64 {
	return math.Round(value*roundingFactor) / roundingFactor
}

func languageOf(voiceName string) string {
	parts := strings.SplitN(voiceName, "-", languageParts+1)
	if len(parts) <= languageParts {
		return defaultLanguage
	}

	return strings.Join(parts[:languageParts], "-")
}

func mergeOverride(computed, override core.VoiceProfile) core.VoiceProfile {
	if override.Name != "" {
		computed.Name = override.Name
		computed.Language = languageOf(override.Name)
	}

	if override.Language != "" {
		computed.Language = override.Language
	}

	if override.Gender != "" {
		computed.Gender = override.Gender
	}

	if override.SpeakingRate > 0 {
		computed.SpeakingRate = override.SpeakingRate
	}

	if override.PitchSemitones != 0 {
		computed.PitchSemitones = override.PitchSemitones
	}

	return computed
}
