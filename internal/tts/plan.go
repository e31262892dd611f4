package tts

import (
	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/book-expert/podcast-service/internal/tts/text"
)

// BuildPlan flattens script into speech, pause and transition items.
//
// Every spoken segment is followed by a pause. A section after the first
// opens with a transition that takes the place of the preceding pause, so a
// pause is never directly followed by a transition. Segments with nothing
// speakable after sanitising are dropped together with their pause, and a
// section that contributes no speech contributes no transition either.
func BuildPlan(script *core.Script, sanitizer *text.Sanitizer, settings audio.MixSettings) []core.PlanItem {
	if script == nil {
		return nil
	}

	plan := make([]core.PlanItem, 0, script.SegmentCount()*2)

	for sectionIndex, section := range script.Sections {
		transitionPending := sectionIndex > 0

		for _, segment := range section.Segments {
			annotated, ok := sanitizer.Annotate(segment.Text, segment.Speaker)
			if !ok {
				continue
			}

			if transitionPending && len(plan) > 0 {
				plan = appendTransition(plan, section.Title, settings)
			}

			transitionPending = false

			plan = append(plan,
				core.PlanItem{
					Kind:          core.PlanSpeech,
					Speaker:       core.NormalizeSpeaker(segment.Speaker),
					AnnotatedText: annotated,
					SectionTitle:  section.Title,
					Duration:      0,
				},
				core.PlanItem{
					Kind:          core.PlanPause,
					Speaker:       "",
					AnnotatedText: "",
					SectionTitle:  section.Title,
					Duration:      settings.PauseDuration,
				},
			)
		}
	}

	return plan
}

func appendTransition(plan []core.PlanItem, sectionTitle string, settings audio.MixSettings) []core.PlanItem {
	if last := len(plan) - 1; plan[last].Kind == core.PlanPause {
		plan = plan[:last]
	}

	return append(plan, core.PlanItem{
		Kind:          core.PlanTransition,
		Speaker:       "",
		AnnotatedText: "",
		SectionTitle:  sectionTitle,
		Duration:      settings.TransitionDuration + settings.TransitionSilence,
	})
}

// planSpeakers returns the distinct speakers of speech items in plan order.
func planSpeakers(plan []core.PlanItem) []string {
	speech := lo.Filter(plan, func(item core.PlanItem, _ int) bool {
		return item.Kind == core.PlanSpeech
	})

	return lo.Uniq(lo.Map(speech, func(item core.PlanItem, _ int) string {
		return item.Speaker
	}))
}

func countSpeech(plan []core.PlanItem) int {
	return lo.CountBy(plan, func(item core.PlanItem) bool {
		return item.Kind == core.PlanSpeech
	})
}
