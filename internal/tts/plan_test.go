package tts_test

import (
	"testing"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/book-expert/podcast-service/internal/tts/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planKinds(plan []core.PlanItem) []core.PlanKind {
	kinds := make([]core.PlanKind, 0, len(plan))
	for _, item := range plan {
		kinds = append(kinds, item.Kind)
	}

	return kinds
}

func buildPlan(script *core.Script) []core.PlanItem {
	return tts.BuildPlan(script, text.NewSanitizer(), audio.NewDefaultMixSettings())
}

func TestBuildPlan_DropsEmptySegmentsInFirstSection(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{{
			Title: "A",
			Segments: []core.Segment{
				{Speaker: "x", Text: "Hello."},
				{Speaker: "y", Text: ""},
			},
		}},
	}

	plan := buildPlan(script)

	require.Equal(t, []core.PlanKind{core.PlanSpeech, core.PlanPause}, planKinds(plan))
	assert.Equal(t, "x", plan[0].Speaker)
	assert.Equal(t, "<speak>Hello.</speak>", plan[0].AnnotatedText)
	assert.Equal(t, audio.DEFAULT_PAUSE, plan[1].Duration)
}

func TestBuildPlan_DropsTagOnlySSMLSegments(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{{
			Title: "A",
			Segments: []core.Segment{
				{Speaker: "x", Text: "<speak>  </speak>"},
				{Speaker: "y", Text: "<speak>Kept.</speak>"},
			},
		}},
	}

	plan := buildPlan(script)

	require.Equal(t, []core.PlanKind{core.PlanSpeech, core.PlanPause}, planKinds(plan))
	assert.Equal(t, "y", plan[0].Speaker)
	assert.Equal(t, "<speak>Kept.</speak>", plan[0].AnnotatedText)
}

func TestBuildPlan_TransitionReplacesSectionBoundaryPause(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{
			{Title: "A", Segments: []core.Segment{{Speaker: "Alex", Text: "First."}}},
			{Title: "B", Segments: []core.Segment{{Speaker: "Jordan", Text: "Second."}}},
		},
	}

	plan := buildPlan(script)

	require.Equal(t, []core.PlanKind{
		core.PlanSpeech,
		core.PlanTransition,
		core.PlanSpeech,
		core.PlanPause,
	}, planKinds(plan))
	assert.Equal(t, "B", plan[1].SectionTitle)
	assert.Equal(t, audio.DEFAULT_TRANSITION+audio.DEFAULT_TRANSITION_SILENCE, plan[1].Duration)
	assert.Equal(t, "jordan", plan[2].Speaker)

	for i := 1; i < len(plan); i++ {
		assert.False(t, plan[i-1].Kind == core.PlanPause && plan[i].Kind == core.PlanTransition)
	}
}

func TestBuildPlan_SilentSectionContributesNothing(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{
			{Title: "A", Segments: []core.Segment{{Speaker: "alex", Text: "One."}}},
			{Title: "B", Segments: []core.Segment{{Speaker: "alex", Text: "[laughs]"}, {Speaker: "jordan", Text: "   "}}},
			{Title: "C", Segments: []core.Segment{{Speaker: "jordan", Text: "Two."}, {Speaker: "alex", Text: "Three."}}},
		},
	}

	plan := buildPlan(script)

	assert.Equal(t, []core.PlanKind{
		core.PlanSpeech,
		core.PlanTransition,
		core.PlanSpeech,
		core.PlanPause,
		core.PlanSpeech,
		core.PlanPause,
	}, planKinds(plan))
	assert.Equal(t, "C", plan[1].SectionTitle)
}

func TestBuildPlan_LeadingEmptySectionHasNoTransition(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{
			{Title: "Empty", Segments: nil},
			{Title: "B", Segments: []core.Segment{{Speaker: "alex", Text: "Hi."}}},
		},
	}

	assert.Equal(t, []core.PlanKind{core.PlanSpeech, core.PlanPause}, planKinds(buildPlan(script)))
}

func TestBuildPlan_NilAndEmptyScripts(t *testing.T) {
	t.Parallel()

	assert.Empty(t, buildPlan(nil))
	assert.Empty(t, buildPlan(&core.Script{Title: "T", Sections: nil}))
}

func TestBuildPlan_IsDeterministic(t *testing.T) {
	t.Parallel()

	script := &core.Script{
		Title: "T",
		Sections: []core.Section{
			{Title: "A", Segments: []core.Segment{{Speaker: "alex", Text: "In 2023, the API scored 0.95."}}},
			{Title: "B", Segments: []core.Segment{{Speaker: "jordan", Text: "Finally, we conclude."}}},
		},
	}

	assert.Equal(t, buildPlan(script), buildPlan(script))
}
