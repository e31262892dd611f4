// Package composer turns research papers into a two-host dialogue Script by
// prompting a text generator and parsing its speaker-tagged reply.
package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/retry"
)

const (
	maxPapersPerEpisode   = 5
	defaultTechnicalLevel = "intermediate"
	defaultTargetMinutes  = 15
)

// Error message formats.
const (
	errFmtNoPapers   = "%w: no papers to discuss"
	errFmtGenerate   = "%w: %w"
	errFmtNoSections = "%w: reply contained no speaker-tagged sections"
)

// Composer implements core.ScriptComposer.
type Composer struct {
	generator TextGenerator
	log       *logger.Logger
	policy    retry.Policy
}

// New creates a Composer that calls generator under policy.
func New(generator TextGenerator, policy retry.Policy, log *logger.Logger) *Composer {
	return &Composer{
		generator: generator,
		log:       log,
		policy: policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			log.Warn("Script generation retry %d in %s: %v", attempt, delay, err)
		}),
	}
}

// Compose builds the prompt for req, generates the dialogue and parses it.
// Every failure wraps core.ErrComposeFailed.
func (c *Composer) Compose(ctx context.Context, req core.ComposeRequest) (*core.Script, error) {
	papers := req.Papers
	if len(papers) == 0 {
		return nil, fmt.Errorf(errFmtNoPapers, core.ErrComposeFailed)
	}

	if len(papers) > maxPapersPerEpisode {
		c.log.Warn("Limiting episode to %d of %d papers", maxPapersPerEpisode, len(papers))
		papers = papers[:maxPapersPerEpisode]
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle(papers)
	}

	technicalLevel := req.TechnicalLevel
	if technicalLevel == "" {
		technicalLevel = defaultTechnicalLevel
	}

	targetMinutes := req.TargetLengthMinutes
	if targetMinutes <= 0 {
		targetMinutes = defaultTargetMinutes
	}

	prompt := buildPrompt(title, technicalLevel, targetMinutes, digestPapers(papers))

	reply, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtGenerate, core.ErrComposeFailed, err)
	}

	script := ParseScript(reply, title)
	if len(script.Sections) == 0 {
		return nil, fmt.Errorf(errFmtNoSections, core.ErrComposeFailed)
	}

	c.log.Info("Composed '%s': %d sections, %d segments", title, len(script.Sections), script.SegmentCount())

	return script, nil
}
