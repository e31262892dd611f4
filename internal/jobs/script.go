package jobs

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/retry"
)

// Script job progress checkpoints.
const (
	scriptProgressStarted  = 10
	scriptProgressFetched  = 30
	scriptProgressComposed = 70
)

func (r *Runner) scriptBody(ctx context.Context, job *core.Job) error {
	artifact, err := r.store.GetArtifact(ctx, job.ArtifactID)
	if err != nil {
		return err
	}

	err = r.store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactProcessing, "")
	if err != nil {
		return err
	}

	err = r.progress(ctx, job, scriptProgressStarted)
	if err != nil {
		return err
	}

	papers, err := r.fetchPapers(ctx, artifact.Request)
	if err != nil {
		return err
	}

	if len(papers) == 0 {
		return ErrNoPapers
	}

	r.log.Info("Fetched %d papers for artifact %s", len(papers), artifact.ID)

	err = r.progress(ctx, job, scriptProgressFetched)
	if err != nil {
		return err
	}

	script, err := r.composer.Compose(ctx, core.ComposeRequest{
		Title:               artifact.Request.Title,
		TechnicalLevel:      artifact.Request.TechnicalLevel,
		Papers:              papers,
		TargetLengthMinutes: artifact.Request.TargetLengthMinutes,
	})
	if err != nil {
		return err
	}

	err = r.progress(ctx, job, scriptProgressComposed)
	if err != nil {
		return err
	}

	paperIDs := lo.Map(papers, func(paper core.Paper, _ int) string { return paper.ID })

	err = r.store.SaveScript(ctx, artifact.ID, script, paperIDs)
	if err != nil {
		return err
	}

	child, err := r.store.CompleteScriptJob(ctx, job.ID)
	if err != nil {
		return err
	}

	r.log.Info("Script for artifact %s has %d sections; audio job %s queued",
		artifact.ID, len(script.Sections), child.ID)

	// The script job is already completed here. A dispatch failure leaves the
	// child queued for Requeue instead of failing the artifact.
	err = r.enqueue(ctx, child)
	if err != nil {
		r.log.Error("Audio job %s stays queued: %v", child.ID, err)
	}

	return nil
}

// fetchPapers resolves the request into paper records. Explicit ids are
// fetched one by one and an id that cannot be fetched is skipped.
func (r *Runner) fetchPapers(ctx context.Context, request core.GenerationRequest) ([]core.Paper, error) {
	if len(request.PaperIDs) > 0 {
		return r.fetchByIDs(ctx, request.PaperIDs)
	}

	if request.Criteria.IsEmpty() {
		return nil, fmt.Errorf("%w: search criteria or paper ids are required", ErrInvalidRequest)
	}

	criteria := *request.Criteria
	if criteria.MaxResults <= 0 || criteria.MaxResults > r.opts.MaxPreferencePapers {
		criteria.MaxResults = r.opts.MaxPreferencePapers
	}

	type searchResult struct {
		papers []core.Paper
		total  int
	}

	result, err := retry.Do(ctx, r.paperPolicy, func(ctx context.Context) (searchResult, error) {
		papers, total, searchErr := r.papers.Search(ctx, criteria)

		return searchResult{papers: papers, total: total}, searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}

	r.log.Info("Paper search matched %d of %d total", len(result.papers), result.total)

	return result.papers, nil
}

func (r *Runner) fetchByIDs(ctx context.Context, ids []string) ([]core.Paper, error) {
	papers := make([]core.Paper, 0, len(ids))

	for _, id := range lo.Uniq(ids) {
		paper, err := retry.Do(ctx, r.paperPolicy, func(ctx context.Context) (*core.Paper, error) {
			return r.papers.FetchByID(ctx, id)
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err != nil {
			r.log.Warn("Skipping paper %s: %v", id, err)

			continue
		}

		papers = append(papers, *paper)
	}

	return papers, nil
}
