package jobs

import (
	"context"
	"fmt"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/tts/ttsutils"
)

// Audio job progress checkpoints.
const (
	audioProgressStarted  = 10
	audioProgressRendered = 60
	audioProgressStored   = 80
)

func (r *Runner) audioBody(ctx context.Context, job *core.Job) error {
	artifact, err := r.store.GetArtifact(ctx, job.ArtifactID)
	if err != nil {
		return err
	}

	if artifact.Script == nil || artifact.Script.SegmentCount() == 0 {
		return fmt.Errorf("%w: %s", ErrMissingScript, artifact.ID)
	}

	err = r.progress(ctx, job, audioProgressStarted)
	if err != nil {
		return err
	}

	pref := artifact.Request.VoicePreference
	if pref == "" {
		pref = r.opts.DefaultVoice
	}

	result, err := r.renderer.Render(ctx, artifact.Script, pref, func(ctx context.Context) (bool, error) {
		return r.store.IsCancelled(ctx, job.ID)
	})
	if err != nil {
		return err
	}

	if result.SegmentsSkipped > 0 {
		r.log.Warn("Artifact %s rendered with %d of %d segments skipped",
			artifact.ID, result.SegmentsSkipped, result.SegmentsTotal)
	}

	err = r.progress(ctx, job, audioProgressRendered)
	if err != nil {
		return err
	}

	title := artifact.Script.Title
	key := ttsutils.EpisodeObjectKey(artifact.ID, title, string(result.Format), r.now())

	ref, err := r.blobs.Put(ctx, result.Audio, key)
	if err != nil {
		return fmt.Errorf("store episode audio: %w", err)
	}

	err = r.progress(ctx, job, audioProgressStored)
	if err != nil {
		return err
	}

	err = r.store.SaveAudio(ctx, artifact.ID, jobstore.AudioRecord{
		Ref:             ref,
		Format:          string(result.Format),
		SizeBytes:       int64(len(result.Audio)),
		DurationSeconds: result.Duration.Seconds(),
	})
	if err != nil {
		return err
	}

	err = r.store.CompleteJob(ctx, job.ID)
	if err != nil {
		return err
	}

	err = r.store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactCompleted, "")
	if err != nil {
		return err
	}

	r.log.Info("Artifact %s completed: %s (%s, %s)", artifact.ID, ref,
		ttsutils.FormatDuration(result.Duration),
		ttsutils.FormatFileSize(int64(len(result.Audio))))

	return nil
}
