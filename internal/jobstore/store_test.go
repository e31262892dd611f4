package jobstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobstore"
)

func openTestStore(t *testing.T) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(filepath.Join(t.TempDir(), "db", "podcasts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func sampleRequest() core.GenerationRequest {
	return core.GenerationRequest{
		Criteria: &core.SearchCriteria{
			SortBy:     core.SortSubmittedDate,
			Topics:     []string{"diffusion models"},
			Categories: []string{"cs.LG"},
			Authors:    nil,
			MaxResults: 5,
			DaysBack:   7,
		},
		Title:               "Weekly ML",
		TechnicalLevel:      "intermediate",
		VoicePreference:     core.VoicePreferenceMixed,
		PaperIDs:            nil,
		TargetLengthMinutes: 10,
	}
}

func createScriptJob(t *testing.T, store *jobstore.Store) (*core.Artifact, *core.Job) {
	t.Helper()

	ctx := context.Background()

	artifact, err := store.CreateArtifact(ctx, sampleRequest())
	require.NoError(t, err)

	job, err := store.CreateJob(ctx, artifact.ID, core.JobKindScript)
	require.NoError(t, err)

	return artifact, job
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "podcasts.db")

	store, err := jobstore.Open(path)
	require.NoError(t, err)

	artifact, err := store.CreateArtifact(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := jobstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	fetched, err := reopened.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactPending, fetched.Status)
	assert.Equal(t, "Weekly ML", fetched.Request.Title)
	require.NotNil(t, fetched.Request.Criteria)
	assert.Equal(t, []string{"diffusion models"}, fetched.Request.Criteria.Topics)
}

func TestCreateJob_StartsQueued(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	artifact, job := createScriptJob(t, store)

	fetched, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobQueued, fetched.State)
	assert.Equal(t, core.JobKindScript, fetched.Kind)
	assert.Equal(t, artifact.ID, fetched.ArtifactID)
	assert.Zero(t, fetched.ProgressPercent)
	assert.Nil(t, fetched.StartedAt)
	assert.Nil(t, fetched.CompletedAt)
}

func TestGet_UnknownIDsAreNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.GetArtifact(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.ClaimJob(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClaimJob_OnlyOneConcurrentClaimWins(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, job := createScriptJob(t, store)

	const claimants = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for range claimants {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := store.ClaimJob(context.Background(), job.ID)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()

				return
			}

			assert.ErrorIs(t, err, jobstore.ErrStateConflict)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, winners)

	claimed, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobRunning, claimed.State)
	assert.NotNil(t, claimed.StartedAt)
}

func TestUpdateProgress_OnlyWhileRunning(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	_, job := createScriptJob(t, store)

	err := store.UpdateProgress(ctx, job.ID, 10)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	_, err = store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, store.UpdateProgress(ctx, job.ID, 30))

	fetched, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, fetched.ProgressPercent)

	require.NoError(t, store.UpdateProgress(ctx, job.ID, 250))

	fetched, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, fetched.ProgressPercent)
}

func TestTerminalStatesAreNeverOverwritten(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	_, job := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(ctx, job.ID))

	changed, err := store.FailJob(ctx, job.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.CancelJob(ctx, job.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	_, err = store.ClaimJob(ctx, job.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	err = store.UpdateProgress(ctx, job.ID, 50)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	fetched, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, fetched.State)
	assert.Equal(t, 100, fetched.ProgressPercent)
	assert.Empty(t, fetched.ErrorMessage)
	assert.NotNil(t, fetched.CompletedAt)
}

func TestFailJob_RecordsMessage(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	_, job := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	changed, err := store.FailJob(ctx, job.ID, "no papers found")
	require.NoError(t, err)
	assert.True(t, changed)

	fetched, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, fetched.State)
	assert.Equal(t, "no papers found", fetched.ErrorMessage)

	err = store.CompleteJob(ctx, job.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)
}

func TestCompleteScriptJob_CreatesChildExactlyOnce(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	artifact, job := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	child, err := store.CompleteScriptJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobKindAudio, child.Kind)
	assert.Equal(t, core.JobQueued, child.State)
	assert.Equal(t, artifact.ID, child.ArtifactID)
	assert.Equal(t, job.ID, child.ParentJobID)

	again, err := store.CompleteScriptJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, child.ID, again.ID)

	jobs, err := store.ListJobs(ctx, jobstore.ListFilter{ArtifactID: artifact.ID, States: nil, Limit: 0})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	parent, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, parent.State)
	assert.Equal(t, 100, parent.ProgressPercent)

	found, err := store.ChildJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, child.ID, found.ID)
}

func TestCompleteScriptJob_RequiresRunningScriptJob(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	artifact, job := createScriptJob(t, store)

	_, err := store.CompleteScriptJob(ctx, job.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	audio, err := store.CreateJob(ctx, artifact.ID, core.JobKindAudio)
	require.NoError(t, err)

	_, err = store.ClaimJob(ctx, audio.ID)
	require.NoError(t, err)

	_, err = store.CompleteScriptJob(ctx, audio.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	_, err = store.ChildJob(ctx, job.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCancelJob_MarksJobAndArtifact(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	artifact, job := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	cancelled, err := store.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, cancelled.State)
	assert.Equal(t, jobstore.CancelledByUserMessage, cancelled.ErrorMessage)

	isCancelled, err := store.IsCancelled(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, isCancelled)

	fetched, err := store.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactCancelled, fetched.Status)
	assert.Equal(t, jobstore.CancelledByUserMessage, fetched.ErrorMessage)

	err = store.CompleteJob(ctx, job.ID)
	require.ErrorIs(t, err, jobstore.ErrStateConflict)
}

func TestSaveScriptAndAudio_RoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	artifact, err := store.CreateArtifact(ctx, sampleRequest())
	require.NoError(t, err)
	require.NoError(t, store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactProcessing, ""))

	script := &core.Script{
		Title: "Weekly ML",
		Sections: []core.Section{{
			Title:    "INTRODUCTION",
			Segments: []core.Segment{{Speaker: "ALEX", Text: "Welcome back."}},
		}},
	}
	paperIDs := []string{"2401.00001", "2401.00002"}

	require.NoError(t, store.SaveScript(ctx, artifact.ID, script, paperIDs))
	require.NoError(t, store.SaveAudio(ctx, artifact.ID, jobstore.AudioRecord{
		Ref:             "nats://podcasts/podcasts/a/episode.wav",
		Format:          "wav",
		SizeBytes:       4096,
		DurationSeconds: 12.5,
	}))

	fetched, err := store.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactProcessing, fetched.Status)
	assert.Equal(t, script, fetched.Script)
	assert.Equal(t, paperIDs, fetched.PaperIDs)
	assert.Equal(t, "nats://podcasts/podcasts/a/episode.wav", fetched.AudioRef)
	assert.Equal(t, "wav", fetched.AudioFormat)
	assert.Equal(t, int64(4096), fetched.AudioSizeBytes)
	assert.InDelta(t, 12.5, fetched.AudioDurationSeconds, 1e-9)
	assert.Nil(t, fetched.CompletedAt)

	err = store.SaveScript(ctx, "missing", script, paperIDs)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCancelledArtifact_RejectsLaterWrites(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	artifact, job := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	_, err = store.CancelJob(ctx, job.ID)
	require.NoError(t, err)

	err = store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactProcessing, "")
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	err = store.SaveScript(ctx, artifact.ID, &core.Script{Title: "Late", Sections: nil}, []string{"2401.00001"})
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	err = store.SaveAudio(ctx, artifact.ID, jobstore.AudioRecord{Ref: "mem://late", Format: "wav", SizeBytes: 1, DurationSeconds: 1})
	require.ErrorIs(t, err, jobstore.ErrStateConflict)

	fetched, err := store.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactCancelled, fetched.Status)
	assert.Equal(t, jobstore.CancelledByUserMessage, fetched.ErrorMessage)
	assert.Nil(t, fetched.Script)
	assert.Empty(t, fetched.AudioRef)
}

func TestSetArtifactStatus_LastWriterWins(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	artifact, err := store.CreateArtifact(ctx, sampleRequest())
	require.NoError(t, err)

	require.NoError(t, store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactProcessing, ""))
	require.NoError(t, store.SetArtifactStatus(ctx, artifact.ID, core.ArtifactFailed, "render failed"))

	fetched, err := store.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactFailed, fetched.Status)
	assert.Equal(t, "render failed", fetched.ErrorMessage)
	assert.NotNil(t, fetched.CompletedAt)

	err = store.SetArtifactStatus(ctx, "missing", core.ArtifactFailed, "x")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestListJobs_FiltersByStateNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.WithClock(func() time.Time {
		tick++

		return base.Add(time.Duration(tick) * time.Second)
	})

	_, first := createScriptJob(t, store)
	_, second := createScriptJob(t, store)
	_, third := createScriptJob(t, store)

	_, err := store.ClaimJob(ctx, second.ID)
	require.NoError(t, err)

	all, err := store.ListJobs(ctx, jobstore.ListFilter{ArtifactID: "", States: nil, Limit: 0})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	queued, err := store.ListJobs(ctx, jobstore.ListFilter{
		ArtifactID: "",
		States:     []core.JobState{core.JobQueued},
		Limit:      0,
	})
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, third.ID, queued[0].ID)
	assert.Equal(t, first.ID, queued[1].ID)

	limited, err := store.ListJobs(ctx, jobstore.ListFilter{ArtifactID: "", States: nil, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
