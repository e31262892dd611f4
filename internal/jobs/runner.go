// Package jobs runs the two generation job kinds against the job store.
//
// Every job goes through the same boundary: claim, run the body, commit a
// terminal state. Errors and panics from a body stop at the boundary and are
// persisted on the job and its artifact instead of being returned, unless
// Options.PropagateFailures is set.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/retry"
	"github.com/book-expert/podcast-service/internal/tts"
)

const (
	defaultMaxPreferencePapers = 5
	papersCallSite             = "papers"

	errFmtBody = "%s job %s: %w"
)

var (
	// ErrInvalidRequest is returned by Submit for requests with neither
	// search criteria nor paper ids.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrNoPapers is the terminal script job failure when no paper could be fetched.
	ErrNoPapers = errors.New("no papers found")
	// ErrMissingScript is the terminal audio job failure when the artifact has no script.
	ErrMissingScript = errors.New("artifact has no script")
	// ErrUnknownJobKind is returned by Run for jobs of an unrecognised kind.
	ErrUnknownJobKind = errors.New("unknown job kind")
	// ErrJobPanicked wraps a panic recovered from a job body.
	ErrJobPanicked = errors.New("job panicked")
)

// Store is the persistence the runner needs.
type Store interface {
	CreateArtifact(ctx context.Context, request core.GenerationRequest) (*core.Artifact, error)
	GetArtifact(ctx context.Context, id string) (*core.Artifact, error)
	SaveScript(ctx context.Context, id string, script *core.Script, paperIDs []string) error
	SaveAudio(ctx context.Context, id string, record jobstore.AudioRecord) error
	SetArtifactStatus(ctx context.Context, id string, status core.ArtifactStatus, message string) error
	CreateJob(ctx context.Context, artifactID string, kind core.JobKind) (*core.Job, error)
	GetJob(ctx context.Context, id string) (*core.Job, error)
	ListJobs(ctx context.Context, filter jobstore.ListFilter) ([]*core.Job, error)
	ClaimJob(ctx context.Context, id string) (*core.Job, error)
	UpdateProgress(ctx context.Context, id string, percent int) error
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id, message string) (bool, error)
	CompleteScriptJob(ctx context.Context, id string) (*core.Job, error)
	CancelJob(ctx context.Context, id string) (*core.Job, error)
	IsCancelled(ctx context.Context, id string) (bool, error)
}

// Renderer turns a script into encoded episode audio.
type Renderer interface {
	Render(
		ctx context.Context,
		script *core.Script,
		pref core.VoicePreference,
		cancelled tts.CancelCheck,
	) (*tts.RenderResult, error)
}

// Enqueuer hands a queued job to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *core.Job) error
}

// Dependencies are the collaborators a Runner is built from. Enqueuer and
// Metrics may be nil.
type Dependencies struct {
	Store       Store
	Papers      core.PaperSource
	Composer    core.ScriptComposer
	Renderer    Renderer
	Blobs       core.BlobStore
	Enqueuer    Enqueuer
	PaperPolicy retry.Policy
	Metrics     *metrics.Collectors
	Log         *logger.Logger
}

// Options tune runner behaviour.
type Options struct {
	DefaultVoice        core.VoicePreference
	MaxPreferencePapers int
	PropagateFailures   bool
}

// Runner executes script and audio jobs.
type Runner struct {
	store       Store
	papers      core.PaperSource
	composer    core.ScriptComposer
	renderer    Renderer
	blobs       core.BlobStore
	enqueuer    Enqueuer
	metrics     *metrics.Collectors
	log         *logger.Logger
	now         func() time.Time
	paperPolicy retry.Policy
	opts        Options
}

type jobBody func(ctx context.Context, job *core.Job) error

// NewRunner creates a Runner.
func NewRunner(deps Dependencies, opts Options) *Runner {
	if opts.MaxPreferencePapers <= 0 {
		opts.MaxPreferencePapers = defaultMaxPreferencePapers
	}

	if opts.DefaultVoice == "" {
		opts.DefaultVoice = core.VoicePreferenceAuto
	}

	runner := &Runner{
		store:       deps.Store,
		papers:      deps.Papers,
		composer:    deps.Composer,
		renderer:    deps.Renderer,
		blobs:       deps.Blobs,
		enqueuer:    deps.Enqueuer,
		metrics:     deps.Metrics,
		log:         deps.Log,
		now:         time.Now,
		paperPolicy: deps.PaperPolicy,
		opts:        opts,
	}

	runner.paperPolicy = runner.paperPolicy.WithOnRetry(func(attempt int, delay time.Duration, cause error) {
		deps.Log.Warn("Paper fetch retry %d in %s: %v", attempt, delay, cause)
		deps.Metrics.RetryAttempted(papersCallSite)
	})

	return runner
}

// WithClock replaces the time source used for blob keys.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now

	return r
}

// Submit records a new artifact with a queued script job and enqueues it.
func (r *Runner) Submit(ctx context.Context, request core.GenerationRequest) (*core.Job, error) {
	if request.Criteria.IsEmpty() && len(request.PaperIDs) == 0 {
		return nil, fmt.Errorf("%w: search criteria or paper ids are required", ErrInvalidRequest)
	}

	if request.VoicePreference == "" {
		request.VoicePreference = r.opts.DefaultVoice
	}

	artifact, err := r.store.CreateArtifact(ctx, request)
	if err != nil {
		return nil, err
	}

	job, err := r.store.CreateJob(ctx, artifact.ID, core.JobKindScript)
	if err != nil {
		return nil, err
	}

	r.log.Info("Submitted script job %s for artifact %s", job.ID, artifact.ID)

	err = r.enqueue(ctx, job)
	if err != nil {
		return job, err
	}

	return job, nil
}

// Requeue enqueues every job still in the queued state, for recovery after a
// dispatch failure or restart. It returns the number of jobs enqueued.
func (r *Runner) Requeue(ctx context.Context) (int, error) {
	queued, err := r.store.ListJobs(ctx, jobstore.ListFilter{
		ArtifactID: "",
		States:     []core.JobState{core.JobQueued},
		Limit:      0,
	})
	if err != nil {
		return 0, err
	}

	count := 0

	for _, job := range queued {
		err = r.enqueue(ctx, job)
		if err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}

// Cancel cancels a queued or running job and its artifact.
func (r *Runner) Cancel(ctx context.Context, jobID string) (*core.Job, error) {
	job, err := r.store.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	r.log.Info("Cancelled %s job %s", job.Kind, job.ID)

	return job, nil
}

// Run executes jobID with the body for its kind.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Kind {
	case core.JobKindScript:
		return r.RunScriptJob(ctx, jobID)
	case core.JobKindAudio:
		return r.RunAudioJob(ctx, jobID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

// RunScriptJob fetches papers, composes the script and hands off to a child
// audio job.
func (r *Runner) RunScriptJob(ctx context.Context, jobID string) error {
	return r.runJob(ctx, jobID, core.JobKindScript, r.scriptBody)
}

// RunAudioJob renders the artifact's script and stores the episode.
func (r *Runner) RunAudioJob(ctx context.Context, jobID string) error {
	return r.runJob(ctx, jobID, core.JobKindAudio, r.audioBody)
}

func (r *Runner) runJob(ctx context.Context, jobID string, kind core.JobKind, body jobBody) error {
	job, err := r.store.ClaimJob(ctx, jobID)
	if errors.Is(err, jobstore.ErrStateConflict) {
		r.log.Warn("Skipping %s job %s: %v", kind, jobID, err)

		return nil
	}

	if err != nil {
		return fmt.Errorf("claim %s job %s: %w", kind, jobID, err)
	}

	r.metrics.JobStarted(string(job.Kind))
	r.log.Info("Started %s job %s for artifact %s", job.Kind, job.ID, job.ArtifactID)

	if job.Kind != kind {
		err = fmt.Errorf("%w: job %s is %s, expected %s", ErrUnknownJobKind, job.ID, job.Kind, kind)

		return r.handleFailure(ctx, job, err)
	}

	err = r.execute(ctx, job, body)
	if err == nil {
		r.metrics.JobFinished(string(kind), string(core.JobCompleted))
		r.log.Info("Completed %s job %s", kind, job.ID)

		return nil
	}

	return r.handleFailure(ctx, job, fmt.Errorf(errFmtBody, kind, job.ID, err))
}

// execute runs body, converting a panic into an error.
func (r *Runner) execute(ctx context.Context, job *core.Job, body jobBody) (err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, recovered)
		}
	}()

	return body(ctx, job)
}

// handleFailure persists a body failure on the job and its artifact. A job
// that already reached a terminal state, typically through cancellation,
// keeps it.
func (r *Runner) handleFailure(ctx context.Context, job *core.Job, cause error) error {
	persistCtx := context.WithoutCancel(ctx)
	message := cause.Error()

	changed, err := r.store.FailJob(persistCtx, job.ID, message)
	if err != nil {
		r.log.Error("Failed to record failure of job %s: %v (cause: %s)", job.ID, err, message)

		return r.propagate(errors.Join(cause, err))
	}

	if !changed {
		outcome := r.currentState(persistCtx, job.ID)
		r.metrics.JobFinished(string(job.Kind), string(outcome))
		r.log.Info("%s job %s ended %s: %s", job.Kind, job.ID, outcome, message)

		if outcome == core.JobCancelled {
			return nil
		}

		return r.propagate(cause)
	}

	r.metrics.JobFinished(string(job.Kind), string(core.JobFailed))
	r.log.Error("%s job %s failed: %s", job.Kind, job.ID, message)

	err = r.store.SetArtifactStatus(persistCtx, job.ArtifactID, core.ArtifactFailed, message)
	if err != nil {
		r.log.Error("Failed to mark artifact %s failed: %v", job.ArtifactID, err)
	}

	return r.propagate(cause)
}

func (r *Runner) currentState(ctx context.Context, jobID string) core.JobState {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		r.log.Warn("Could not read state of job %s: %v", jobID, err)

		return core.JobFailed
	}

	return job.State
}

func (r *Runner) propagate(err error) error {
	if r.opts.PropagateFailures {
		return err
	}

	return nil
}

func (r *Runner) enqueue(ctx context.Context, job *core.Job) error {
	if r.enqueuer == nil {
		return nil
	}

	err := r.enqueuer.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s job %s: %w", job.Kind, job.ID, err)
	}

	return nil
}

// progress records a checkpoint. A conflict means the job was cancelled or
// otherwise left running, which ends the body.
func (r *Runner) progress(ctx context.Context, job *core.Job, percent int) error {
	err := r.store.UpdateProgress(ctx, job.ID, percent)
	if err != nil {
		return fmt.Errorf("progress %d%%: %w", percent, err)
	}

	return nil
}
