package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/book-expert/podcast-service/internal/core"
)

// CancelledByUserMessage is recorded on jobs and artifacts cancelled on request.
const CancelledByUserMessage = "Task cancelled by user"

const (
	errFmtJobNotFound    = "%w: job %s"
	errFmtStateConflict  = "%w: job %s is %s"
	defaultListLimit     = 50
	maxProgressPercent   = 100
	selectJobByIDQuery   = "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	selectChildJobQuery  = "SELECT " + jobColumns + " FROM jobs WHERE parent_job_id = ?"
	insertJobQuery       = "INSERT INTO jobs (id, kind, state, artifact_id, parent_job_id, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	activeStatePredicate = "state IN (?, ?)"
)

// ErrStateConflict is returned when a transition is attempted from a state
// that does not allow it, such as claiming a running job or completing a
// cancelled one.
var ErrStateConflict = errors.New("job state conflict")

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	ArtifactID string
	States     []core.JobState
	Limit      int
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateJob inserts a queued job of kind for artifactID.
func (s *Store) CreateJob(ctx context.Context, artifactID string, kind core.JobKind) (*core.Job, error) {
	job := s.newJob(artifactID, kind, "")

	_, err := s.execWithRetry(ctx, insertJobQuery,
		job.ID,
		string(job.Kind),
		string(job.State),
		job.ArtifactID,
		nil,
		formatTime(job.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s job: %w", kind, err)
	}

	return job, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*core.Job, error) {
	return getJob(ensureContext(ctx), s.db, id)
}

// ChildJob returns the audio job spawned by the script job parentID.
func (s *Store) ChildJob(ctx context.Context, parentID string) (*core.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ensureContext(ctx), selectChildJobQuery, parentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: child of job %s", core.ErrNotFound, parentID)
	}

	if err != nil {
		return nil, fmt.Errorf("get child of job %s: %w", parentID, err)
	}

	return job, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]*core.Job, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.ArtifactID != "" {
		clauses = append(clauses, "artifact_id = ?")
		args = append(args, filter.ArtifactID)
	}

	if len(filter.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(filter.States))+")")

		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"

	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var jobs []*core.Job

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob moves a queued job to running. Exactly one caller wins; the rest
// get ErrStateConflict.
func (s *Store) ClaimJob(ctx context.Context, id string) (*core.Job, error) {
	now := formatTime(s.timestamp())

	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET state = ?, started_at = ?, progress_percent = 0
		WHERE id = ? AND state = ?`,
		string(core.JobRunning), now, id, string(core.JobQueued),
	)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}

	err = s.expectTransition(ctx, res, id)
	if err != nil {
		return nil, err
	}

	return s.GetJob(ctx, id)
}

// UpdateProgress records percent on a running job. Values are clamped to
// 0..100.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent int) error {
	percent = min(max(percent, 0), maxProgressPercent)

	res, err := s.execWithRetry(ctx,
		"UPDATE jobs SET progress_percent = ? WHERE id = ? AND state = ?",
		percent, id, string(core.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("update progress of job %s: %w", id, err)
	}

	return s.expectTransition(ctx, res, id)
}

// CompleteJob marks a running job completed at 100%.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET state = ?, progress_percent = ?, completed_at = ?, error_message = NULL
		WHERE id = ? AND state = ?`,
		string(core.JobCompleted), maxProgressPercent, formatTime(s.timestamp()), id, string(core.JobRunning),
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}

	return s.expectTransition(ctx, res, id)
}

// FailJob moves a queued or running job to failed with message. It reports
// false when the job was already terminal and nothing changed.
func (s *Store) FailJob(ctx context.Context, id, message string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET state = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND `+activeStatePredicate,
		string(core.JobFailed), nullableString(message), formatTime(s.timestamp()), id,
		string(core.JobQueued), string(core.JobRunning),
	)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

// CompleteScriptJob marks the running script job id completed and creates
// its queued audio child in one transaction. A second call never creates a
// second child; the existing one is returned instead.
func (s *Store) CompleteScriptJob(ctx context.Context, id string) (*core.Job, error) {
	ctx = ensureContext(ctx)

	var child *core.Job

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		parent, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}

		existing, err := scanJob(tx.QueryRowContext(ctx, selectChildJobQuery, id))
		if err == nil {
			child = existing

			return nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("look up child of job %s: %w", id, err)
		}

		if parent.Kind != core.JobKindScript || parent.State != core.JobRunning {
			return fmt.Errorf(errFmtStateConflict, ErrStateConflict, id, parent.State)
		}

		now := s.timestamp()

		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET state = ?, progress_percent = ?, completed_at = ?
			WHERE id = ? AND state = ?`,
			string(core.JobCompleted), maxProgressPercent, formatTime(now), id, string(core.JobRunning),
		)
		if err != nil {
			return fmt.Errorf("complete script job %s: %w", id, err)
		}

		created := s.newJob(parent.ArtifactID, core.JobKindAudio, id)

		_, err = tx.ExecContext(ctx, insertJobQuery,
			created.ID,
			string(created.Kind),
			string(created.State),
			created.ArtifactID,
			created.ParentJobID,
			formatTime(created.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert audio job for %s: %w", id, err)
		}

		child = created

		return nil
	})
	if err != nil {
		return nil, err
	}

	return child, nil
}

// CancelJob cancels a queued or running job and marks its artifact
// cancelled. Terminal jobs are left untouched and yield ErrStateConflict.
func (s *Store) CancelJob(ctx context.Context, id string) (*core.Job, error) {
	ctx = ensureContext(ctx)

	var cancelled *core.Job

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}

		if !job.State.IsCancellable() {
			return fmt.Errorf(errFmtStateConflict, ErrStateConflict, id, job.State)
		}

		now := formatTime(s.timestamp())

		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET state = ?, error_message = ?, completed_at = ?
			WHERE id = ? AND `+activeStatePredicate,
			string(core.JobCancelled), CancelledByUserMessage, now, id,
			string(core.JobQueued), string(core.JobRunning),
		)
		if err != nil {
			return fmt.Errorf("cancel job %s: %w", id, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE artifacts SET status = ?, error_message = ?, updated_at = ?, completed_at = ?
			WHERE id = ?`,
			string(core.ArtifactCancelled), CancelledByUserMessage, now, now, job.ArtifactID,
		)
		if err != nil {
			return fmt.Errorf("cancel artifact %s: %w", job.ArtifactID, err)
		}

		cancelled, err = getJob(ctx, tx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// IsCancelled reports whether job id has been cancelled.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	var state string

	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT state FROM jobs WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf(errFmtJobNotFound, core.ErrNotFound, id)
	}

	if err != nil {
		return false, fmt.Errorf("read state of job %s: %w", id, err)
	}

	return core.JobState(state) == core.JobCancelled, nil
}

func (s *Store) newJob(artifactID string, kind core.JobKind, parentID string) *core.Job {
	return &core.Job{
		CreatedAt:       s.timestamp(),
		StartedAt:       nil,
		CompletedAt:     nil,
		ID:              uuid.NewString(),
		Kind:            kind,
		State:           core.JobQueued,
		ArtifactID:      artifactID,
		ParentJobID:     parentID,
		ErrorMessage:    "",
		ProgressPercent: 0,
	}
}

// expectTransition turns a zero-row conditional update into ErrNotFound or
// ErrStateConflict.
func (s *Store) expectTransition(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	return fmt.Errorf(errFmtStateConflict, ErrStateConflict, id, job.State)
}

func getJob(ctx context.Context, queryer rowQueryer, id string) (*core.Job, error) {
	job, err := scanJob(queryer.QueryRowContext(ctx, selectJobByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(errFmtJobNotFound, core.ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return job, nil
}
