package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/book-expert/podcast-service/internal/core"
)

const errFmtArtifactNotFound = "%w: artifact %s"

// CreateArtifact inserts a new pending artifact for request. A fresh id is
// assigned.
func (s *Store) CreateArtifact(ctx context.Context, request core.GenerationRequest) (*core.Artifact, error) {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	now := s.timestamp()
	artifact := &core.Artifact{
		CreatedAt:            now,
		UpdatedAt:            now,
		CompletedAt:          nil,
		Script:               nil,
		ID:                   uuid.NewString(),
		Status:               core.ArtifactPending,
		AudioRef:             "",
		AudioFormat:          "",
		ErrorMessage:         "",
		Request:              request,
		PaperIDs:             nil,
		AudioSizeBytes:       0,
		AudioDurationSeconds: 0,
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO artifacts (id, status, request_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		artifact.ID,
		string(artifact.Status),
		string(requestJSON),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	return artifact, nil
}

// GetArtifact fetches an artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*core.Artifact, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+artifactColumns+" FROM artifacts WHERE id = ?", id)

	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(errFmtArtifactNotFound, core.ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}

	return artifact, nil
}

// AudioRecord describes the stored episode of an artifact.
type AudioRecord struct {
	Ref             string
	Format          string
	SizeBytes       int64
	DurationSeconds float64
}

// artifactNotCancelled keeps job bodies from writing over a cancellation.
const artifactNotCancelled = " AND status <> '" + string(core.ArtifactCancelled) + "'"

// SaveScript stores the composed script and the papers it covers. The status
// column is left alone; a cancelled artifact yields ErrStateConflict.
func (s *Store) SaveScript(ctx context.Context, id string, script *core.Script, paperIDs []string) error {
	scriptJSON, err := nullableJSON(script)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}

	paperIDsJSON, err := nullableJSON(paperIDs)
	if err != nil {
		return fmt.Errorf("encode paper ids: %w", err)
	}

	res, err := s.execWithRetry(ctx,
		`UPDATE artifacts SET script_json = ?, paper_ids_json = ?, updated_at = ?
		WHERE id = ?`+artifactNotCancelled,
		scriptJSON, paperIDsJSON, formatTime(s.timestamp()), id,
	)
	if err != nil {
		return fmt.Errorf("save script of artifact %s: %w", id, err)
	}

	return s.expectArtifactWrite(ctx, res, id)
}

// SaveAudio stores where the rendered episode lives. Like SaveScript it never
// touches the status.
func (s *Store) SaveAudio(ctx context.Context, id string, record AudioRecord) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE artifacts SET
			audio_ref = ?,
			audio_format = ?,
			audio_size_bytes = ?,
			audio_duration_seconds = ?,
			updated_at = ?
		WHERE id = ?`+artifactNotCancelled,
		nullableString(record.Ref),
		nullableString(record.Format),
		record.SizeBytes,
		record.DurationSeconds,
		formatTime(s.timestamp()),
		id,
	)
	if err != nil {
		return fmt.Errorf("save audio of artifact %s: %w", id, err)
	}

	return s.expectArtifactWrite(ctx, res, id)
}

// SetArtifactStatus updates only the status and error message of an artifact.
// Completed and failed statuses also stamp completed_at. Cancelled is final:
// any other status written over it yields ErrStateConflict.
func (s *Store) SetArtifactStatus(ctx context.Context, id string, status core.ArtifactStatus, message string) error {
	now := s.timestamp()

	var completedAt any
	if status == core.ArtifactCompleted || status == core.ArtifactFailed || status == core.ArtifactCancelled {
		completedAt = formatTime(now)
	}

	query := `UPDATE artifacts SET status = ?, error_message = ?, updated_at = ?,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ?`
	if status != core.ArtifactCancelled {
		query += artifactNotCancelled
	}

	res, err := s.execWithRetry(ctx, query,
		string(status),
		nullableString(message),
		formatTime(now),
		completedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("set artifact %s status: %w", id, err)
	}

	return s.expectArtifactWrite(ctx, res, id)
}

// expectArtifactWrite tells a missing artifact from a cancelled one when a
// guarded update changed nothing.
func (s *Store) expectArtifactWrite(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	artifact, err := s.GetArtifact(ctx, id)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: artifact %s is %s", ErrStateConflict, id, artifact.Status)
}
