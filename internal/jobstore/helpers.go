package jobstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	jobColumns = "id, kind, state, artifact_id, parent_job_id, progress_percent, error_message, " +
		"created_at, started_at, completed_at"
	artifactColumns = "id, status, request_json, script_json, paper_ids_json, audio_ref, audio_format, " +
		"audio_size_bytes, audio_duration_seconds, error_message, created_at, updated_at, completed_at"
	legacyTimeLayout = "2006-01-02 15:04:05"
	// storedTimeLayout is fixed width so stored timestamps sort as text.
	storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*core.Job, error) {
	var (
		job         core.Job
		kind        string
		state       string
		parentJobID sql.NullString
		errorMsg    sql.NullString
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)

	err := scanner.Scan(
		&job.ID,
		&kind,
		&state,
		&job.ArtifactID,
		&parentJobID,
		&job.ProgressPercent,
		&errorMsg,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = core.JobKind(kind)
	job.State = core.JobState(state)
	job.ParentJobID = parentJobID.String
	job.ErrorMessage = errorMsg.String
	job.CreatedAt = parseTimeString(createdAt)
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)

	return &job, nil
}

func scanArtifact(scanner rowScanner) (*core.Artifact, error) {
	var (
		artifact    core.Artifact
		status      string
		requestJSON string
		scriptJSON  sql.NullString
		paperIDs    sql.NullString
		audioRef    sql.NullString
		audioFormat sql.NullString
		errorMsg    sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)

	err := scanner.Scan(
		&artifact.ID,
		&status,
		&requestJSON,
		&scriptJSON,
		&paperIDs,
		&audioRef,
		&audioFormat,
		&artifact.AudioSizeBytes,
		&artifact.AudioDurationSeconds,
		&errorMsg,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	artifact.Status = core.ArtifactStatus(status)
	artifact.AudioRef = audioRef.String
	artifact.AudioFormat = audioFormat.String
	artifact.ErrorMessage = errorMsg.String
	artifact.CreatedAt = parseTimeString(createdAt)
	artifact.UpdatedAt = parseTimeString(updatedAt)
	artifact.CompletedAt = parseNullTime(completedAt)

	err = json.Unmarshal([]byte(requestJSON), &artifact.Request)
	if err != nil {
		return nil, fmt.Errorf("decode request of artifact %s: %w", artifact.ID, err)
	}

	if scriptJSON.Valid && scriptJSON.String != "" {
		var script core.Script

		err = json.Unmarshal([]byte(scriptJSON.String), &script)
		if err != nil {
			return nil, fmt.Errorf("decode script of artifact %s: %w", artifact.ID, err)
		}

		artifact.Script = &script
	}

	if paperIDs.Valid && paperIDs.String != "" {
		err = json.Unmarshal([]byte(paperIDs.String), &artifact.PaperIDs)
		if err != nil {
			return nil, fmt.Errorf("decode paper ids of artifact %s: %w", artifact.ID, err)
		}
	}

	return &artifact, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}

	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(storedTimeLayout)
}

// nullableJSON encodes value, storing NULL for nil pointers and empty slices.
func nullableJSON(value any) (any, error) {
	switch typed := value.(type) {
	case *core.Script:
		if typed == nil {
			return nil, nil
		}
	case []string:
		if len(typed) == 0 {
			return nil, nil
		}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return string(encoded), nil
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return parsed
	}

	parsed, err = time.Parse(legacyTimeLayout, value)
	if err == nil {
		return parsed.UTC()
	}

	return time.Time{}
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}

	parsed := parseTimeString(value.String)
	if parsed.IsZero() {
		return nil
	}

	return &parsed
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
