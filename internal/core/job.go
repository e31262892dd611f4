package core

import (
	"strings"
	"time"
)

// JobKind identifies which body a job runs.
type JobKind string

const (
	JobKindScript JobKind = "script"
	JobKindAudio  JobKind = "audio"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

var terminalJobStates = map[JobState]struct{}{
	JobCompleted: {},
	JobFailed:    {},
	JobCancelled: {},
}

// IsTerminal reports whether no further transition may leave this state.
func (s JobState) IsTerminal() bool {
	_, ok := terminalJobStates[s]

	return ok
}

// IsCancellable reports whether an external cancellation is honoured in this state.
func (s JobState) IsCancellable() bool {
	return s == JobQueued || s == JobRunning
}

// ParseJobState converts a string into a known JobState.
func ParseJobState(value string) (JobState, bool) {
	state := JobState(strings.ToLower(strings.TrimSpace(value)))
	switch state {
	case JobQueued, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return state, true
	default:
		return "", false
	}
}

// Job is one asynchronous unit of work with its own terminal-state lifecycle.
type Job struct {
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ID              string     `json:"id"`
	Kind            JobKind    `json:"kind"`
	State           JobState   `json:"state"`
	ArtifactID      string     `json:"artifact_id"`
	ParentJobID     string     `json:"parent_job_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
}

// ArtifactStatus is the user-facing podcast status.
type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactFailed     ArtifactStatus = "failed"
	ArtifactCancelled  ArtifactStatus = "cancelled"
)

// GenerationRequest holds the per-episode inputs recorded on the artifact.
// Exactly one of Criteria or PaperIDs drives the paper fetch.
type GenerationRequest struct {
	Criteria            *SearchCriteria `json:"criteria,omitempty"`
	Title               string          `json:"title"`
	TechnicalLevel      string          `json:"technical_level"`
	VoicePreference     VoicePreference `json:"voice_preference"`
	PaperIDs            []string        `json:"paper_ids,omitempty"`
	TargetLengthMinutes int             `json:"target_length_minutes"`
}

// Artifact is the podcast record whose status projects its jobs' outcomes.
type Artifact struct {
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	Script               *Script           `json:"script,omitempty"`
	ID                   string            `json:"id"`
	Status               ArtifactStatus    `json:"status"`
	AudioRef             string            `json:"audio_ref,omitempty"`
	AudioFormat          string            `json:"audio_format,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	Request              GenerationRequest `json:"request"`
	PaperIDs             []string          `json:"paper_ids,omitempty"`
	AudioSizeBytes       int64             `json:"audio_size_bytes,omitempty"`
	AudioDurationSeconds float64           `json:"audio_duration_seconds,omitempty"`
}
