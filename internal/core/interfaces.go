// Package core defines the core business types and interfaces for the podcast service.
package core

import "context"

// BlobStore defines the interface for interacting with a key-value blob store.
// Put returns an opaque reference that Get accepts; Get materialises the blob
// as a local file and returns its path.
type BlobStore interface {
	Put(ctx context.Context, data []byte, key string) (string, error)
	Get(ctx context.Context, ref string) (string, error)
}

// PaperSource retrieves research-paper records. Both operations may return an
// error wrapping ErrRateLimited or ErrTransient; FetchByID wraps ErrNotFound
// when the identifier does not resolve.
type PaperSource interface {
	Search(ctx context.Context, criteria SearchCriteria) ([]Paper, int, error)
	FetchByID(ctx context.Context, id string) (*Paper, error)
}

// ComposeRequest carries everything a ScriptComposer needs for one episode.
type ComposeRequest struct {
	Title               string
	TechnicalLevel      string
	Papers              []Paper
	TargetLengthMinutes int
}

// ScriptComposer turns paper records into a structured dialogue Script.
type ScriptComposer interface {
	Compose(ctx context.Context, req ComposeRequest) (*Script, error)
}

// SpeechSynthesizer converts one annotated text segment into raw audio bytes.
// Errors wrapping ErrRateLimited or ErrTransient are retryable.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, annotatedText string, voice VoiceProfile) ([]byte, error)
}
