// Package objectstore stores rendered episodes in a blob store and hands
// them back as local files.
//
// Every store returns references of the form <scheme>://<bucket>/<key>, so
// a reference records where the blob lives independently of configuration.
package objectstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/book-expert/podcast-service/internal/tts/ttsutils"
)

const (
	schemeSeparator = "://"
	blobDirPattern  = "blob-*"
	defaultBlobName = "blob"
)

var (
	// ErrInvalidRef is returned for references that are malformed or belong
	// to another store.
	ErrInvalidRef = errors.New("invalid blob reference")
	// ErrEmptyKey is returned when Put is called without a key.
	ErrEmptyKey = errors.New("blob key is empty")
)

// Ref is a parsed blob reference.
type Ref struct {
	Scheme string
	Bucket string
	Key    string
}

// String formats the reference.
func (r Ref) String() string {
	return r.Scheme + schemeSeparator + r.Bucket + "/" + r.Key
}

// ParseRef splits a reference into scheme, bucket and key.
func ParseRef(ref string) (Ref, error) {
	scheme, rest, found := strings.Cut(ref, schemeSeparator)
	if !found || scheme == "" {
		return Ref{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidRef, ref)
	}

	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return Ref{}, fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidRef, ref)
	}

	return Ref{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// parseOwnRef parses ref and checks it was issued for scheme and bucket.
func parseOwnRef(ref, scheme, bucket string) (Ref, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return Ref{}, err
	}

	if parsed.Scheme != scheme || parsed.Bucket != bucket {
		return Ref{}, fmt.Errorf("%w: %q does not belong to %s%s%s", ErrInvalidRef, ref, scheme, schemeSeparator, bucket)
	}

	return parsed, nil
}

// localBlobPath creates a fresh directory under the work dir and returns the
// path a blob with key should be materialised at.
func localBlobPath(workDir, key string) (string, error) {
	if workDir == "" {
		workDir = ttsutils.GetWorkDir()
	}

	err := ttsutils.EnsureDir(workDir)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(workDir, blobDirPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	name := ttsutils.SanitizeFilename(path.Base(key))
	if name == "" || name == "." || name == "/" {
		name = defaultBlobName
	}

	return filepath.Join(dir, name), nil
}

// writeLocalBlob copies reader into a new local file for key.
func writeLocalBlob(workDir, key string, reader io.Reader) (string, error) {
	localPath, err := localBlobPath(workDir, key)
	if err != nil {
		return "", err
	}

	file, err := os.Create(localPath) // #nosec G304 -- path generated under the work dir
	if err != nil {
		return "", fmt.Errorf("failed to create local blob '%s': %w", localPath, err)
	}

	_, copyErr := io.Copy(file, reader)
	closeErr := file.Close()

	if copyErr != nil {
		return "", fmt.Errorf("failed to write local blob '%s': %w", localPath, copyErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf("failed to close local blob '%s': %w", localPath, closeErr)
	}

	return localPath, nil
}
