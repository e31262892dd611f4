// Package ttsutils provides path, naming and display helpers shared by the
// renderer, the job runner and the CLI.
package ttsutils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Environment variable names used for path resolution.
const (
	envWorkDir = "PODCAST_WORK_DIR"
)

// Common application directory and path constants.
const (
	appName                = "podcast-service"
	workDirName            = "work"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	dot                    = "."
	invalidCharReplacement = "_"
	maxTitleLength         = 50
	objectKeyPrefix        = "podcasts"
	objectKeyDateLayout    = "2006/01/02"
	objectKeyTimeLayout    = "20060102_150405"
	untitledEpisode        = "episode"
)

const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

var sizeUnits = []struct {
	suffix string
	size   int64
}{
	{suffix: "GB", size: gigabyte},
	{suffix: "MB", size: megabyte},
	{suffix: "KB", size: kilobyte},
}

var filenameReplacer = strings.NewReplacer(
	"<", invalidCharReplacement,
	">", invalidCharReplacement,
	":", invalidCharReplacement,
	"\"", invalidCharReplacement,
	"/", invalidCharReplacement,
	"\\", invalidCharReplacement,
	"|", invalidCharReplacement,
	"?", invalidCharReplacement,
	"*", invalidCharReplacement,
)

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

// GetWorkDir returns the directory used for downloaded blobs and scratch
// files, respecting an environment override and falling back to the user's
// cache directory.
func GetWorkDir() string {
	if workDir := os.Getenv(envWorkDir); workDir != "" {
		return workDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, workDirName)
	}

	return filepath.Join(homeDir, dotCache, appName, workDirName)
}

// EnsureDir creates dir and its parents when missing.
func EnsureDir(dir string) error {
	err := os.MkdirAll(dir, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, dir, err)
	}

	return nil
}

// FormatDuration renders an episode length as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(duration time.Duration) string {
	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%.1fs", duration.Seconds())
	case duration < time.Hour:
		minutes := duration / time.Minute

		return fmt.Sprintf("%dm %.1fs", minutes, (duration - minutes*time.Minute).Seconds())
	default:
		return fmt.Sprintf("%dh %dm", duration/time.Hour, (duration%time.Hour)/time.Minute)
	}
}

// FormatFileSize renders a byte count with a binary unit, e.g. "1.5 KB".
func FormatFileSize(bytes int64) string {
	for _, unit := range sizeUnits {
		if bytes >= unit.size {
			return fmt.Sprintf("%.1f %s", float64(bytes)/float64(unit.size), unit.suffix)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	return filenameReplacer.Replace(filename)
}

// EpisodeObjectKey builds the blob key for an episode:
// podcasts/<artifact>/<yyyy/mm/dd>/<title>_<timestamp>.<ext>.
func EpisodeObjectKey(artifactID, title, extension string, now time.Time) string {
	name := strings.Join(strings.Fields(SanitizeFilename(title)), invalidCharReplacement)
	if runes := []rune(name); len(runes) > maxTitleLength {
		name = string(runes[:maxTitleLength])
	}

	if name == "" {
		name = untitledEpisode
	}

	utc := now.UTC()
	fileName := name + invalidCharReplacement + utc.Format(objectKeyTimeLayout) + dot + strings.TrimPrefix(extension, dot)

	return path.Join(objectKeyPrefix, artifactID, utc.Format(objectKeyDateLayout), fileName)
}
