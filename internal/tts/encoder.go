package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/podcast-service/internal/tts/audio"
)

const (
	defaultFFmpegBinary = "ffmpeg"
	defaultBitrate      = "192k"
)

// ErrEncodeFailed is returned when the final mix cannot be encoded.
var ErrEncodeFailed = errors.New("audio encoding failed")

// Encoder turns a mixed buffer into the configured container format. WAV is
// written in process; other formats are transcoded by the ffmpeg binary.
type Encoder struct {
	log     *logger.Logger
	binary  string
	bitrate string
}

// NewEncoder creates an Encoder. An empty binary selects ffmpeg from PATH.
func NewEncoder(log *logger.Logger, binary string) *Encoder {
	if binary == "" {
		binary = defaultFFmpegBinary
	}

	return &Encoder{
		log:     log,
		binary:  binary,
		bitrate: defaultBitrate,
	}
}

// Encode returns buffer encoded as format.
func (e *Encoder) Encode(ctx context.Context, buffer *audio.Buffer, format audio.Format) ([]byte, error) {
	if format == audio.FORMAT_WAV || format == "" {
		data, err := audio.EncodeWAV(buffer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
		}

		return data, nil
	}

	_, err := audio.ParseFormat(string(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	return e.transcode(ctx, buffer, format)
}

func (e *Encoder) transcode(ctx context.Context, buffer *audio.Buffer, format audio.Format) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "podcast-encode-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for encoding: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			e.log.Warn("Failed to remove temp dir '%s': %v", workDir, removeErr)
		}
	}()

	inputPath := filepath.Join(workDir, "mix.wav")
	outputPath := filepath.Join(workDir, "mix."+string(format))

	err = audio.WriteWAVFile(inputPath, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-b:a", e.bitrate,
		outputPath,
	}

	// #nosec G204 -- binary comes from configuration and paths are generated here
	cmd := exec.CommandContext(ctx, e.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s execution failed: %w - output: %s", ErrEncodeFailed, e.binary, err, string(output))
	}

	encoded, err := os.ReadFile(outputPath) // #nosec G304 -- path generated above
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded audio: %w", err)
	}

	return encoded, nil
}
