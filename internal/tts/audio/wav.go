package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	outputBitDepth  = 16
	outputChannels  = 1
	pcmAudioFormat  = 1
	eightBitOffset  = 128
	filePermissions = 0o600
)

// Errors for WAV decoding and encoding.
var (
	ErrInvalidWAV   = errors.New("invalid wav data")
	ErrEmptyPCM     = errors.New("wav contains no samples")
	ErrEmptyBuffer  = errors.New("buffer contains no samples")
	ErrUnknownDepth = errors.New("unsupported bit depth")
)

// DecodeWAV decodes WAV bytes into a mono buffer at targetRate. Multi-channel
// input is down-mixed by averaging.
func DecodeWAV(data []byte, targetRate int) (*Buffer, error) {
	return decode(bytes.NewReader(data), targetRate)
}

// LoadFile decodes a WAV file from disk into a mono buffer at targetRate.
func LoadFile(path string, targetRate int) (*Buffer, error) {
	file, err := os.Open(path) // #nosec G304 -- asset paths come from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file '%s': %w", path, err)
	}
	defer func() { _ = file.Close() }()

	buffer, err := decode(file, targetRate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio file '%s': %w", path, err)
	}

	return buffer, nil
}

func decode(reader io.ReadSeeker, targetRate int) (*Buffer, error) {
	decoder := wav.NewDecoder(reader)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm data: %w", err)
	}

	if pcm == nil || len(pcm.Data) == 0 {
		return nil, ErrEmptyPCM
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDepth, bitDepth)
	}

	channels := max(int(decoder.NumChans), 1)
	mono := downmix(pcm.Data, channels, bitDepth)
	buffer := &Buffer{Samples: mono, SampleRate: int(decoder.SampleRate)}

	if targetRate > 0 && targetRate != buffer.SampleRate {
		return buffer.Resample(targetRate), nil
	}

	return buffer, nil
}

func downmix(data []int, channels, bitDepth int) []float64 {
	fullScale := math.Pow(2, float64(bitDepth-1))
	frames := len(data) / channels
	mono := make([]float64, frames)

	for frame := range frames {
		sum := 0.0

		for channel := range channels {
			sample := data[frame*channels+channel]
			if bitDepth == 8 {
				sample -= eightBitOffset
			}

			sum += float64(sample) / fullScale
		}

		mono[frame] = clip(sum / float64(channels))
	}

	return mono
}

// EncodeWAV encodes the buffer as 16-bit mono PCM WAV.
func EncodeWAV(buffer *Buffer) ([]byte, error) {
	tempFile, err := os.CreateTemp("", "podcast-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for wav output: %w", err)
	}

	tempPath := tempFile.Name()
	defer func() { _ = os.Remove(tempPath) }()

	writeErr := writeWAV(tempFile, buffer)
	closeErr := tempFile.Close()

	if writeErr != nil {
		return nil, writeErr
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close wav output: %w", closeErr)
	}

	data, err := os.ReadFile(tempPath) // #nosec G304 -- path created above
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", err)
	}

	return data, nil
}

// WriteWAVFile writes the buffer to path as 16-bit mono PCM WAV.
func WriteWAVFile(path string, buffer *Buffer) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create wav file '%s': %w", path, err)
	}

	writeErr := writeWAV(file, buffer)
	closeErr := file.Close()

	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close wav file '%s': %w", path, closeErr)
	}

	return nil
}

func writeWAV(writer io.WriteSeeker, buffer *Buffer) error {
	if buffer == nil || buffer.Len() == 0 {
		return ErrEmptyBuffer
	}

	fullScale := math.Pow(2, outputBitDepth-1) - 1
	data := make([]int, buffer.Len())

	for i, sample := range buffer.Samples {
		data[i] = int(math.Round(clip(sample) * fullScale))
	}

	encoder := wav.NewEncoder(writer, buffer.SampleRate, outputBitDepth, outputChannels, pcmAudioFormat)

	err := encoder.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: outputChannels,
			SampleRate:  buffer.SampleRate,
		},
		Data:           data,
		SourceBitDepth: outputBitDepth,
	})
	if err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav header: %w", err)
	}

	return nil
}
