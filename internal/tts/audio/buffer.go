package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrSampleRateMismatch is returned when combining buffers recorded at different rates.
var ErrSampleRateMismatch = errors.New("sample rate mismatch")

const errFmtSampleRateMismatch = "%w: %d Hz vs %d Hz"

func newSampleRateMismatchError(want, got int) error {
	return fmt.Errorf(errFmtSampleRateMismatch, ErrSampleRateMismatch, want, got)
}

// Buffer is mono floating-point PCM in the range [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// NewBuffer returns an empty buffer at the given rate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{Samples: nil, SampleRate: sampleRate}
}

// Silence returns a buffer of zeros lasting duration.
func Silence(sampleRate int, duration time.Duration) *Buffer {
	return &Buffer{Samples: make([]float64, samplesFor(sampleRate, duration)), SampleRate: sampleRate}
}

// Tone returns a full-scale sine wave at frequency lasting duration.
func Tone(sampleRate int, frequency float64, duration time.Duration) *Buffer {
	samples := make([]float64, samplesFor(sampleRate, duration))
	step := 2 * math.Pi * frequency / float64(sampleRate)

	for i := range samples {
		samples[i] = math.Sin(step * float64(i))
	}

	return &Buffer{Samples: samples, SampleRate: sampleRate}
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}

	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Clone returns an independent copy.
func (b *Buffer) Clone() *Buffer {
	samples := make([]float64, len(b.Samples))
	copy(samples, b.Samples)

	return &Buffer{Samples: samples, SampleRate: b.SampleRate}
}

// Append adds other to the end of b.
func (b *Buffer) Append(other *Buffer) error {
	if other == nil || other.Len() == 0 {
		return nil
	}

	if other.SampleRate != b.SampleRate {
		return newSampleRateMismatchError(b.SampleRate, other.SampleRate)
	}

	b.Samples = append(b.Samples, other.Samples...)

	return nil
}

// AppendSilence adds duration of silence to the end of b.
func (b *Buffer) AppendSilence(duration time.Duration) {
	b.Samples = append(b.Samples, make([]float64, samplesFor(b.SampleRate, duration))...)
}

func samplesFor(sampleRate int, duration time.Duration) int {
	if duration <= 0 || sampleRate <= 0 {
		return 0
	}

	return int(math.Round(duration.Seconds() * float64(sampleRate)))
}
