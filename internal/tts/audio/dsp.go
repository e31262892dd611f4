package audio

import (
	"math"
	"time"
)

const decibelFactor = 20.0

// DBToLinear converts a decibel gain into a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/decibelFactor)
}

// LinearToDB converts an amplitude into decibels relative to full scale.
func LinearToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}

	return decibelFactor * math.Log10(amplitude)
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	peak := 0.0

	for _, sample := range b.Samples {
		peak = math.Max(peak, math.Abs(sample))
	}

	return peak
}

// PeakDBFS returns the peak level in dBFS, or -Inf for digital silence.
func (b *Buffer) PeakDBFS() float64 {
	return LinearToDB(b.Peak())
}

// RMSDBFS returns the RMS level of samples in dBFS.
func RMSDBFS(samples []float64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}

	sum := 0.0
	for _, sample := range samples {
		sum += sample * sample
	}

	return LinearToDB(math.Sqrt(sum / float64(len(samples))))
}

// TrimSilence returns a copy of b without leading and trailing chunks whose
// RMS level is below thresholdDBFS. An entirely silent buffer trims to empty.
func (b *Buffer) TrimSilence(thresholdDBFS float64, chunk time.Duration) *Buffer {
	chunkSize := max(samplesFor(b.SampleRate, chunk), 1)
	total := len(b.Samples)

	start := 0
	for start < total {
		end := min(start+chunkSize, total)
		if RMSDBFS(b.Samples[start:end]) >= thresholdDBFS {
			break
		}

		start = end
	}

	stop := total
	for stop > start {
		begin := max(stop-chunkSize, start)
		if RMSDBFS(b.Samples[begin:stop]) >= thresholdDBFS {
			break
		}

		stop = begin
	}

	trimmed := make([]float64, stop-start)
	copy(trimmed, b.Samples[start:stop])

	return &Buffer{Samples: trimmed, SampleRate: b.SampleRate}
}

// ApplyGain scales every sample by db decibels.
func (b *Buffer) ApplyGain(db float64) {
	factor := DBToLinear(db)

	for i := range b.Samples {
		b.Samples[i] *= factor
	}
}

// NormalizePeak scales b so that its peak sits at targetDBFS. Silence is left alone.
func (b *Buffer) NormalizePeak(targetDBFS float64) {
	peak := b.Peak()
	if peak == 0 {
		return
	}

	factor := DBToLinear(targetDBFS) / peak

	for i := range b.Samples {
		b.Samples[i] *= factor
	}
}

// FadeIn ramps the first duration of b up from silence.
func (b *Buffer) FadeIn(duration time.Duration) {
	length := min(samplesFor(b.SampleRate, duration), len(b.Samples))

	for i := range length {
		b.Samples[i] *= float64(i) / float64(length)
	}
}

// FadeOut ramps the last duration of b down to silence.
func (b *Buffer) FadeOut(duration time.Duration) {
	total := len(b.Samples)
	length := min(samplesFor(b.SampleRate, duration), total)

	for i := range length {
		b.Samples[total-1-i] *= float64(i) / float64(length)
	}
}

// LoopTo returns a copy of b repeated or truncated to exactly length samples.
func (b *Buffer) LoopTo(length int) *Buffer {
	looped := make([]float64, max(length, 0))
	if len(b.Samples) == 0 {
		return &Buffer{Samples: looped, SampleRate: b.SampleRate}
	}

	for i := range looped {
		looped[i] = b.Samples[i%len(b.Samples)]
	}

	return &Buffer{Samples: looped, SampleRate: b.SampleRate}
}

// Overlay mixes other into b starting at the first sample. Samples past the
// end of b are ignored and the sum is clipped to full scale.
func (b *Buffer) Overlay(other *Buffer) error {
	if other == nil {
		return nil
	}

	if other.SampleRate != b.SampleRate {
		return newSampleRateMismatchError(b.SampleRate, other.SampleRate)
	}

	limit := min(len(b.Samples), len(other.Samples))
	for i := range limit {
		b.Samples[i] = clip(b.Samples[i] + other.Samples[i])
	}

	return nil
}

// Resample returns b converted to targetRate using linear interpolation.
func (b *Buffer) Resample(targetRate int) *Buffer {
	if targetRate == b.SampleRate || b.SampleRate <= 0 || len(b.Samples) == 0 {
		clone := b.Clone()
		clone.SampleRate = targetRate

		return clone
	}

	ratio := float64(b.SampleRate) / float64(targetRate)
	length := int(math.Round(float64(len(b.Samples)) / ratio))
	resampled := make([]float64, length)
	last := len(b.Samples) - 1

	for i := range resampled {
		position := float64(i) * ratio
		index := int(position)

		if index >= last {
			resampled[i] = b.Samples[last]

			continue
		}

		fraction := position - float64(index)
		resampled[i] = b.Samples[index]*(1-fraction) + b.Samples[index+1]*fraction
	}

	return &Buffer{Samples: resampled, SampleRate: targetRate}
}

func clip(sample float64) float64 {
	return math.Max(-1, math.Min(1, sample))
}
