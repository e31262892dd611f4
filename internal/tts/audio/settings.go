// Package audio provides the PCM working buffer, WAV codec, DSP helpers and
// mix settings used to assemble podcast episodes.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Constants for default mix settings.
const (
	DEFAULT_SAMPLE_RATE            = 24000
	DEFAULT_PAUSE                  = 500 * time.Millisecond
	DEFAULT_TRANSITION             = 500 * time.Millisecond
	DEFAULT_TRANSITION_SILENCE     = 800 * time.Millisecond
	DEFAULT_JINGLE_GAP             = 500 * time.Millisecond
	DEFAULT_SEGMENT_PEAK_DBFS      = -3.0
	DEFAULT_FINAL_PEAK_DBFS        = -1.0
	DEFAULT_SILENCE_THRESHOLD_DBFS = -50.0
	DEFAULT_TRIM_CHUNK             = 10 * time.Millisecond
	DEFAULT_MUSIC_GAIN_DB          = -20.0
	DEFAULT_STING_FREQUENCY_HZ     = 440.0
	DEFAULT_STING_DURATION         = 200 * time.Millisecond
	DEFAULT_STING_FADE             = 100 * time.Millisecond
	DEFAULT_STING_GAIN_DB          = -20.0
	DEFAULT_MAX_MUSIC_FADE         = 5 * time.Second
	DEFAULT_MUSIC_FADE_FRACTION    = 0.1
)

// Constants for settings validation limits.
const (
	MIN_SAMPLE_RATE = 8000
	MAX_SAMPLE_RATE = 192000
	MAX_PAUSE       = 10 * time.Second
	MIN_DBFS        = -96.0
)

// Constants for error message formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE  = "%w: sample rate must be between %d and %d Hz"
	ERR_FMT_PAUSE_RANGE        = "%w: %s must be between 0 and %s"
	ERR_FMT_DBFS_RANGE         = "%w: %s must be between %.0f and 0 dBFS"
	ERR_FMT_GAIN_NON_POSITIVE  = "%w: %s must not be positive"
	ERR_FMT_FADE_FRACTION      = "%w: music fade fraction must be between 0 and 0.5"
	ERR_FMT_UNSUPPORTED_FORMAT = "%w: unsupported output format %q"
)

// Common errors for the audio package.
var (
	ErrInvalidSettings = errors.New("invalid mix settings")
)

// Format represents supported output formats.
type Format string

const (
	FORMAT_WAV  Format = "wav"
	FORMAT_MP3  Format = "mp3"
	FORMAT_FLAC Format = "flac"
	FORMAT_OGG  Format = "ogg"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FORMAT_MP3:
		return "audio/mpeg"
	case FORMAT_FLAC:
		return "audio/flac"
	case FORMAT_OGG:
		return "audio/ogg"
	case FORMAT_WAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// MixSettings controls pauses, transitions, loudness and music for a render.
type MixSettings struct {
	Format               Format        `json:"format"`
	AssetsDir            string        `json:"assetsDir,omitempty"`
	MusicPath            string        `json:"musicPath,omitempty"`
	SampleRate           int           `json:"sampleRate"`
	PauseDuration        time.Duration `json:"pause"`
	TransitionDuration   time.Duration `json:"transition"`
	TransitionSilence    time.Duration `json:"transitionSilence"`
	JingleGap            time.Duration `json:"jingleGap"`
	TrimChunk            time.Duration `json:"trimChunk"`
	StingDuration        time.Duration `json:"stingDuration"`
	StingFade            time.Duration `json:"stingFade"`
	MaxMusicFade         time.Duration `json:"maxMusicFade"`
	SegmentPeakDBFS      float64       `json:"segmentPeakDbfs"`
	FinalPeakDBFS        float64       `json:"finalPeakDbfs"`
	SilenceThresholdDBFS float64       `json:"silenceThresholdDbfs"`
	MusicGainDB          float64       `json:"musicGainDb"`
	StingFrequencyHz     float64       `json:"stingFrequencyHz"`
	StingGainDB          float64       `json:"stingGainDb"`
	MusicFadeFraction    float64       `json:"musicFadeFraction"`
}

// NewDefaultMixSettings provides the standard two-host episode mix.
func NewDefaultMixSettings() MixSettings {
	return MixSettings{
		Format:               FORMAT_WAV,
		AssetsDir:            "",
		MusicPath:            "",
		SampleRate:           DEFAULT_SAMPLE_RATE,
		PauseDuration:        DEFAULT_PAUSE,
		TransitionDuration:   DEFAULT_TRANSITION,
		TransitionSilence:    DEFAULT_TRANSITION_SILENCE,
		JingleGap:            DEFAULT_JINGLE_GAP,
		TrimChunk:            DEFAULT_TRIM_CHUNK,
		StingDuration:        DEFAULT_STING_DURATION,
		StingFade:            DEFAULT_STING_FADE,
		MaxMusicFade:         DEFAULT_MAX_MUSIC_FADE,
		SegmentPeakDBFS:      DEFAULT_SEGMENT_PEAK_DBFS,
		FinalPeakDBFS:        DEFAULT_FINAL_PEAK_DBFS,
		SilenceThresholdDBFS: DEFAULT_SILENCE_THRESHOLD_DBFS,
		MusicGainDB:          DEFAULT_MUSIC_GAIN_DB,
		StingFrequencyHz:     DEFAULT_STING_FREQUENCY_HZ,
		StingGainDB:          DEFAULT_STING_GAIN_DB,
		MusicFadeFraction:    DEFAULT_MUSIC_FADE_FRACTION,
	}
}

// Validate checks if mix settings are within reasonable bounds.
func (s *MixSettings) Validate() error {
	timingErr := s.validateTiming()
	if timingErr != nil {
		return timingErr
	}

	levelErr := s.validateLevels()
	if levelErr != nil {
		return levelErr
	}

	return validateFormat(s.Format)
}

func (s *MixSettings) validateTiming() error {
	if s.SampleRate < MIN_SAMPLE_RATE || s.SampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidSettings, MIN_SAMPLE_RATE, MAX_SAMPLE_RATE)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{name: "pause", value: s.PauseDuration},
		{name: "transition", value: s.TransitionDuration},
		{name: "transition silence", value: s.TransitionSilence},
		{name: "jingle gap", value: s.JingleGap},
		{name: "sting duration", value: s.StingDuration},
	}

	for _, duration := range durations {
		if duration.value < 0 || duration.value > MAX_PAUSE {
			return fmt.Errorf(ERR_FMT_PAUSE_RANGE, ErrInvalidSettings, duration.name, MAX_PAUSE)
		}
	}

	if s.TrimChunk <= 0 {
		return fmt.Errorf(ERR_FMT_PAUSE_RANGE, ErrInvalidSettings, "trim chunk", MAX_PAUSE)
	}

	return nil
}

func (s *MixSettings) validateLevels() error {
	levels := []struct {
		name  string
		value float64
	}{
		{name: "segment peak", value: s.SegmentPeakDBFS},
		{name: "final peak", value: s.FinalPeakDBFS},
		{name: "silence threshold", value: s.SilenceThresholdDBFS},
	}

	for _, level := range levels {
		if level.value < MIN_DBFS || level.value > 0 {
			return fmt.Errorf(ERR_FMT_DBFS_RANGE, ErrInvalidSettings, level.name, MIN_DBFS)
		}
	}

	if s.MusicGainDB > 0 {
		return fmt.Errorf(ERR_FMT_GAIN_NON_POSITIVE, ErrInvalidSettings, "music gain")
	}

	if s.StingGainDB > 0 {
		return fmt.Errorf(ERR_FMT_GAIN_NON_POSITIVE, ErrInvalidSettings, "sting gain")
	}

	if s.MusicFadeFraction < 0 || s.MusicFadeFraction > 0.5 {
		return fmt.Errorf(ERR_FMT_FADE_FRACTION, ErrInvalidSettings)
	}

	return nil
}

func validateFormat(format Format) error {
	switch format {
	case FORMAT_WAV, FORMAT_MP3, FORMAT_FLAC, FORMAT_OGG:
		return nil
	default:
		return fmt.Errorf(ERR_FMT_UNSUPPORTED_FORMAT, ErrInvalidSettings, format)
	}
}

// ParseFormat converts a configured format name into a Format.
func ParseFormat(value string) (Format, error) {
	format := Format(value)
	if value == "" {
		format = FORMAT_WAV
	}

	err := validateFormat(format)
	if err != nil {
		return "", err
	}

	return format, nil
}
