package audio_test

import (
	"testing"
	"time"

	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultMixSettings_IsValid(t *testing.T) {
	t.Parallel()

	settings := audio.NewDefaultMixSettings()

	require.NoError(t, settings.Validate())
	assert.Equal(t, audio.FORMAT_WAV, settings.Format)
	assert.Equal(t, 500*time.Millisecond, settings.PauseDuration)
}

func TestMixSettings_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*audio.MixSettings)
	}{
		{name: "sample rate too low", mutate: func(s *audio.MixSettings) { s.SampleRate = 100 }},
		{name: "negative pause", mutate: func(s *audio.MixSettings) { s.PauseDuration = -time.Second }},
		{name: "zero trim chunk", mutate: func(s *audio.MixSettings) { s.TrimChunk = 0 }},
		{name: "positive peak", mutate: func(s *audio.MixSettings) { s.FinalPeakDBFS = 3 }},
		{name: "positive music gain", mutate: func(s *audio.MixSettings) { s.MusicGainDB = 6 }},
		{name: "fade fraction", mutate: func(s *audio.MixSettings) { s.MusicFadeFraction = 0.9 }},
		{name: "unknown format", mutate: func(s *audio.MixSettings) { s.Format = "aiff" }},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			settings := audio.NewDefaultMixSettings()
			testCase.mutate(&settings)

			assert.ErrorIs(t, settings.Validate(), audio.ErrInvalidSettings)
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	format, err := audio.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, audio.FORMAT_WAV, format)

	format, err = audio.ParseFormat("mp3")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", format.ContentType())

	_, err = audio.ParseFormat("aiff")
	assert.ErrorIs(t, err, audio.ErrInvalidSettings)
}
