package tts_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/retry"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 8000
	failMarker     = "UNSPEAKABLE"
	flakyMarker    = "FLAKY"
)

var (
	errSynthesizerRejected = errors.New("synthesizer rejected text")
	errUnboundVoice        = errors.New("synthesizer got no voice")
)

// fakeSynthesizer returns a short tone for every request, fails permanently on
// failMarker or an unbound voice and transiently once on flakyMarker.
type fakeSynthesizer struct {
	mu     sync.Mutex
	voices map[string]string
	flaky  map[string]bool
	calls  atomic.Int32
}

func newFakeSynthesizer() *fakeSynthesizer {
	return &fakeSynthesizer{
		mu:     sync.Mutex{},
		voices: make(map[string]string),
		flaky:  make(map[string]bool),
		calls:  atomic.Int32{},
	}
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, annotatedText string, voice core.VoiceProfile) ([]byte, error) {
	f.calls.Add(1)

	if strings.Contains(annotatedText, failMarker) {
		return nil, errSynthesizerRejected
	}

	if voice.Name == "" || voice.SpeakingRate <= 0 {
		return nil, errUnboundVoice
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.Contains(annotatedText, flakyMarker) && !f.flaky[annotatedText] {
		f.flaky[annotatedText] = true

		return nil, core.ErrTransient
	}

	f.voices[annotatedText] = voice.Name

	return audio.EncodeWAV(audio.Tone(testSampleRate, 220, 300*time.Millisecond))
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "assembler-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func testSettings() audio.MixSettings {
	settings := audio.NewDefaultMixSettings()
	settings.SampleRate = testSampleRate

	return settings
}

func newTestAssembler(t *testing.T, synthesizer core.SpeechSynthesizer, settings audio.MixSettings) *tts.Assembler {
	t.Helper()

	assembler, err := tts.NewAssembler(synthesizer, createTestLogger(t), tts.AssemblerConfig{
		VoiceOverrides: nil,
		Metrics:        metrics.New(),
		Encoder:        nil,
		SpeechPolicy:   retry.New("speech", time.Millisecond, 2, 2, 0),
		Settings:       settings,
		Workers:        2,
	})
	require.NoError(t, err)

	return assembler
}

func scriptWithLines(lines ...string) *core.Script {
	speakers := []string{"Alex", "Jordan"}
	segments := make([]core.Segment, 0, len(lines))

	for i, line := range lines {
		segments = append(segments, core.Segment{Speaker: speakers[i%len(speakers)], Text: line})
	}

	return &core.Script{
		Title:    "Episode",
		Sections: []core.Section{{Title: "Intro", Segments: segments}},
	}
}

func TestNewAssembler_RejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.SampleRate = 10

	_, err := tts.NewAssembler(newFakeSynthesizer(), createTestLogger(t), tts.AssemblerConfig{
		VoiceOverrides: nil,
		Metrics:        nil,
		Encoder:        nil,
		SpeechPolicy:   retry.New("speech", time.Millisecond, 1, 1, 0),
		Settings:       settings,
		Workers:        0,
	})
	assert.ErrorIs(t, err, audio.ErrInvalidSettings)
}

func TestRender_ProducesDecodableAudio(t *testing.T) {
	t.Parallel()

	synthesizer := newFakeSynthesizer()
	assembler := newTestAssembler(t, synthesizer, testSettings())

	result, err := assembler.Render(context.Background(), scriptWithLines("Hello there.", "Hi Alex."), core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	assert.Equal(t, audio.FORMAT_WAV, result.Format)
	assert.Equal(t, 2, result.SegmentsTotal)
	assert.Equal(t, 2, result.SegmentsRendered)
	assert.Zero(t, result.SegmentsSkipped)
	assert.Positive(t, result.Duration)

	decoded, err := audio.DecodeWAV(result.Audio, testSampleRate)
	require.NoError(t, err)
	assert.Positive(t, decoded.Len())
	assert.InDelta(t, audio.DEFAULT_FINAL_PEAK_DBFS, decoded.PeakDBFS(), 0.1)

	synthesizer.mu.Lock()
	defer synthesizer.mu.Unlock()

	assert.Len(t, synthesizer.voices, 2)

	names := make(map[string]struct{})
	for _, name := range synthesizer.voices {
		names[name] = struct{}{}
	}

	assert.Len(t, names, 2, "each speaker gets its own voice")
}

func TestRender_DurationGrowsWithSegmentCount(t *testing.T) {
	t.Parallel()

	assembler := newTestAssembler(t, newFakeSynthesizer(), testSettings())

	previous := time.Duration(0)

	for count := 1; count <= 4; count++ {
		lines := make([]string, count)
		for i := range lines {
			lines[i] = "Line number one."
		}

		result, err := assembler.Render(context.Background(), scriptWithLines(lines...), core.VoicePreferenceAuto, nil)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, result.Duration, previous)
		previous = result.Duration
	}
}

func TestRender_SkipsFailedSegments(t *testing.T) {
	t.Parallel()

	assembler := newTestAssembler(t, newFakeSynthesizer(), testSettings())

	complete, err := assembler.Render(context.Background(), scriptWithLines("One.", "Two.", "Three."), core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	partial, err := assembler.Render(
		context.Background(),
		scriptWithLines("One.", failMarker+".", "Three."),
		core.VoicePreferenceAuto,
		nil,
	)
	require.NoError(t, err)

	assert.Equal(t, 3, partial.SegmentsTotal)
	assert.Equal(t, 2, partial.SegmentsRendered)
	assert.Equal(t, 1, partial.SegmentsSkipped)
	assert.Less(t, partial.Duration, complete.Duration)
}

func TestRender_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	synthesizer := newFakeSynthesizer()
	assembler := newTestAssembler(t, synthesizer, testSettings())

	result, err := assembler.Render(context.Background(), scriptWithLines(flakyMarker+" line."), core.VoicePreferenceMale, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SegmentsRendered)
	assert.Equal(t, int32(2), synthesizer.calls.Load())
}

func TestRender_NoAudioProduced(t *testing.T) {
	t.Parallel()

	assembler := newTestAssembler(t, newFakeSynthesizer(), testSettings())

	_, err := assembler.Render(
		context.Background(),
		scriptWithLines(failMarker+" one.", failMarker+" two."),
		core.VoicePreferenceAuto,
		nil,
	)
	require.ErrorIs(t, err, core.ErrRenderFailed)
	assert.Contains(t, err.Error(), "no audio produced")

	_, err = assembler.Render(context.Background(), scriptWithLines("[music]", "  "), core.VoicePreferenceAuto, nil)
	assert.ErrorIs(t, err, core.ErrRenderFailed)
}

func TestRender_CancellationStopsFurtherSegments(t *testing.T) {
	t.Parallel()

	synthesizer := newFakeSynthesizer()
	settings := testSettings()

	assembler, err := tts.NewAssembler(synthesizer, createTestLogger(t), tts.AssemblerConfig{
		VoiceOverrides: nil,
		Metrics:        nil,
		Encoder:        nil,
		SpeechPolicy:   retry.New("speech", time.Millisecond, 1, 1, 0),
		Settings:       settings,
		Workers:        1,
	})
	require.NoError(t, err)

	checks := 0
	cancelAfterFirst := func(context.Context) (bool, error) {
		checks++

		return checks > 1, nil
	}

	_, err = assembler.Render(
		context.Background(),
		scriptWithLines("One.", "Two.", "Three.", "Four."),
		core.VoicePreferenceAuto,
		cancelAfterFirst,
	)
	require.ErrorIs(t, err, core.ErrCancelled)
	assert.Equal(t, int32(1), synthesizer.calls.Load())
}

func TestRender_CancelledContext(t *testing.T) {
	t.Parallel()

	synthesizer := newFakeSynthesizer()
	assembler := newTestAssembler(t, synthesizer, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := assembler.Render(ctx, scriptWithLines("One."), core.VoicePreferenceAuto, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, core.ErrRenderFailed)
	require.NotErrorIs(t, err, core.ErrCancelled)
	assert.Zero(t, synthesizer.calls.Load())
}

// slowSynthesizer blocks each call for delay or until ctx ends.
type slowSynthesizer struct {
	delay time.Duration
}

func (s slowSynthesizer) Synthesize(ctx context.Context, _ string, _ core.VoiceProfile) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}

	return audio.EncodeWAV(audio.Tone(testSampleRate, 220, 100*time.Millisecond))
}

func TestRender_DeadlineIsNotReportedAsCancellation(t *testing.T) {
	t.Parallel()

	assembler, err := tts.NewAssembler(slowSynthesizer{delay: 50 * time.Millisecond}, createTestLogger(t), tts.AssemblerConfig{
		VoiceOverrides: nil,
		Metrics:        nil,
		Encoder:        nil,
		SpeechPolicy:   retry.New("speech", time.Millisecond, 1, 1, 0),
		Settings:       testSettings(),
		Workers:        1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	neverCancelled := func(context.Context) (bool, error) { return false, nil }

	_, err = assembler.Render(ctx, scriptWithLines("One.", "Two.", "Three.", "Four."), core.VoicePreferenceAuto, neverCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, core.ErrRenderFailed)
	require.NotErrorIs(t, err, core.ErrCancelled)
	assert.Contains(t, err.Error(), "render stopped after")
}

func TestRender_AddsIntroAndSkipsMissingOutro(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	intro := audio.Tone(testSampleRate, 330, time.Second)
	require.NoError(t, audio.WriteWAVFile(filepath.Join(assetsDir, "intro.wav"), intro))

	plain := newTestAssembler(t, newFakeSynthesizer(), testSettings())

	withAssets := testSettings()
	withAssets.AssetsDir = assetsDir
	jingled := newTestAssembler(t, newFakeSynthesizer(), withAssets)

	script := scriptWithLines("Hello.")

	plainResult, err := plain.Render(context.Background(), script, core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	jingledResult, err := jingled.Render(context.Background(), script, core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	expected := plainResult.Duration + time.Second + audio.DEFAULT_JINGLE_GAP
	assert.InDelta(t, expected.Seconds(), jingledResult.Duration.Seconds(), 0.01)
}

func TestRender_MissingMusicIsNotFatal(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MusicPath = filepath.Join(t.TempDir(), "missing.wav")

	assembler := newTestAssembler(t, newFakeSynthesizer(), settings)

	result, err := assembler.Render(context.Background(), scriptWithLines("Hello."), core.VoicePreferenceAuto, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Audio)
}

func TestRender_MusicBedKeepsDuration(t *testing.T) {
	t.Parallel()

	musicPath := filepath.Join(t.TempDir(), "bed.wav")
	require.NoError(t, audio.WriteWAVFile(musicPath, audio.Tone(testSampleRate, 110, 200*time.Millisecond)))

	settings := testSettings()
	settings.MusicPath = musicPath

	plain := newTestAssembler(t, newFakeSynthesizer(), testSettings())
	scored := newTestAssembler(t, newFakeSynthesizer(), settings)
	script := scriptWithLines("Hello.", "Welcome.")

	plainResult, err := plain.Render(context.Background(), script, core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	scoredResult, err := scored.Render(context.Background(), script, core.VoicePreferenceAuto, nil)
	require.NoError(t, err)

	assert.Equal(t, plainResult.Duration, scoredResult.Duration)
	assert.NotEqual(t, plainResult.Audio, scoredResult.Audio)
}

func TestRender_MusicPlaysUnderIntro(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	require.NoError(t, audio.WriteWAVFile(filepath.Join(assetsDir, "intro.wav"), audio.Silence(testSampleRate, time.Second)))

	musicPath := filepath.Join(t.TempDir(), "bed.wav")
	require.NoError(t, audio.WriteWAVFile(musicPath, audio.Tone(testSampleRate, 110, 200*time.Millisecond)))

	silentIntro := testSettings()
	silentIntro.AssetsDir = assetsDir

	scored := silentIntro
	scored.MusicPath = musicPath

	introPeak := func(settings audio.MixSettings) float64 {
		assembler := newTestAssembler(t, newFakeSynthesizer(), settings)

		result, err := assembler.Render(context.Background(), scriptWithLines("Hello."), core.VoicePreferenceAuto, nil)
		require.NoError(t, err)

		decoded, err := audio.DecodeWAV(result.Audio, testSampleRate)
		require.NoError(t, err)

		window := &audio.Buffer{
			Samples:    decoded.Samples[testSampleRate/2 : testSampleRate*9/10],
			SampleRate: testSampleRate,
		}

		return window.Peak()
	}

	assert.Zero(t, introPeak(silentIntro))
	assert.Positive(t, introPeak(scored))
}

func TestRender_BlankSpeakerIsVoiced(t *testing.T) {
	t.Parallel()

	synthesizer := newFakeSynthesizer()
	assembler := newTestAssembler(t, synthesizer, testSettings())

	script := &core.Script{
		Title: "Episode",
		Sections: []core.Section{{
			Title: "Intro",
			Segments: []core.Segment{
				{Speaker: "", Text: "Hello there."},
				{Speaker: "  ", Text: "Still no name."},
			},
		}},
	}

	result, err := assembler.Render(context.Background(), script, core.VoicePreferenceAuto, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SegmentsRendered)
	assert.Zero(t, result.SegmentsSkipped)
}
