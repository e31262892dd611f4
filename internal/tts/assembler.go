package tts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/retry"
	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/book-expert/podcast-service/internal/tts/text"
	"github.com/book-expert/podcast-service/internal/tts/voice"
)

const (
	defaultWorkers   = 4
	introAssetName   = "intro.wav"
	outroAssetName   = "outro.wav"
	speechCallSite   = "speech"
	errFmtNoAudio    = "%w: no audio produced from %d speech segments"
	errFmtRenderStop = "%w: render stopped after %d of %d speech segments"
)

// CancelCheck reports whether the job owning a render has been cancelled.
// It is polled before each segment starts.
type CancelCheck func(ctx context.Context) (bool, error)

// AssemblerConfig holds the tunables for an Assembler.
type AssemblerConfig struct {
	VoiceOverrides map[string]core.VoiceProfile
	Metrics        *metrics.Collectors
	Encoder        *Encoder
	SpeechPolicy   retry.Policy
	Settings       audio.MixSettings
	Workers        int
}

// RenderResult is the encoded episode plus render statistics.
type RenderResult struct {
	Format           audio.Format
	Audio            []byte
	Duration         time.Duration
	SampleRate       int
	SegmentsTotal    int
	SegmentsRendered int
	SegmentsSkipped  int
}

// Assembler renders a Script into a single mixed and normalised episode.
type Assembler struct {
	synthesizer core.SpeechSynthesizer
	sanitizer   *text.Sanitizer
	voices      *voice.Assigner
	encoder     *Encoder
	metrics     *metrics.Collectors
	log         *logger.Logger
	policy      retry.Policy
	settings    audio.MixSettings
	workers     int
}

// NewAssembler creates an Assembler around synthesizer.
func NewAssembler(synthesizer core.SpeechSynthesizer, log *logger.Logger, cfg AssemblerConfig) (*Assembler, error) {
	err := cfg.Settings.Validate()
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	encoder := cfg.Encoder
	if encoder == nil {
		encoder = NewEncoder(log, "")
	}

	assembler := &Assembler{
		synthesizer: synthesizer,
		sanitizer:   text.NewSanitizer(),
		voices:      voice.NewAssigner(cfg.VoiceOverrides),
		encoder:     encoder,
		metrics:     cfg.Metrics,
		log:         log,
		policy:      cfg.SpeechPolicy,
		settings:    cfg.Settings,
		workers:     workers,
	}

	assembler.policy = assembler.policy.WithOnRetry(func(attempt int, delay time.Duration, cause error) {
		log.Warn("Speech synthesis retry %d in %s: %v", attempt, delay, cause)
		cfg.Metrics.RetryAttempted(speechCallSite)
	})

	return assembler, nil
}

// Settings returns the mix settings used by the assembler.
func (a *Assembler) Settings() audio.MixSettings {
	return a.settings
}

// BuildPlan flattens script using the assembler's sanitizer and settings.
func (a *Assembler) BuildPlan(script *core.Script) []core.PlanItem {
	return BuildPlan(script, a.sanitizer, a.settings)
}

// Render synthesizes, mixes and encodes script. Segments that fail after
// retries are skipped; the render fails only when none succeed. cancelled may
// be nil.
func (a *Assembler) Render(
	ctx context.Context,
	script *core.Script,
	pref core.VoicePreference,
	cancelled CancelCheck,
) (*RenderResult, error) {
	started := time.Now()
	plan := a.BuildPlan(script)
	total := countSpeech(plan)

	if total == 0 {
		return nil, fmt.Errorf(errFmtNoAudio, core.ErrRenderFailed, total)
	}

	voices := a.voices.Assign(planSpeakers(plan), pref)

	speech, err := a.synthesize(ctx, plan, voices, cancelled)
	if err != nil {
		return nil, err
	}

	rendered := lo.CountBy(speech, func(buffer *audio.Buffer) bool { return buffer != nil })
	if rendered == 0 {
		return nil, fmt.Errorf(errFmtNoAudio, core.ErrRenderFailed, total)
	}

	mixed, err := a.mix(plan, speech)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRenderFailed, err)
	}

	encoded, err := a.encoder.Encode(ctx, mixed, a.settings.Format)
	if err != nil {
		return nil, err
	}

	a.metrics.ObserveRender(time.Since(started))
	a.log.Info("Rendered '%s': %d/%d segments, %s", script.Title, rendered, total, mixed.Duration())

	return &RenderResult{
		Format:           a.settings.Format,
		Audio:            encoded,
		Duration:         mixed.Duration(),
		SampleRate:       mixed.SampleRate,
		SegmentsTotal:    total,
		SegmentsRendered: rendered,
		SegmentsSkipped:  total - rendered,
	}, nil
}

// synthesize fills one decoded buffer per speech item, indexed like plan.
// Failed items stay nil.
func (a *Assembler) synthesize(
	ctx context.Context,
	plan []core.PlanItem,
	voices map[string]core.VoiceProfile,
	cancelled CancelCheck,
) ([]*audio.Buffer, error) {
	buffers := make([]*audio.Buffer, len(plan))

	var group errgroup.Group

	group.SetLimit(a.workers)

	scheduled := 0

	var stop error

	for index, item := range plan {
		if item.Kind != core.PlanSpeech {
			continue
		}

		stop = a.stopCause(ctx, cancelled)
		if stop != nil {
			break
		}

		scheduled++

		profile := voices[item.Speaker]

		group.Go(func() error {
			buffers[index] = a.synthesizeItem(ctx, item, profile)

			return nil
		})
	}

	_ = group.Wait()

	if stop == nil {
		stop = ctx.Err()
	}

	switch {
	case stop == nil:
		return buffers, nil
	case errors.Is(stop, core.ErrCancelled):
		return nil, fmt.Errorf(errFmtRenderStop, core.ErrCancelled, scheduled, countSpeech(plan))
	default:
		return nil, fmt.Errorf(errFmtRenderStop+": %w", core.ErrRenderFailed, scheduled, countSpeech(plan), stop)
	}
}

func (a *Assembler) synthesizeItem(ctx context.Context, item core.PlanItem, profile core.VoiceProfile) *audio.Buffer {
	data, err := retry.Do(ctx, a.policy, func(ctx context.Context) ([]byte, error) {
		return a.synthesizer.Synthesize(ctx, item.AnnotatedText, profile)
	})
	if err != nil {
		a.log.Warn("Skipping segment for speaker '%s' in section '%s': %v", item.Speaker, item.SectionTitle, err)
		a.metrics.SegmentProcessed(metrics.SegmentSkipped)

		return nil
	}

	buffer, err := audio.DecodeWAV(data, a.settings.SampleRate)
	if err != nil {
		a.log.Warn("Skipping undecodable segment for speaker '%s': %v", item.Speaker, err)
		a.metrics.SegmentProcessed(metrics.SegmentSkipped)

		return nil
	}

	a.metrics.SegmentProcessed(metrics.SegmentSynthesized)

	return buffer
}

// stopCause returns the context error once ctx is done, core.ErrCancelled
// once the owning job is cancelled, and nil otherwise.
func (a *Assembler) stopCause(ctx context.Context, cancelled CancelCheck) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	if cancelled == nil {
		return nil
	}

	isCancelled, err := cancelled(ctx)
	if err != nil {
		a.log.Warn("Cancellation check failed, continuing render: %v", err)

		return nil
	}

	if isCancelled {
		return core.ErrCancelled
	}

	return nil
}

// mix walks the plan in order and builds the final normalised track.
func (a *Assembler) mix(plan []core.PlanItem, speech []*audio.Buffer) (*audio.Buffer, error) {
	track := audio.NewBuffer(a.settings.SampleRate)
	dropPause := false

	for index, item := range plan {
		switch item.Kind {
		case core.PlanSpeech:
			if speech[index] == nil {
				dropPause = true

				continue
			}

			dropPause = false

			voiced := speech[index].TrimSilence(a.settings.SilenceThresholdDBFS, a.settings.TrimChunk)
			voiced.NormalizePeak(a.settings.SegmentPeakDBFS)

			err := track.Append(voiced)
			if err != nil {
				return nil, err
			}
		case core.PlanPause:
			if dropPause {
				dropPause = false

				continue
			}

			track.AppendSilence(item.Duration)
		case core.PlanTransition:
			dropPause = false

			err := track.Append(a.transition())
			if err != nil {
				return nil, err
			}
		}
	}

	// The music bed runs under the intro and the speech; the outro follows it.
	track, err := a.withJingle(track, introAssetName, true)
	if err != nil {
		return nil, err
	}

	a.overlayMusic(track)

	track, err = a.withJingle(track, outroAssetName, false)
	if err != nil {
		return nil, err
	}

	track.NormalizePeak(a.settings.FinalPeakDBFS)

	return track, nil
}

// transition is a short faded sting inside the transition window followed
// by extended silence.
func (a *Assembler) transition() *audio.Buffer {
	window := audio.Silence(a.settings.SampleRate, a.settings.TransitionDuration)

	sting := audio.Tone(a.settings.SampleRate, a.settings.StingFrequencyHz, a.settings.StingDuration)
	sting.FadeIn(a.settings.StingFade)
	sting.FadeOut(a.settings.StingFade)
	sting.ApplyGain(a.settings.StingGainDB)

	_ = window.Overlay(sting)
	window.AppendSilence(a.settings.TransitionSilence)

	return window
}

func (a *Assembler) overlayMusic(track *audio.Buffer) {
	if a.settings.MusicPath == "" || track.Len() == 0 {
		return
	}

	music, err := audio.LoadFile(a.settings.MusicPath, a.settings.SampleRate)
	if err != nil {
		a.log.Warn("Skipping background music: %v", err)

		return
	}

	bed := music.LoopTo(track.Len())
	fade := min(a.settings.MaxMusicFade, time.Duration(float64(track.Duration())*a.settings.MusicFadeFraction))
	bed.FadeIn(fade)
	bed.FadeOut(fade)
	bed.ApplyGain(a.settings.MusicGainDB)

	_ = track.Overlay(bed)
}

// withJingle puts the named asset before or after track, separated by the
// jingle gap. A missing asset leaves track as it is.
func (a *Assembler) withJingle(track *audio.Buffer, name string, before bool) (*audio.Buffer, error) {
	if a.settings.AssetsDir == "" {
		return track, nil
	}

	jingle := a.loadAsset(name)
	if jingle == nil {
		return track, nil
	}

	parts := []*audio.Buffer{track, audio.Silence(track.SampleRate, a.settings.JingleGap), jingle}
	if before {
		parts = []*audio.Buffer{jingle, parts[1], track}
	}

	episode := audio.NewBuffer(track.SampleRate)

	for _, part := range parts {
		err := episode.Append(part)
		if err != nil {
			return nil, err
		}
	}

	return episode, nil
}

func (a *Assembler) loadAsset(name string) *audio.Buffer {
	path := filepath.Join(a.settings.AssetsDir, name)

	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Warn("Asset '%s' not found, skipping", path)

		return nil
	}

	buffer, err := audio.LoadFile(path, a.settings.SampleRate)
	if err != nil {
		a.log.Warn("Skipping unreadable asset: %v", err)

		return nil
	}

	return buffer
}
