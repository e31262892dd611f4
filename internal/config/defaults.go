package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/papers"
	"github.com/book-expert/podcast-service/internal/retry"
	"github.com/book-expert/podcast-service/internal/tts/audio"
	"github.com/book-expert/podcast-service/internal/tts/ttsutils"
)

// Storage drivers.
const (
	StorageNATS  = "nats"
	StorageMinio = "minio"
)

const (
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultJobSubject      = "podcast.jobs"
	defaultQueueGroup      = "podcast-workers"
	defaultAudioBucket     = "PODCAST_AUDIO"
	defaultTTSURL          = "http://localhost:8000"
	defaultTTSTimeout      = 120
	defaultTTSWorkers      = 4
	defaultArxivTimeout    = 30
	defaultAPIKeyEnv       = "OPENAI_API_KEY"
	defaultMinioBucket     = "podcasts"
	defaultDatabaseFile    = "podcast-service.db"
	defaultScriptTimeout   = 600
	defaultAudioTimeout    = 3600
	defaultConcurrency     = 1
	defaultMaxPrefPapers   = 5
	defaultJitterFraction  = 0.1
	defaultMaxRetryDelayMS = 60000
)

const errFmtInvalid = "%w: %s"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Per call site retry defaults. Papers back off from one second up to five
// times; speech and compose calls start at two seconds with three attempts.
var (
	defaultPapersRetry  = RetryConfig{BaseMS: 1000, MaxDelayMS: defaultMaxRetryDelayMS, MaxAttempts: 5, TransientMaxAttempts: 3, JitterFraction: defaultJitterFraction}
	defaultSpeechRetry  = RetryConfig{BaseMS: 2000, MaxDelayMS: defaultMaxRetryDelayMS, MaxAttempts: 3, TransientMaxAttempts: 3, JitterFraction: defaultJitterFraction}
	defaultComposeRetry = RetryConfig{BaseMS: 2000, MaxDelayMS: defaultMaxRetryDelayMS, MaxAttempts: 3, TransientMaxAttempts: 3, JitterFraction: defaultJitterFraction}
)

// ApplyDefaults fills every zero value with its default. Peak levels of
// exactly 0 dBFS count as unset.
func (c *Config) ApplyDefaults() {
	c.NATS.URL = orString(c.NATS.URL, defaultNATSURL)
	c.NATS.JobSubject = orString(c.NATS.JobSubject, defaultJobSubject)
	c.NATS.QueueGroup = orString(c.NATS.QueueGroup, defaultQueueGroup)
	c.NATS.AudioObjectStoreBucket = orString(c.NATS.AudioObjectStoreBucket, defaultAudioBucket)

	c.TTS.URL = orString(c.TTS.URL, defaultTTSURL)
	c.TTS.TimeoutSeconds = orInt(c.TTS.TimeoutSeconds, defaultTTSTimeout)
	c.TTS.Workers = orInt(c.TTS.Workers, defaultTTSWorkers)
	c.TTS.SampleRate = orInt(c.TTS.SampleRate, audio.DEFAULT_SAMPLE_RATE)

	c.Audio.Format = orString(c.Audio.Format, string(audio.FORMAT_WAV))
	c.Audio.PauseMS = orInt(c.Audio.PauseMS, int(audio.DEFAULT_PAUSE/time.Millisecond))
	c.Audio.TransitionMS = orInt(c.Audio.TransitionMS, int(audio.DEFAULT_TRANSITION/time.Millisecond))
	c.Audio.SegmentPeakDBFS = orFloat(c.Audio.SegmentPeakDBFS, audio.DEFAULT_SEGMENT_PEAK_DBFS)
	c.Audio.FinalPeakDBFS = orFloat(c.Audio.FinalPeakDBFS, audio.DEFAULT_FINAL_PEAK_DBFS)
	c.Audio.MusicGainDB = orFloat(c.Audio.MusicGainDB, audio.DEFAULT_MUSIC_GAIN_DB)

	c.Retry.Papers.applyDefaults(defaultPapersRetry)
	c.Retry.Speech.applyDefaults(defaultSpeechRetry)
	c.Retry.Compose.applyDefaults(defaultComposeRetry)

	c.Arxiv.BaseURL = orString(c.Arxiv.BaseURL, papers.DefaultBaseURL)
	c.Arxiv.TimeoutSeconds = orInt(c.Arxiv.TimeoutSeconds, defaultArxivTimeout)

	c.LLM.APIKeyEnv = orString(c.LLM.APIKeyEnv, defaultAPIKeyEnv)

	c.Storage.Driver = orString(c.Storage.Driver, StorageNATS)
	c.Storage.Bucket = orString(c.Storage.Bucket, defaultMinioBucket)

	c.Paths.WorkDir = orString(c.Paths.WorkDir, ttsutils.GetWorkDir())
	c.Paths.BaseLogsDir = orString(c.Paths.BaseLogsDir, filepath.Join(c.Paths.WorkDir, "logs"))
	c.Database.Path = orString(c.Database.Path, filepath.Join(c.Paths.WorkDir, defaultDatabaseFile))

	c.Jobs.DefaultVoice = orString(c.Jobs.DefaultVoice, string(core.VoicePreferenceAuto))
	c.Jobs.MaxPreferencePapers = orInt(c.Jobs.MaxPreferencePapers, defaultMaxPrefPapers)

	c.Worker.Concurrency = orInt(c.Worker.Concurrency, defaultConcurrency)
	c.Worker.ScriptTimeoutSeconds = orInt(c.Worker.ScriptTimeoutSeconds, defaultScriptTimeout)
	c.Worker.AudioTimeoutSeconds = orInt(c.Worker.AudioTimeoutSeconds, defaultAudioTimeout)
}

func (r *RetryConfig) applyDefaults(defaults RetryConfig) {
	r.BaseMS = orInt(r.BaseMS, defaults.BaseMS)
	r.MaxDelayMS = orInt(r.MaxDelayMS, defaults.MaxDelayMS)
	r.MaxAttempts = orInt(r.MaxAttempts, defaults.MaxAttempts)
	r.TransientMaxAttempts = orInt(r.TransientMaxAttempts, defaults.TransientMaxAttempts)
	r.JitterFraction = orFloat(r.JitterFraction, defaults.JitterFraction)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	_, err := c.MixSettings()
	if err != nil {
		return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, err.Error())
	}

	if _, ok := core.ParseVoicePreference(c.Jobs.DefaultVoice); !ok {
		return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "unknown jobs.default_voice "+c.Jobs.DefaultVoice)
	}

	for name, policy := range map[string]RetryConfig{
		"papers":  c.Retry.Papers,
		"speech":  c.Retry.Speech,
		"compose": c.Retry.Compose,
	} {
		if policy.BaseMS < 0 || policy.MaxAttempts < 1 || policy.TransientMaxAttempts < 1 {
			return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "retry."+name+" needs a non-negative base and at least one attempt")
		}

		if policy.JitterFraction < 0 || policy.JitterFraction > 1 {
			return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "retry."+name+".jitter_fraction must be between 0 and 1")
		}
	}

	switch c.Storage.Driver {
	case StorageNATS:
	case StorageMinio:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "storage.endpoint is required for the minio driver")
		}
	default:
		return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "unknown storage.driver "+c.Storage.Driver)
	}

	if c.Worker.Concurrency < 1 || c.TTS.Workers < 1 {
		return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, "worker.concurrency and tts_service.workers must be positive")
	}

	return nil
}

// MixSettings converts the audio section into validated mix settings.
func (c *Config) MixSettings() (audio.MixSettings, error) {
	format, err := audio.ParseFormat(c.Audio.Format)
	if err != nil {
		return audio.MixSettings{}, err
	}

	settings := audio.NewDefaultMixSettings()
	settings.Format = format
	settings.AssetsDir = c.Audio.AssetsDir
	settings.MusicPath = c.Audio.MusicPath
	settings.SampleRate = c.TTS.SampleRate
	settings.PauseDuration = time.Duration(c.Audio.PauseMS) * time.Millisecond
	settings.TransitionDuration = time.Duration(c.Audio.TransitionMS) * time.Millisecond
	settings.SegmentPeakDBFS = c.Audio.SegmentPeakDBFS
	settings.FinalPeakDBFS = c.Audio.FinalPeakDBFS
	settings.MusicGainDB = c.Audio.MusicGainDB

	err = settings.Validate()
	if err != nil {
		return audio.MixSettings{}, err
	}

	return settings, nil
}

// Policy builds the named retry policy from r.
func (r RetryConfig) Policy(name string) retry.Policy {
	policy := retry.New(name, time.Duration(r.BaseMS)*time.Millisecond, r.MaxAttempts, r.TransientMaxAttempts, r.JitterFraction)
	policy.MaxDelay = time.Duration(r.MaxDelayMS) * time.Millisecond

	return policy
}

// Minio returns the MinIO connection settings.
func (s StorageConfig) Minio() objectstore.MinioConfig {
	return objectstore.MinioConfig{
		Endpoint:  s.Endpoint,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    s.Bucket,
		Region:    s.Region,
		UseSSL:    s.UseSSL,
	}
}

// Timeouts returns the per-kind worker timeouts.
func (w WorkerConfig) Timeouts() map[core.JobKind]time.Duration {
	return map[core.JobKind]time.Duration{
		core.JobKindScript: time.Duration(w.ScriptTimeoutSeconds) * time.Second,
		core.JobKindAudio:  time.Duration(w.AudioTimeoutSeconds) * time.Second,
	}
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func orInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}

	return value
}

func orFloat(value, fallback float64) float64 {
	if value == 0 {
		return fallback
	}

	return value
}
