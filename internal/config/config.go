// Package config provides the configuration structure for the podcast-service.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobSubject             string `toml:"job_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// TTSServiceConfig holds the settings for the speech synthesis service.
type TTSServiceConfig struct {
	URL            string `toml:"url"`
	FFmpegPath     string `toml:"ffmpeg_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Workers        int    `toml:"workers"`
	SampleRate     int    `toml:"sample_rate"`
}

// AudioConfig holds the episode mix settings.
type AudioConfig struct {
	Format          string  `toml:"format"`
	AssetsDir       string  `toml:"assets_dir"`
	MusicPath       string  `toml:"music_path"`
	PauseMS         int     `toml:"pause_ms"`
	TransitionMS    int     `toml:"transition_ms"`
	SegmentPeakDBFS float64 `toml:"segment_peak_dbfs"`
	FinalPeakDBFS   float64 `toml:"final_peak_dbfs"`
	MusicGainDB     float64 `toml:"music_gain_db"`
}

// RetryConfig parameterises one retry policy.
type RetryConfig struct {
	BaseMS               int     `toml:"base_ms"`
	MaxDelayMS           int     `toml:"max_delay_ms"`
	MaxAttempts          int     `toml:"max_attempts"`
	TransientMaxAttempts int     `toml:"transient_max_attempts"`
	JitterFraction       float64 `toml:"jitter_fraction"`
}

// RetrySection holds one policy per call site.
type RetrySection struct {
	Papers  RetryConfig `toml:"papers"`
	Speech  RetryConfig `toml:"speech"`
	Compose RetryConfig `toml:"compose"`
}

// ArxivConfig holds the paper source settings.
type ArxivConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLMConfig selects the chat-completions backend for script composition.
type LLMConfig struct {
	APIKeyEnv   string  `toml:"api_key_env"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// StorageConfig selects where rendered episodes are stored.
type StorageConfig struct {
	Driver    string `toml:"driver"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// DatabaseConfig locates the job store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// JobsConfig tunes job execution.
type JobsConfig struct {
	DefaultVoice        string `toml:"default_voice"`
	MaxPreferencePapers int    `toml:"max_preference_papers"`
	PropagateFailures   bool   `toml:"propagate_failures"`
}

// WorkerConfig tunes the NATS worker.
type WorkerConfig struct {
	Concurrency          int `toml:"concurrency"`
	ScriptTimeoutSeconds int `toml:"script_timeout_seconds"`
	AudioTimeoutSeconds  int `toml:"audio_timeout_seconds"`
}

// MetricsConfig holds the Prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig       `toml:"nats"`
	TTS      TTSServiceConfig `toml:"tts_service"`
	Audio    AudioConfig      `toml:"audio"`
	Retry    RetrySection     `toml:"retry"`
	Arxiv    ArxivConfig      `toml:"arxiv"`
	LLM      LLMConfig        `toml:"llm"`
	Storage  StorageConfig    `toml:"storage"`
	Database DatabaseConfig   `toml:"database"`
	Jobs     JobsConfig       `toml:"jobs"`
	Worker   WorkerConfig     `toml:"worker"`
	Metrics  MetricsConfig    `toml:"metrics"`
	Paths    PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the podcast-service through the
// configurator, then applies defaults and validates.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads a TOML file directly.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML data, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
