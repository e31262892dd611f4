package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/composer"
	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobs"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/papers"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/worker"
)

const clientName = "podcast-service"

func connectNATS(cfg *config.Config) (*nats.Conn, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(clientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	return natsConnection, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, natsConnection *nats.Conn) (core.BlobStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageMinio:
		store, err := objectstore.NewMinioObjectStore(cfg.Storage.Minio(), cfg.Paths.WorkDir)
		if err != nil {
			return nil, err
		}

		err = store.EnsureBucket(ctx)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		return objectstore.NewNatsObjectStore(jetstreamContext, cfg.NATS.AudioObjectStoreBucket, cfg.Paths.WorkDir)
	}
}

func newAssembler(cfg *config.Config, log *logger.Logger, collectors *metrics.Collectors) (*tts.Assembler, error) {
	settings, err := cfg.MixSettings()
	if err != nil {
		return nil, err
	}

	client := tts.NewHTTPClient(cfg.TTS.URL, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second, cfg.TTS.SampleRate)

	return tts.NewAssembler(client, log, tts.AssemblerConfig{
		VoiceOverrides: nil,
		Metrics:        collectors,
		Encoder:        tts.NewEncoder(log, cfg.TTS.FFmpegPath),
		SpeechPolicy:   cfg.Retry.Speech.Policy("speech"),
		Settings:       settings,
		Workers:        cfg.TTS.Workers,
	})
}

func newComposer(cfg *config.Config, log *logger.Logger) *composer.Composer {
	generator := composer.NewOpenAIGenerator(composer.OpenAIConfig{
		APIKey:      os.Getenv(cfg.LLM.APIKeyEnv),
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	return composer.New(generator, cfg.Retry.Compose.Policy("compose"), log)
}

// pipeline holds everything a worker needs to run jobs.
type pipeline struct {
	runner         *jobs.Runner
	natsConnection *nats.Conn
}

// newPipeline builds the runner with all collaborators. store is owned by
// the caller.
func newPipeline(
	ctx context.Context,
	cfg *config.Config,
	store *jobstore.Store,
	log *logger.Logger,
	collectors *metrics.Collectors,
) (*pipeline, error) {
	natsConnection, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}

	runner, err := buildRunner(ctx, cfg, store, natsConnection, log, collectors)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	return &pipeline{runner: runner, natsConnection: natsConnection}, nil
}

func buildRunner(
	ctx context.Context,
	cfg *config.Config,
	store *jobstore.Store,
	natsConnection *nats.Conn,
	log *logger.Logger,
	collectors *metrics.Collectors,
) (*jobs.Runner, error) {
	blobs, err := newBlobStore(ctx, cfg, natsConnection)
	if err != nil {
		return nil, err
	}

	assembler, err := newAssembler(cfg, log, collectors)
	if err != nil {
		return nil, err
	}

	enqueuer, err := worker.NewNatsEnqueuer(natsConnection, cfg.NATS.JobSubject)
	if err != nil {
		return nil, err
	}

	arxiv := papers.NewClient(cfg.Arxiv.BaseURL, time.Duration(cfg.Arxiv.TimeoutSeconds)*time.Second, log)
	defaultVoice, _ := core.ParseVoicePreference(cfg.Jobs.DefaultVoice)

	return jobs.NewRunner(jobs.Dependencies{
		Store:       store,
		Papers:      arxiv,
		Composer:    newComposer(cfg, log),
		Renderer:    assembler,
		Blobs:       blobs,
		Enqueuer:    enqueuer,
		PaperPolicy: cfg.Retry.Papers.Policy("papers").WithProbe(arxiv.Probe),
		Metrics:     collectors,
		Log:         log,
	}, jobs.Options{
		DefaultVoice:        defaultVoice,
		MaxPreferencePapers: cfg.Jobs.MaxPreferencePapers,
		PropagateFailures:   cfg.Jobs.PropagateFailures,
	}), nil
}

// newDispatchRunner builds a runner that only records and enqueues jobs, for
// commands that never execute them.
func newDispatchRunner(
	cfg *config.Config,
	store *jobstore.Store,
	natsConnection *nats.Conn,
	log *logger.Logger,
) (*jobs.Runner, error) {
	var enqueuer jobs.Enqueuer

	if natsConnection != nil {
		natsEnqueuer, err := worker.NewNatsEnqueuer(natsConnection, cfg.NATS.JobSubject)
		if err != nil {
			return nil, err
		}

		enqueuer = natsEnqueuer
	}

	defaultVoice, _ := core.ParseVoicePreference(cfg.Jobs.DefaultVoice)

	return jobs.NewRunner(jobs.Dependencies{
		Store:       store,
		Papers:      nil,
		Composer:    nil,
		Renderer:    nil,
		Blobs:       nil,
		Enqueuer:    enqueuer,
		PaperPolicy: cfg.Retry.Papers.Policy("papers"),
		Metrics:     nil,
		Log:         log,
	}, jobs.Options{
		DefaultVoice:        defaultVoice,
		MaxPreferencePapers: cfg.Jobs.MaxPreferencePapers,
		PropagateFailures:   cfg.Jobs.PropagateFailures,
	}), nil
}
