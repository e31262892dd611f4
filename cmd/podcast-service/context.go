package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/jobstore"
)

const bootstrapLogFile = "podcast-service-bootstrap.log"

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		configOnce: sync.Once{},
		config:     nil,
		configErr:  nil,
	}
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = c.loadConfig()
	})

	return c.config, c.configErr
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	err := loadEnvFile(strings.TrimSpace(*c.envFlag))
	if err != nil {
		return nil, err
	}

	path := strings.TrimSpace(*c.configFlag)
	if path != "" {
		return config.LoadFile(path)
	}

	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg, nil
}

// loadEnvFile applies path to the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

// openLogger creates the command's logger under the configured log directory.
func (c *commandContext) openLogger(fileName string) (*config.Config, *logger.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir, fileName)
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

// withStore opens the job store for the duration of fn.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *jobstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	store, err := jobstore.Open(cfg.Database.Path)
	if err != nil {
		return err
	}

	defer func() { _ = store.Close() }()

	return fn(cfg, store)
}
