package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"twop/internal/config"
	"twop/internal/logging"
	"twop/internal/services"
	"twop/internal/stage"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string
	noColorFlag   *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string, noColorFlag *bool) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
		noColorFlag:   noColorFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// ensureLogger builds the process logger once. Flags override the config
// file so a one-off --log-level debug never requires editing config.toml.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		level := cfg.Logging.Level
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = strings.TrimSpace(*c.logLevelFlag)
		}
		format := cfg.Logging.Format
		if c.logFormatFlag != nil && strings.TrimSpace(*c.logFormatFlag) != "" {
			format = strings.TrimSpace(*c.logFormatFlag)
		}
		logger, err := logging.New(logging.Options{
			Level:  level,
			Format: format,
			Output: os.Stderr,
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// runContext derives the execution context for one invocation: interrupt
// cancellation plus a fresh run id so every log line and provenance attr
// written by this run can be correlated.
func (c *commandContext) runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	sigCtx, cancel := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	return services.WithRunID(sigCtx, uuid.NewString()), cancel
}

// runStage executes fn over every path as one batch and reduces the outcome
// to the command's exit error.
func (c *commandContext) runStage(cmd *cobra.Command, stageName string, paths []string, fn func(context.Context, string) error) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	runCtx, cancel := c.runContext(cmd)
	defer cancel()

	outcome := stage.Run(runCtx, logger, stageName, paths, fn)
	return outcome.Err()
}

func (c *commandContext) colorize(file *os.File) bool {
	if c.noColorFlag != nil && *c.noColorFlag {
		return false
	}
	return isTerminal(file)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
