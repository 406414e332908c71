package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dubforge/internal/config"
	"dubforge/internal/logging"
)

// commandContext resolves configuration once per invocation and hands out a
// built app to each subcommand's RunE.
type commandContext struct {
	configFlag *string
	logLevel   *string
	verbose    *bool
	jsonOutput *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevel *string, verbose, jsonOutput *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
		verbose:    verbose,
		jsonOutput: jsonOutput,
	}
}

// JSONMode returns true when the user passed --json.
func (c *commandContext) JSONMode() bool {
	return c != nil && c.jsonOutput != nil && *c.jsonOutput
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if c != nil && c.logLevel != nil {
		if trimmed := strings.TrimSpace(*c.logLevel); trimmed != "" {
			return trimmed
		}
	}
	if c != nil && c.verbose != nil && *c.verbose {
		return "debug"
	}
	if cfg != nil {
		if trimmed := strings.TrimSpace(cfg.Logging.Level); trimmed != "" {
			return trimmed
		}
	}
	return "info"
}

func (c *commandContext) logDevelopment(cfg *config.Config) bool {
	return strings.ToLower(strings.TrimSpace(c.resolvedLogLevel(cfg))) == "debug"
}

// newCLILogger creates a logger configured for CLI commands, writing to
// stdout using the config's configured format.
func (c *commandContext) newCLILogger(cfg *config.Config, component string) (*slog.Logger, error) {
	opts := logging.Options{
		Level:       c.resolvedLogLevel(cfg),
		Development: c.logDevelopment(cfg),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if component != "" {
		logger = logger.With(logging.String("component", component))
	}
	return logger, nil
}

// buildApp resolves config and wires a full app for the command to use.
func (c *commandContext) buildApp(component string) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newCLILogger(cfg, component)
	if err != nil {
		return nil, err
	}
	return buildApp(context.Background(), cfg, logger)
}
