package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/motion-compare/internal/config"
	"github.com/tendant/motion-compare/internal/logging"
	"github.com/tendant/motion-compare/internal/pipeline"
)

// commandContext lazily loads configuration and models shared by subcommands
type commandContext struct {
	envFile  *string
	logLevel *string

	cfg      *config.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var files []string
	if *c.envFile != "" {
		files = append(files, *c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if *c.logLevel != "" {
		cfg.LogLevel = *c.logLevel
	}
	c.cfg = cfg
	c.logger = logging.New(os.Stderr, cfg.LogLevel)
	return cfg, nil
}

func (c *commandContext) ensurePipeline() (*pipeline.Pipeline, error) {
	if c.pipeline != nil {
		return c.pipeline, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.pipeline = p
	return p, nil
}

func (c *commandContext) close() {
	if c.pipeline != nil {
		c.pipeline.Close()
		c.pipeline = nil
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	var logLevel string

	ctx := &commandContext{envFile: &envFile, logLevel: &logLevel}

	rootCmd := &cobra.Command{
		Use:           "comparectl",
		Short:         "Inspect and compare exercise videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newDetectCommand(ctx))
	rootCmd.AddCommand(newEmbedCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newResultsCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand())

	return rootCmd
}
