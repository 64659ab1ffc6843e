package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/lib/config"
	"github.com/icco/cinemate/lib/db"
	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// commandContext lazily loads what the subcommands share.
type commandContext struct {
	configFlag *string
	stdout     io.Writer

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		stdout:     os.Stdout,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = newLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

// openCatalog opens and migrates the catalog database. The returned func
// closes it.
func (c *commandContext) openCatalog() (*catalog.Store, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("Connecting to database", slog.String("path", cfg.Database.Path))
	gormDB, err := db.Open(cfg.Database.Path, c.logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				c.logger.Error("Failed to close database", slog.Any("error", err))
			}
		}
	}

	if err := db.RunMigrations(gormDB, c.logger); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return catalog.New(gormDB), closeDB, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "cinemate",
		Short:         "Movie recommendations with a catalog fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
