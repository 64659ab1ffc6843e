package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icco/cinemate/lib/ingest"
	"github.com/icco/cinemate/lib/lock"
	"github.com/icco/cinemate/lib/tmdb"
	"github.com/spf13/cobra"
)

const importLockKey = "catalog-import"

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		csvPath  string
		lockWait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import movies from a TMDB metadata CSV into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger
			if csvPath == "" {
				csvPath = cfg.Import.CSVPath
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			posters, err := tmdb.NewClient(cfg.TMDB.APIKey, logger,
				tmdb.WithBaseURL(cfg.TMDB.BaseURL),
				tmdb.WithImageBaseURL(cfg.TMDB.ImageBaseURL))
			if err != nil {
				return fmt.Errorf("TMDB_API_KEY is required for import: %w", err)
			}

			locks := lock.NewFileLock(cfg.Import.LockDir, logger)
			defer func() {
				if err := locks.Close(); err != nil {
					logger.Error("Failed to release import lock", slog.Any("error", err))
				}
			}()
			ok, err := locks.TryLock(runCtx, importLockKey, lockWait)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("another import is already running")
			}
			defer func() {
				if err := locks.Unlock(context.Background(), importLockKey); err != nil {
					logger.Error("Failed to release import lock", slog.Any("error", err))
				}
			}()

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("failed to open csv: %w", err)
			}
			defer f.Close()

			store, closeDB, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			defer closeDB()

			importer := ingest.NewImporter(store, posters, cfg.Import.Interval, logger)
			summary, err := importer.Import(runCtx, f)
			if summary != nil {
				fmt.Fprintln(ctx.stdout, renderImportSummary(summary))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&csvPath, "file", "f", "", "Path to movies_metadata.csv (defaults to import.csv_path)")
	cmd.Flags().DurationVar(&lockWait, "lock-wait", 5*time.Second, "How long to wait for a running import to finish")
	return cmd
}

func renderImportSummary(s *ingest.Summary) string {
	rows := [][]string{
		{"Run", s.RunID},
		{"Rows read", fmt.Sprint(s.Read)},
		{"Eligible", fmt.Sprint(s.Eligible)},
		{"Imported", fmt.Sprint(s.Imported)},
		{"Skipped (exists)", fmt.Sprint(s.SkippedExisting)},
		{"Skipped (no poster)", fmt.Sprint(s.SkippedNoPoster)},
		{"Failed", fmt.Sprint(s.Failed)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Import", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
