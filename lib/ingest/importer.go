package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/lib/metrics"
	"github.com/icco/cinemate/models"
	"golang.org/x/time/rate"
)

// Catalog is the write side of the movie store.
type Catalog interface {
	Exists(ctx context.Context, tmdbID string) (bool, error)
	Create(ctx context.Context, movie *models.Movie) error
}

// PosterSource resolves a movie's poster URL; "" means it has none.
type PosterSource interface {
	Poster(ctx context.Context, tmdbID string) (string, error)
}

// Summary counts what an import did.
type Summary struct {
	RunID           string
	Read            int
	Eligible        int
	Imported        int
	SkippedExisting int
	SkippedNoPoster int
	Failed          int
	Duration        time.Duration
}

type Importer struct {
	catalog Catalog
	posters PosterSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewImporter creates an Importer that waits at least interval between poster
// lookups. A zero interval disables pacing.
func NewImporter(catalog Catalog, posters PosterSource, interval time.Duration, logger *slog.Logger) *Importer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Importer{
		catalog: catalog,
		posters: posters,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Import reads the CSV and adds every eligible movie the catalog lacks.
// Failures on single rows are logged and counted; only CSV read errors and
// cancellation stop the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := im.logger.With(slog.String("run_id", summary.RunID))

	var rows []Row
	err := ReadRows(r, func(row Row) error {
		summary.Read++
		if Eligible(row) {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return summary, err
	}
	summary.Eligible = len(rows)
	logger.InfoContext(ctx, "CSV processed",
		slog.Int("rows", summary.Read),
		slog.Int("eligible", summary.Eligible))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("import interrupted after %d of %d movies: %w", i, len(rows), err)
		}

		rowLogger := logger.With(
			slog.Int("n", i+1),
			slog.Int("of", len(rows)),
			slog.String("tmdb_id", row.ID),
			slog.String("title", row.Title))

		result, err := im.importRow(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			summary.Failed++
			metrics.RecordImport("failed")
			rowLogger.WarnContext(ctx, "Import failed", slog.Any("error", err))
			continue
		}

		metrics.RecordImport(result)
		switch result {
		case "imported":
			summary.Imported++
			rowLogger.DebugContext(ctx, "Imported")
		case "existing":
			summary.SkippedExisting++
			rowLogger.DebugContext(ctx, "Skipping, already exists")
		case "no_poster":
			summary.SkippedNoPoster++
			rowLogger.DebugContext(ctx, "Skipping, no poster")
		}
	}

	summary.Duration = time.Since(start)
	logger.InfoContext(ctx, "Import finished",
		slog.Int("imported", summary.Imported),
		slog.Int("skipped_existing", summary.SkippedExisting),
		slog.Int("skipped_no_poster", summary.SkippedNoPoster),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (im *Importer) importRow(ctx context.Context, row Row) (string, error) {
	exists, err := im.catalog.Exists(ctx, row.ID)
	if err != nil {
		return "", err
	}
	if exists {
		return "existing", nil
	}

	if err := im.limiter.Wait(ctx); err != nil {
		return "", err
	}
	poster, err := im.posters.Poster(ctx, row.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up poster: %w", err)
	}
	if poster == "" {
		return "no_poster", nil
	}

	movie := row.Movie(poster)
	if err := im.catalog.Create(ctx, &movie); err != nil {
		if errors.Is(err, catalog.ErrDuplicate) {
			return "existing", nil
		}
		return "", err
	}
	return "imported", nil
}
