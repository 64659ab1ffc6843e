package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icco/cinemate/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// catalogIndexes back the id-membership (unique index from the model), genre
// membership and rating-ordered queries. Title lookup is a substring match
// over title_folded and always scans the table.
var catalogIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_movie_genres_genre_movie ON movie_genres(genre_id, movie_id)",
	"CREATE INDEX IF NOT EXISTS idx_movie_genres_movie_position ON movie_genres(movie_id, position)",
	"CREATE INDEX IF NOT EXISTS idx_movies_vote_average ON movies(vote_average DESC, id)",
	"DROP INDEX IF EXISTS idx_movies_title_nocase",
	"DROP INDEX IF EXISTS idx_movies_overview_nocase",
}

const foldBatchSize = 500

// Open connects to the SQLite database at path with queries logged through slog.
// Foreign keys are enabled on every pooled connection.
func Open(path string, logger *slog.Logger) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		Logger:         NewGormLogger(logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return gormDB, nil
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, logger *slog.Logger) error {
	ctx := context.Background()

	if err := enableSQLiteOptimizations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to enable SQLite optimizations: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.Movie{}, &models.MovieGenre{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := backfillFoldedTitles(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to fold titles: %w", err)
	}

	if err := createCatalogIndexes(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to create catalog indexes: %w", err)
	}

	return nil
}

// withForeignKeys adds the driver's foreign key option to a DSN unless the
// caller already set it. PRAGMA foreign_keys only applies per connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1"
}

// backfillFoldedTitles fills title_folded for rows written before the column existed.
func backfillFoldedTitles(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	var (
		batch   []models.Movie
		updated int
	)
	result := db.WithContext(ctx).
		Select("id", "title").
		Where("title_folded = '' AND title <> ''").
		FindInBatches(&batch, foldBatchSize, func(_ *gorm.DB, _ int) error {
			for _, m := range batch {
				err := db.WithContext(ctx).Model(&models.Movie{}).
					Where("id = ?", m.ID).
					UpdateColumn("title_folded", models.FoldTitle(m.Title)).Error
				if err != nil {
					return err
				}
				updated++
			}
			return nil
		})
	if result.Error != nil {
		return result.Error
	}
	if updated > 0 {
		logger.Info("Folded catalog titles", slog.Int("movies", updated))
	}
	return nil
}

// enableSQLiteOptimizations enables SQLite-specific optimizations
func enableSQLiteOptimizations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	optimizations := []string{
		"PRAGMA journal_mode=WAL",    // readers do not block the importer
		"PRAGMA synchronous=NORMAL",  // Faster writes while maintaining safety
		"PRAGMA cache_size=1000",     // Increase cache size
		"PRAGMA temp_store=MEMORY",   // Store temporary tables in memory
		"PRAGMA mmap_size=134217728", // Enable memory-mapped I/O (128MB)
		"PRAGMA optimize",
	}

	for _, pragma := range optimizations {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Debug("Executed pragma", slog.String("pragma", pragma))
		}
	}

	return nil
}

// createCatalogIndexes creates the query indexes that AutoMigrate does not
// express, such as descending indexes, and drops retired ones.
func createCatalogIndexes(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	for _, indexSQL := range catalogIndexes {
		if err := db.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index %q: %w", indexSQL, err)
		}
		logger.Debug("Created index", slog.String("sql", indexSQL))
	}

	return nil
}
