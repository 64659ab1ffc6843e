// Package testsupport provides shared helpers for package tests: isolated
// in-memory catalogs and movie fixtures.
package testsupport

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/icco/cinemate/lib/db"
	"github.com/icco/cinemate/models"
	"gorm.io/gorm"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenDB returns a migrated in-memory database private to the calling test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gormDB, err := db.Open(dsn, Logger())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("get sql handle: %v", err)
	}
	// A single connection keeps the shared-cache database alive and serialises writes.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.RunMigrations(gormDB, Logger()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return gormDB
}

// Genre builds a genre entry.
func Genre(id int, name string) models.MovieGenre {
	return models.MovieGenre{GenreID: id, Name: name}
}

// Movie builds a rated catalog entry. Genre positions follow argument order.
func Movie(tmdbID, title string, rating float64, votes int, genres ...models.MovieGenre) models.Movie {
	m := models.Movie{
		TMDBID:      tmdbID,
		Title:       title,
		VoteAverage: &rating,
		VoteCount:   &votes,
	}
	for i, g := range genres {
		g.Position = i
		m.Genres = append(m.Genres, g)
	}
	return m
}

// Seed inserts movies in order, so their insertion order matches the slice.
func Seed(t testing.TB, gormDB *gorm.DB, movies ...models.Movie) []models.Movie {
	t.Helper()
	out := make([]models.Movie, 0, len(movies))
	for _, m := range movies {
		m := m
		if err := gormDB.Create(&m).Error; err != nil {
			t.Fatalf("seed %q: %v", m.Title, err)
		}
		out = append(out, m)
	}
	return out
}
