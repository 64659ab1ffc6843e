package db

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := RunMigrations(gormDB, discardLogger()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return gormDB
}

func TestWithForeignKeys(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"cinemate.db", "cinemate.db?_foreign_keys=1"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_foreign_keys=1"},
		{"cinemate.db?_foreign_keys=0", "cinemate.db?_foreign_keys=0"},
		{"cinemate.db?_fk=1", "cinemate.db?_fk=1"},
	}
	for _, tt := range tests {
		if got := withForeignKeys(tt.dsn); got != tt.want {
			t.Errorf("withForeignKeys(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	gormDB := openMemory(t)
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Hold both connections so the pool cannot hand back the same one.
	first, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var on int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if on != 1 {
			t.Fatalf("conn %d: foreign_keys = %d, want 1", i, on)
		}
	}
}

func TestRunMigrationsBackfillsFoldedTitles(t *testing.T) {
	gormDB := openMemory(t)

	err := gormDB.Exec(
		"INSERT INTO movies (tmdb_id, title, title_folded, created_at, updated_at) VALUES (?, ?, '', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
		"194", "Amélie",
	).Error
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	if err := RunMigrations(gormDB, discardLogger()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	var folded string
	if err := gormDB.Raw("SELECT title_folded FROM movies WHERE tmdb_id = ?", "194").Scan(&folded).Error; err != nil {
		t.Fatal(err)
	}
	if folded != "amélie" {
		t.Fatalf("title_folded = %q, want %q", folded, "amélie")
	}
}

func TestRunMigrationsDropsTitleIndexes(t *testing.T) {
	gormDB := openMemory(t)

	for _, stmt := range []string{
		"CREATE INDEX idx_movies_title_nocase ON movies(title COLLATE NOCASE)",
		"CREATE INDEX idx_movies_overview_nocase ON movies(overview COLLATE NOCASE)",
	} {
		if err := gormDB.Exec(stmt).Error; err != nil {
			t.Fatal(err)
		}
	}
	if err := RunMigrations(gormDB, discardLogger()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	var count int64
	err := gormDB.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ?",
		[]string{"idx_movies_title_nocase", "idx_movies_overview_nocase"}).Scan(&count).Error
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("%d retired title indexes remain", count)
	}
}
