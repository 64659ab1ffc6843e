// Package catalog is the query layer over the movie catalog tables.
//
// Ordering is deterministic everywhere: whenever a query has to choose among
// equally good rows it falls back to the internal row id, which is the
// insertion order of the importer.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/icco/cinemate/lib/types"
	"github.com/icco/cinemate/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a single-record lookup matches nothing.
	ErrNotFound = errors.New("movie not found in catalog")
	// ErrDuplicate is returned when a movie with the same TMDB id already exists.
	ErrDuplicate = errors.New("movie already exists in catalog")
)

// StoreError wraps a database fault together with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CandidateQuery selects movies sharing a genre with a seed.
type CandidateQuery struct {
	GenreIDs      []int
	ExcludeTMDBID string
	MinRating     float64
	MinVotes      int
	Limit         int
}

// Floor is the rating/vote threshold used when counting eligible movies.
type Floor struct {
	MinRating float64
	MinVotes  int
}

// Store reads and writes catalog movies through gorm.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// withGenres preloads genres in list order.
func (s *Store) withGenres(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Genres", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
}

// FindByIDs returns the movies whose TMDB id is in ids. The result is in no
// particular order and simply omits ids that are not stored.
func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]models.Movie, error) {
	if len(ids) == 0 {
		return []models.Movie{}, nil
	}

	var movies []models.Movie
	if err := s.withGenres(ctx).Where("tmdb_id IN ?", ids).Find(&movies).Error; err != nil {
		return nil, &StoreError{Op: "find by ids", Err: err}
	}
	return movies, nil
}

// FindOneByTitleFuzzy returns the first movie, in insertion order, whose
// title contains pattern case-insensitively. Returns ErrNotFound when none do.
func (s *Store) FindOneByTitleFuzzy(ctx context.Context, pattern string) (*models.Movie, error) {
	var movie models.Movie
	err := s.withGenres(ctx).
		Where(`title_folded LIKE ? ESCAPE '\'`, "%"+escapeLike(models.FoldTitle(pattern))+"%").
		Order("id ASC").
		Take(&movie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "find by title", Err: err}
	}
	return &movie, nil
}

// FindByGenresExcluding returns movies sharing at least one genre with
// q.GenreIDs, minus q.ExcludeTMDBID, at or above both thresholds, ordered by
// rating descending then insertion order, at most q.Limit rows.
func (s *Store) FindByGenresExcluding(ctx context.Context, q CandidateQuery) ([]models.Movie, error) {
	if len(q.GenreIDs) == 0 || q.Limit <= 0 {
		return []models.Movie{}, nil
	}

	withGenre := s.db.WithContext(ctx).
		Model(&models.MovieGenre{}).
		Select("movie_id").
		Where("genre_id IN ?", q.GenreIDs)

	var movies []models.Movie
	err := s.withGenres(ctx).
		Where("id IN (?)", withGenre).
		Where("tmdb_id <> ?", q.ExcludeTMDBID).
		Where("vote_average >= ?", q.MinRating).
		Where("vote_count >= ?", q.MinVotes).
		Order("vote_average DESC").
		Order("id ASC").
		Limit(q.Limit).
		Find(&movies).Error
	if err != nil {
		return nil, &StoreError{Op: "find by genres", Err: err}
	}
	return movies, nil
}

// Exists reports whether a movie with the TMDB id is stored.
func (s *Store) Exists(ctx context.Context, tmdbID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Movie{}).Where("tmdb_id = ?", tmdbID).Count(&count).Error; err != nil {
		return false, &StoreError{Op: "exists", Err: err}
	}
	return count > 0, nil
}

// Create inserts a movie and its genres.
func (s *Store) Create(ctx context.Context, movie *models.Movie) error {
	for i := range movie.Genres {
		movie.Genres[i].Position = i
	}
	if err := s.db.WithContext(ctx).Create(movie).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: tmdb id %s", ErrDuplicate, movie.TMDBID)
		}
		return &StoreError{Op: "create", Err: err}
	}
	return nil
}

// Stats summarises the catalog. Movies at or above floor count as eligible
// fallback candidates. At most topGenres genres are reported.
func (s *Store) Stats(ctx context.Context, floor Floor, topGenres int) (*types.CatalogStats, error) {
	db := s.db.WithContext(ctx)
	stats := &types.CatalogStats{}

	if err := db.Model(&models.Movie{}).Count(&stats.TotalMovies).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}
	if stats.TotalMovies == 0 {
		return stats, nil
	}

	if err := db.Model(&models.Movie{}).Where("poster_url <> ''").Count(&stats.WithPoster).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}

	if err := db.Model(&models.Movie{}).
		Where("NOT EXISTS (SELECT 1 FROM movie_genres WHERE movie_genres.movie_id = movies.id)").
		Count(&stats.WithoutGenres).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}

	if err := db.Model(&models.Movie{}).
		Where("vote_average >= ? AND vote_count >= ?", floor.MinRating, floor.MinVotes).
		Count(&stats.FallbackEligible).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}

	if err := db.Model(&models.Movie{}).Select("COALESCE(AVG(vote_average), 0)").Scan(&stats.AverageRating).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}

	var first, last models.Movie
	if err := db.Select("id", "created_at").Order("id ASC").Take(&first).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}
	if err := db.Select("id", "created_at").Order("id DESC").Take(&last).Error; err != nil {
		return nil, &StoreError{Op: "stats", Err: err}
	}
	stats.FirstImported = first.CreatedAt
	stats.LastImported = last.CreatedAt

	if topGenres > 0 {
		err := db.Model(&models.MovieGenre{}).
			Select("genre_id, MAX(name) AS genre, COUNT(DISTINCT movie_id) AS count").
			Group("genre_id").
			Order("count DESC").
			Order("genre_id ASC").
			Limit(topGenres).
			Scan(&stats.GenreDistribution).Error
		if err != nil {
			return nil, &StoreError{Op: "stats", Err: err}
		}
	}

	return stats, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes pattern match literally inside a LIKE ... ESCAPE '\' clause.
func escapeLike(pattern string) string {
	return likeEscaper.Replace(pattern)
}
