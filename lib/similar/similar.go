// Package similar computes rule-based recommendations from catalog metadata:
// movies that share a genre with a seed title, filtered to well-rated titles
// with enough votes, best rated first.
package similar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/models"
)

// Candidate policy. Both thresholds are inclusive.
const (
	MinVoteAverage = 6.0
	MinVoteCount   = 100
	MaxResults     = 12
)

// ErrSeedNotFound is returned when no catalog title matches the query.
var ErrSeedNotFound = errors.New("no catalog movie matches title")

// Catalog is the subset of the catalog store the engine reads from.
type Catalog interface {
	FindOneByTitleFuzzy(ctx context.Context, pattern string) (*models.Movie, error)
	FindByGenresExcluding(ctx context.Context, q catalog.CandidateQuery) ([]models.Movie, error)
}

// Engine produces genre-overlap recommendations.
type Engine struct {
	catalog Catalog
	logger  *slog.Logger
}

func New(catalog Catalog, logger *slog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		logger:  logger,
	}
}

// Similar returns up to MaxResults movies similar to the first catalog title
// matching title. A seed without genres yields an empty, non-nil slice.
func (e *Engine) Similar(ctx context.Context, title string) ([]*models.Movie, error) {
	seed, err := e.catalog.FindOneByTitleFuzzy(ctx, title)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrSeedNotFound, title)
		}
		return nil, fmt.Errorf("failed to resolve seed movie: %w", err)
	}

	genreIDs := seed.GenreIDs()
	e.logger.DebugContext(ctx, "Resolved seed movie",
		slog.String("query", title),
		slog.String("tmdb_id", seed.TMDBID),
		slog.String("title", seed.Title),
		slog.Any("genre_ids", genreIDs))

	if len(genreIDs) == 0 {
		return []*models.Movie{}, nil
	}

	candidates, err := e.catalog.FindByGenresExcluding(ctx, catalog.CandidateQuery{
		GenreIDs:      genreIDs,
		ExcludeTMDBID: seed.TMDBID,
		MinRating:     MinVoteAverage,
		MinVotes:      MinVoteCount,
		Limit:         MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}

	return rank(seed, candidates), nil
}

// rank applies the candidate policy to rows as returned by the store. The
// store already filters, sorts and limits; rank holds the result to the same
// rules regardless of which Catalog produced it. The sort is stable so the
// store's insertion-order tie-break survives.
func rank(seed *models.Movie, candidates []models.Movie) []*models.Movie {
	out := make([]*models.Movie, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		if m.TMDBID == seed.TMDBID {
			continue
		}
		if m.VoteAverage == nil || m.VoteCount == nil {
			continue
		}
		if m.Rating() < MinVoteAverage || m.Votes() < MinVoteCount {
			continue
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rating() > out[j].Rating()
	})

	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out
}
