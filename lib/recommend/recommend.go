// Package recommend resolves a title into recommended movies.
//
// Resolution is a two-state machine with one attempt per tier:
//
//	PrimaryAttempt: ask the primary provider for ids, then Reconcile them
//	                against the catalog. Any failure -> FallbackAttempt.
//	FallbackAttempt: run the genre/rating similarity engine. Its result or
//	                 error is final.
//
// There is no way back to the primary once the fallback has started and
// nothing is retried.
//
// Results from the primary keep the provider's order and may contain gaps:
// a nil entry marks an id the catalog does not hold. Consumers that correlate
// by rank rely on those positions, so gaps must not be filtered out.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icco/cinemate/lib/metrics"
	"github.com/icco/cinemate/lib/similar"
	"github.com/icco/cinemate/lib/validation"
	"github.com/icco/cinemate/models"
)

var (
	// ErrMissingTitle means the request carried no usable title.
	ErrMissingTitle = validation.ErrMissingTitle
	// ErrNotFound means the fallback found no catalog movie for the title.
	ErrNotFound = similar.ErrSeedNotFound
)

// Source identifies which tier produced a result.
type Source string

const (
	SourcePrimary  Source = metrics.SourcePrimary
	SourceFallback Source = metrics.SourceFallback
)

// Primary returns catalog ids for a title, best first.
type Primary interface {
	Recommend(ctx context.Context, title string) ([]string, error)
}

// MovieLookup batch-fetches catalog movies by TMDB id in any order.
type MovieLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Movie, error)
}

// Fallback computes recommendations from local metadata.
type Fallback interface {
	Similar(ctx context.Context, title string) ([]*models.Movie, error)
}

// Result is a resolved recommendation list.
type Result struct {
	Movies []*models.Movie
	Source Source
}

// OutcomeKind tags the result of the primary attempt.
type OutcomeKind int

const (
	// OutcomeResolved means the primary path produced the final result.
	OutcomeResolved OutcomeKind = iota
	// OutcomeNeedsFallback means the primary path failed and Cause says why.
	OutcomeNeedsFallback
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResolved:
		return "resolved"
	case OutcomeNeedsFallback:
		return "needs_fallback"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is what the primary attempt hands to the state machine.
type Outcome struct {
	Kind   OutcomeKind
	Movies []*models.Movie
	// Stage is "provider" or "reconcile" when Kind is OutcomeNeedsFallback.
	Stage string
	Cause error
}

// Service wires the primary provider, the catalog and the fallback engine.
type Service struct {
	primary  Primary
	movies   MovieLookup
	fallback Fallback
	logger   *slog.Logger
}

// New creates a Service. A nil primary sends every request to the fallback.
func New(primary Primary, movies MovieLookup, fallback Fallback, logger *slog.Logger) *Service {
	return &Service{
		primary:  primary,
		movies:   movies,
		fallback: fallback,
		logger:   logger,
	}
}

// Recommend resolves title. Errors are ErrMissingTitle, ErrNotFound, a
// context error when the caller went away, or a fallback failure.
func (s *Service) Recommend(ctx context.Context, title string) (*Result, error) {
	start := time.Now()

	title, err := validation.NormalizeTitle(title)
	if err != nil {
		metrics.RecordRecommendation(metrics.SourcePrimary, metrics.OutcomeInvalid, time.Since(start))
		return nil, err
	}

	outcome := s.AttemptPrimary(ctx, title)
	if outcome.Kind == OutcomeResolved {
		metrics.RecordRecommendation(metrics.SourcePrimary, metrics.OutcomeSuccess, time.Since(start))
		return &Result{Movies: outcome.Movies, Source: SourcePrimary}, nil
	}

	metrics.RecordPrimaryFailure(outcome.Stage)
	s.logger.WarnContext(ctx, "Primary recommendation failed, using fallback",
		slog.String("title", title),
		slog.String("stage", outcome.Stage),
		slog.Any("error", outcome.Cause))

	// The caller is gone; starting the fallback would only waste catalog work.
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.RecordRecommendation(metrics.SourceFallback, metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("recommendation abandoned: %w", ctxErr)
	}

	movies, err := s.fallback.Similar(ctx, title)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordRecommendation(metrics.SourceFallback, metrics.OutcomeNotFound, time.Since(start))
			return nil, err
		}
		metrics.RecordRecommendation(metrics.SourceFallback, metrics.OutcomeError, time.Since(start))
		s.logger.ErrorContext(ctx, "Fallback recommendation failed",
			slog.String("title", title),
			slog.Any("error", err))
		return nil, fmt.Errorf("fallback recommendation failed: %w", err)
	}

	metrics.RecordRecommendation(metrics.SourceFallback, metrics.OutcomeSuccess, time.Since(start))
	return &Result{Movies: movies, Source: SourceFallback}, nil
}

// AttemptPrimary runs the PrimaryAttempt and Reconcile states once.
func (s *Service) AttemptPrimary(ctx context.Context, title string) Outcome {
	if s.primary == nil {
		return Outcome{Kind: OutcomeNeedsFallback, Stage: "provider", Cause: errors.New("no primary provider configured")}
	}

	ids, err := s.primary.Recommend(ctx, title)
	if err != nil {
		return Outcome{Kind: OutcomeNeedsFallback, Stage: "provider", Cause: err}
	}

	records, err := s.movies.FindByIDs(ctx, ids)
	if err != nil {
		return Outcome{Kind: OutcomeNeedsFallback, Stage: "reconcile", Cause: err}
	}

	movies, gaps := Reconcile(ids, records)
	metrics.RecordGaps(gaps)
	if gaps > 0 {
		s.logger.InfoContext(ctx, "Primary recommendations missing from catalog",
			slog.String("title", title),
			slog.Int("requested", len(ids)),
			slog.Int("gaps", gaps))
	}

	return Outcome{Kind: OutcomeResolved, Movies: movies}
}

// Reconcile orders records by ids. Position i of the result holds the record
// for ids[i], or nil when the catalog has none; gaps is the number of nils.
func Reconcile(ids []string, records []models.Movie) (movies []*models.Movie, gaps int) {
	byID := make(map[string]*models.Movie, len(records))
	for i := range records {
		byID[records[i].TMDBID] = &records[i]
	}

	movies = make([]*models.Movie, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			gaps++
			continue
		}
		movies[i] = m
	}
	return movies, gaps
}
