package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/icco/cinemate/lib/recommend"
	"github.com/icco/cinemate/lib/validation"
)

// SourceHeader names the tier that served a recommendation response.
const SourceHeader = "X-Recommendation-Source"

// Recommender resolves a title into recommendations.
type Recommender interface {
	Recommend(ctx context.Context, title string) (*recommend.Result, error)
}

// HandleRecommendations serves GET /recommendations?title=.
//
// The body is a JSON array in rank order. Entries from the primary provider
// that are missing from the catalog are encoded as null.
func HandleRecommendations(svc Recommender, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		title := req.URL.Query().Get("title")

		res, err := svc.Recommend(req.Context(), title)
		if err != nil {
			// The timeout middleware or the client already ended the request.
			if ctxErr := req.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				logger.WarnContext(req.Context(), "Recommendation request ended early",
					slog.String("title", title),
					slog.Any("error", err))
				return
			}

			switch {
			case errors.Is(err, recommend.ErrMissingTitle):
				validation.WriteError(w, err, http.StatusBadRequest)
			case errors.Is(err, recommend.ErrNotFound):
				validation.WriteError(w, errors.New("movie not found"), http.StatusNotFound)
			default:
				logger.ErrorContext(req.Context(), "Failed to get recommendations",
					slog.String("title", title),
					slog.Any("error", err))
				validation.WriteError(w, errors.New("failed to get recommendations"), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set(SourceHeader, string(res.Source))
		validation.WriteJSON(w, res.Movies, http.StatusOK)
	}
}
