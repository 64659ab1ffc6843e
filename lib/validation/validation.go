package validation

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrMissingTitle is returned when a recommendation request has no title.
var ErrMissingTitle = errors.New("a movie title query parameter is required")

// NormalizeTitle trims surrounding whitespace from a query title and rejects
// titles that are empty afterwards.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrMissingTitle
	}
	return title, nil
}

// WriteError writes a JSON error response to the HTTP response writer.
// It takes a response writer, error message, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		slog.Error("Failed to encode error response", slog.Any("error", err))
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}
