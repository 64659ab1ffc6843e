package health

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	json "github.com/goccy/go-json"
)

// Pinger verifies the catalog database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Circuit reports the state of a provider circuit breaker.
type Circuit interface {
	Name() string
	State() string
}

// Component is the health of one dependency.
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health represents the health check response structure.
// It includes the overall status, timestamp, database health and the state
// of each primary provider circuit.
type Health struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	DB        Component            `json:"db"`
	Providers map[string]Component `json:"providers,omitempty"`
}

// Check returns an HTTP handler that performs health checks on the application.
// A failing database ping answers 503. An open provider circuit only marks the
// service degraded, since the fallback keeps serving recommendations.
func Check(db Pinger, circuits ...Circuit) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := Health{
			Status:    "ok",
			Timestamp: time.Now(),
		}

		for _, c := range circuits {
			if health.Providers == nil {
				health.Providers = make(map[string]Component, len(circuits))
			}
			state := c.State()
			comp := Component{Status: "ok"}
			if state != "closed" {
				comp.Status = "degraded"
				comp.Message = "circuit " + state + ", serving fallback"
				health.Status = "degraded"
			}
			health.Providers[c.Name()] = comp
		}

		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Database health check failed", slog.Any("error", err))
			health.Status = "degraded"
			health.DB = Component{Status: "error", Message: "Database ping failed"}
			writeHealth(w, health, http.StatusServiceUnavailable)
			return
		}

		health.DB.Status = "ok"
		writeHealth(w, health, http.StatusOK)
	}
}

// writeHealth writes the health check response to the HTTP response writer.
func writeHealth(w http.ResponseWriter, health Health, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		slog.Error("Failed to encode health response", slog.Any("error", err))
	}
}
