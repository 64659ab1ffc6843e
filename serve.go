package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/icco/cinemate/handlers"
	"github.com/icco/cinemate/lib/config"
	"github.com/icco/cinemate/lib/health"
	"github.com/icco/cinemate/lib/provider"
	"github.com/icco/cinemate/lib/recommend"
	"github.com/icco/cinemate/lib/similar"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recommendation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger

			store, closeDB, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			defer closeDB()

			primary, breaker, err := buildPrimary(cfg.Provider, logger)
			if err != nil {
				return err
			}

			svc := recommend.New(primary, store, similar.New(store, logger), logger)

			var circuits []health.Circuit
			if breaker != nil {
				circuits = append(circuits, breaker)
			}

			router := newRouter(cfg.Server, svc, health.Check(store, circuits...), logger)
			return runServer(cmd.Context(), cfg.Server, router, logger)
		},
	}
}

// buildPrimary creates the configured primary recommender. It returns a nil
// Primary when no provider is configured, which routes every request to the
// fallback.
func buildPrimary(cfg config.ProviderConfig, logger *slog.Logger) (recommend.Primary, *provider.Breaker, error) {
	var client provider.Recommender

	switch cfg.Kind {
	case config.ProviderNone:
		logger.Warn("No primary recommender configured, serving fallback only")
		return nil, nil, nil
	case config.ProviderML:
		client = provider.NewMLClient(cfg.URL, cfg.Timeout, logger,
			provider.WithNumRecommendations(cfg.NumRecommendations))
	case config.ProviderOpenAI:
		oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c, err := provider.NewOpenAIClient(oc, cfg.OpenAI.Model, cfg.NumRecommendations, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create openai provider: %w", err)
		}
		client = c
	default:
		return nil, nil, fmt.Errorf("unknown recommender provider %q", cfg.Kind)
	}

	logger.Info("Primary recommender configured",
		slog.String("provider", cfg.Kind),
		slog.Duration("timeout", cfg.Timeout),
		slog.Bool("circuit_breaker", cfg.Breaker.Enabled))

	if !cfg.Breaker.Enabled {
		return client, nil, nil
	}
	breaker := provider.NewBreaker(cfg.Kind, client, provider.BreakerSettings{
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}, logger)
	return breaker, breaker, nil
}

func newRouter(cfg config.ServerConfig, svc handlers.Recommender, healthCheck http.HandlerFunc, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{handlers.SourceHeader},
		MaxAge:         300,
	}))

	r.Get("/health", healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if !cfg.RateLimitDisabled && cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		recommendations := handlers.HandleRecommendations(svc, logger)
		r.Get("/recommendations", recommendations)
		r.Get("/api/recommendations", recommendations)
	})

	return r
}

// runServer serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests.
func runServer(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Leave room for the timeout middleware to answer first.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
