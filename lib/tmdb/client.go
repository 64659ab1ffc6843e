package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	json "github.com/goccy/go-json"
)

const (
	DefaultBaseURL      = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
)

// ErrMovieNotFound is returned when TMDB has no movie with the requested id.
var ErrMovieNotFound = errors.New("tmdb movie not found")

type Client struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

// MovieDetails is the subset of /movie/{id} used by the catalog import.
type MovieDetails struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithImageBaseURL changes the prefix used for poster URLs.
func WithImageBaseURL(imageBaseURL string) Option {
	return func(c *Client) {
		if imageBaseURL = strings.TrimSpace(imageBaseURL); imageBaseURL != "" {
			c.imageBaseURL = strings.TrimRight(imageBaseURL, "/")
		}
	}
}

func NewClient(apiKey string, logger *slog.Logger, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	c := &Client{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		imageBaseURL: DefaultImageBaseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetMovie fetches movie details by TMDB id.
func (c *Client) GetMovie(ctx context.Context, id string) (*MovieDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("tmdb movie id must not be empty")
	}

	endpoint, err := url.Parse(c.baseURL + "/movie/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("failed to parse tmdb url: %w", err)
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrMovieNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tmdb movie %s returned %d", id, resp.StatusCode)
	}

	var details MovieDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &details, nil
}

// PosterURL returns the full poster URL for a poster path, or "" when the
// movie has no poster.
func (c *Client) PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return c.imageBaseURL + posterPath
}

// Poster returns the poster URL of a movie, or "" when it has none.
func (c *Client) Poster(ctx context.Context, id string) (string, error) {
	details, err := c.GetMovie(ctx, id)
	if err != nil {
		return "", err
	}
	return c.PosterURL(details.PosterPath), nil
}
