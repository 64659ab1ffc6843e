package types

import "time"

// CatalogStats represents statistics about the movie catalog.
type CatalogStats struct {
	TotalMovies       int64
	WithPoster        int64
	WithoutGenres     int64
	FallbackEligible  int64
	AverageRating     float64
	FirstImported     time.Time
	LastImported      time.Time
	GenreDistribution []GenreCount
}

// GenreCount is the number of catalog movies tagged with a genre.
type GenreCount struct {
	GenreID int
	Genre   string
	Count   int64
}
