// Package ingest loads the movie catalog from the TMDB metadata CSV export.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/icco/cinemate/models"
)

// Row is one line of movies_metadata.csv, reduced to the columns we import.
type Row struct {
	ID          string
	Title       string
	Overview    string
	Genres      string
	ReleaseDate string
	VoteAverage string
	VoteCount   string
	Adult       string
}

var columns = []string{"id", "title", "overview", "genres", "release_date", "vote_average", "vote_count", "adult"}

// ReadRows streams rows from r to fn. Columns are located by header name, so
// their order in the file does not matter. A non-nil error from fn stops the
// scan and is returned.
func ReadRows(r io.Reader, fn func(Row) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("csv is empty")
		}
		return fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range []string{"id", "title"} {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("csv header is missing column %q", col)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read csv: %w", err)
		}

		row := Row{
			ID:          field(record, columns[0]),
			Title:       field(record, columns[1]),
			Overview:    field(record, columns[2]),
			Genres:      field(record, columns[3]),
			ReleaseDate: field(record, columns[4]),
			VoteAverage: field(record, columns[5]),
			VoteCount:   field(record, columns[6]),
			Adult:       field(record, columns[7]),
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// Eligible reports whether a row should be imported: it needs an id and a
// title, a vote average of at least 1 and must not be adult content.
func Eligible(row Row) bool {
	if row.ID == "" || row.Title == "" || row.Adult != "False" {
		return false
	}
	avg, ok := parseFinite(row.VoteAverage)
	return ok && avg >= 1
}

// ParseGenres decodes the Python-literal genre list used by the export, e.g.
// [{'id': 16, 'name': 'Animation'}]. Anything unparsable yields no genres.
func ParseGenres(raw string) []models.MovieGenre {
	if raw == "" {
		return nil
	}

	var parsed []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &parsed); err != nil {
		return nil
	}

	genres := make([]models.MovieGenre, 0, len(parsed))
	for i, g := range parsed {
		genres = append(genres, models.MovieGenre{GenreID: g.ID, Name: g.Name, Position: i})
	}
	return genres
}

// Movie converts the row into a catalog entry with the given poster.
func (row Row) Movie(posterURL string) models.Movie {
	m := models.Movie{
		TMDBID:      row.ID,
		Title:       row.Title,
		Overview:    row.Overview,
		Genres:      ParseGenres(row.Genres),
		PosterURL:   posterURL,
		ReleaseDate: row.ReleaseDate,
	}
	if avg, ok := parseFinite(row.VoteAverage); ok {
		m.VoteAverage = &avg
	}
	if count, ok := parseFinite(row.VoteCount); ok && count >= 0 && count <= math.MaxInt32 {
		n := int(count)
		m.VoteCount = &n
	}
	return m
}

// parseFinite parses a decimal number, rejecting NaN and infinities.
func parseFinite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
