package models

import (
	"time"

	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// Movie is a catalog entry. ID is the internal row id and doubles as the
// insertion order used for deterministic tie-breaks.
type Movie struct {
	ID          uint         `gorm:"primaryKey" json:"-"`
	TMDBID      string       `gorm:"column:tmdb_id;uniqueIndex;not null" json:"tmdbId"`
	Title       string       `gorm:"not null" json:"title"`
	TitleFolded string       `gorm:"not null;default:''" json:"-"`
	Overview    string       `json:"overview,omitempty"`
	Genres      []MovieGenre `gorm:"constraint:OnDelete:CASCADE" json:"genres"`
	PosterURL   string       `json:"poster_url,omitempty"`
	ReleaseDate string       `json:"release_date,omitempty"`
	VoteAverage *float64     `json:"vote_average"`
	VoteCount   *int         `json:"vote_count"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// BeforeSave keeps TitleFolded in step with Title.
func (m *Movie) BeforeSave(tx *gorm.DB) error {
	m.TitleFolded = FoldTitle(m.Title)
	return nil
}

// FoldTitle applies Unicode case folding so titles compare case-insensitively
// beyond ASCII.
func FoldTitle(s string) string {
	return cases.Fold().String(s)
}

// GetTitle returns the movie title.
func (m Movie) GetTitle() string {
	return m.Title
}

// GenreIDs returns the genre ids in list order.
func (m Movie) GenreIDs() []int {
	ids := make([]int, 0, len(m.Genres))
	for _, g := range m.Genres {
		ids = append(ids, g.GenreID)
	}
	return ids
}

// Rating returns the average rating, or 0 when unrated.
func (m Movie) Rating() float64 {
	if m.VoteAverage == nil {
		return 0
	}
	return *m.VoteAverage
}

// Votes returns the rating count, or 0 when unknown.
func (m Movie) Votes() int {
	if m.VoteCount == nil {
		return 0
	}
	return *m.VoteCount
}

// MovieGenre is one entry of a movie's ordered genre list.
type MovieGenre struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	MovieID  uint   `gorm:"not null" json:"-"`
	GenreID  int    `gorm:"not null" json:"id"`
	Name     string `json:"name"`
	Position int    `json:"-"`
}
