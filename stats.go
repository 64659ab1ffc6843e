package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/lib/similar"
	"github.com/icco/cinemate/lib/types"
	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var topGenres int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			defer closeDB()

			floor := catalog.Floor{MinRating: similar.MinVoteAverage, MinVotes: similar.MinVoteCount}
			stats, err := store.Stats(cmd.Context(), floor, topGenres)
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.stdout, renderStats(stats))
			return nil
		},
	}

	cmd.Flags().IntVar(&topGenres, "genres", 10, "Number of genres to list")
	return cmd
}

func renderStats(s *types.CatalogStats) string {
	rows := [][]string{
		{"Movies", fmt.Sprint(s.TotalMovies)},
		{"With poster", fmt.Sprint(s.WithPoster)},
		{"Without genres", fmt.Sprint(s.WithoutGenres)},
		{fmt.Sprintf("Fallback eligible (>= %.1f, >= %d votes)", similar.MinVoteAverage, similar.MinVoteCount), fmt.Sprint(s.FallbackEligible)},
		{"Average rating", fmt.Sprintf("%.2f", s.AverageRating)},
		{"First imported", formatTime(s.FirstImported)},
		{"Last imported", formatTime(s.LastImported)},
	}

	var b strings.Builder
	b.WriteString(renderTable([]string{"Catalog", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(s.GenreDistribution) > 0 {
		genreRows := make([][]string, 0, len(s.GenreDistribution))
		for _, g := range s.GenreDistribution {
			genreRows = append(genreRows, []string{fmt.Sprint(g.GenreID), g.Genre, fmt.Sprint(g.Count)})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"ID", "Genre", "Movies"}, genreRows, []columnAlignment{alignRight, alignLeft, alignRight}))
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
