package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/lib/testsupport"
)

const sampleCSV = `adult,genres,id,overview,release_date,title,vote_average,vote_count
False,"[{'id': 28, 'name': 'Action'}, {'id': 878, 'name': 'Science Fiction'}]",27205,"Cobb steals secrets, from dreams.",2010-07-14,Inception,8.1,14075.0
False,"[{'id': 878, 'name': 'Science Fiction'}]",157336,Space.,2014-11-05,Interstellar,8.1,11187.0
True,"[{'id': 18, 'name': 'Drama'}]",9001,Adult,2001-01-01,Adult Movie,7.0,50.0
False,"[]",9002,Unrated,2001-01-01,Unrated Movie,0.0,0.0
False,"[]",,No id,2001-01-01,No Id,6.0,10.0
False,"[{'id': 35, 'name': 'Children's Comedy'}]",9003,No poster,2001-01-01,Posterless,6.5,300.0
False,"[]",9004,Broken lookup,2001-01-01,Lookup Fails,6.5,300.0
`

type fakePosters struct {
	mu      sync.Mutex
	posters map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakePosters) Poster(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return "", err
	}
	return f.posters[id], nil
}

func TestReadRowsHeaderMapped(t *testing.T) {
	var rows []Row
	err := ReadRows(strings.NewReader(sampleCSV), func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}
	first := rows[0]
	if first.ID != "27205" || first.Title != "Inception" || first.Overview != "Cobb steals secrets, from dreams." || first.VoteCount != "14075.0" {
		t.Fatalf("first row = %+v", first)
	}
}

func TestReadRowsErrors(t *testing.T) {
	if err := ReadRows(strings.NewReader(""), func(Row) error { return nil }); err == nil {
		t.Fatal("expected error for empty csv")
	}
	if err := ReadRows(strings.NewReader("name,year\nx,1\n"), func(Row) error { return nil }); err == nil {
		t.Fatal("expected error for missing id/title columns")
	}
	stop := errors.New("stop")
	if err := ReadRows(strings.NewReader(sampleCSV), func(Row) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("err = %v, want callback error", err)
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want bool
	}{
		{"ok", Row{ID: "1", Title: "T", VoteAverage: "1", Adult: "False"}, true},
		{"adult", Row{ID: "1", Title: "T", VoteAverage: "7", Adult: "True"}, false},
		{"adult flag missing", Row{ID: "1", Title: "T", VoteAverage: "7"}, false},
		{"below one", Row{ID: "1", Title: "T", VoteAverage: "0.9", Adult: "False"}, false},
		{"unparsable rating", Row{ID: "1", Title: "T", VoteAverage: "n/a", Adult: "False"}, false},
		{"infinite rating", Row{ID: "1", Title: "T", VoteAverage: "Inf", Adult: "False"}, false},
		{"NaN rating", Row{ID: "1", Title: "T", VoteAverage: "NaN", Adult: "False"}, false},
		{"no id", Row{Title: "T", VoteAverage: "5", Adult: "False"}, false},
		{"no title", Row{ID: "1", VoteAverage: "5", Adult: "False"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible(tt.row); got != tt.want {
				t.Fatalf("Eligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseGenres(t *testing.T) {
	genres := ParseGenres("[{'id': 28, 'name': 'Action'}, {'id': 878, 'name': 'Science Fiction'}]")
	if len(genres) != 2 || genres[0].GenreID != 28 || genres[1].Name != "Science Fiction" || genres[1].Position != 1 {
		t.Fatalf("genres = %+v", genres)
	}

	for _, raw := range []string{"", "[]", "not a list", "[{'id': 35, 'name': 'Children's'}]"} {
		if got := ParseGenres(raw); len(got) != 0 {
			t.Fatalf("ParseGenres(%q) = %+v, want none", raw, got)
		}
	}
}

func TestRowMovie(t *testing.T) {
	m := Row{ID: "1", Title: "T", VoteAverage: "7.5", VoteCount: "120.0", Genres: "[{'id': 1, 'name': 'X'}]"}.Movie("https://p/x.jpg")
	if m.Rating() != 7.5 || m.Votes() != 120 || m.PosterURL != "https://p/x.jpg" || len(m.Genres) != 1 {
		t.Fatalf("movie = %+v", m)
	}
	if m := (Row{ID: "1", Title: "T", VoteCount: "lots"}).Movie(""); m.VoteAverage != nil || m.VoteCount != nil {
		t.Fatalf("unparsable numbers should stay unset: %+v", m)
	}

	for _, raw := range []string{"NaN", "Inf", "-Inf", "1e300", "-5"} {
		m := Row{ID: "1", Title: "T", VoteAverage: raw, VoteCount: raw}.Movie("")
		if m.VoteCount != nil {
			t.Fatalf("vote count %q should stay unset, got %d", raw, *m.VoteCount)
		}
		if raw != "1e300" && raw != "-5" && m.VoteAverage != nil {
			t.Fatalf("vote average %q should stay unset, got %v", raw, *m.VoteAverage)
		}
	}
}

func TestImport(t *testing.T) {
	gormDB := testsupport.OpenDB(t)
	testsupport.Seed(t, gormDB, testsupport.Movie("157336", "Interstellar", 8.6, 15000))
	store := catalog.New(gormDB)

	posters := &fakePosters{
		posters: map[string]string{
			"27205": "https://image.tmdb.org/t/p/w500/inception.jpg",
		},
		errs: map[string]error{
			"9004": errors.New("tmdb movie 9004 returned 500"),
		},
	}

	summary, err := NewImporter(store, posters, 0, testsupport.Logger()).Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if summary.RunID == "" {
		t.Error("summary has no run id")
	}
	want := Summary{Read: 7, Eligible: 4, Imported: 1, SkippedExisting: 1, SkippedNoPoster: 1, Failed: 1}
	got := *summary
	got.RunID, got.Duration = "", 0
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	for _, id := range posters.calls {
		if id == "157336" {
			t.Fatal("poster looked up for a movie already in the catalog")
		}
	}

	movies, err := store.FindByIDs(context.Background(), []string{"27205"})
	if err != nil || len(movies) != 1 {
		t.Fatalf("FindByIDs = %v, %v", movies, err)
	}
	inception := movies[0]
	if inception.PosterURL != "https://image.tmdb.org/t/p/w500/inception.jpg" || inception.Votes() != 14075 {
		t.Fatalf("imported = %+v", inception)
	}
	if ids := inception.GenreIDs(); len(ids) != 2 || ids[0] != 28 || ids[1] != 878 {
		t.Fatalf("genre ids = %v", ids)
	}

	// A second run finds everything already imported or still without poster.
	again, err := NewImporter(store, posters, 0, testsupport.Logger()).Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if again.Imported != 0 || again.SkippedExisting != 2 {
		t.Fatalf("second summary = %+v", again)
	}
}

func TestImportPacesLookups(t *testing.T) {
	gormDB := testsupport.OpenDB(t)
	posters := &fakePosters{}

	start := time.Now()
	summary, err := NewImporter(catalog.New(gormDB), posters, 40*time.Millisecond, testsupport.Logger()).
		Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	// Four lookups with a burst of one need at least three intervals.
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Fatalf("4 lookups took %v, want pacing", elapsed)
	}
	if summary.SkippedNoPoster != 4 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewImporter(catalog.New(testsupport.OpenDB(t)), &fakePosters{}, 0, testsupport.Logger()).
		Import(ctx, strings.NewReader(sampleCSV))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary.Imported != 0 || summary.Eligible != 4 {
		t.Fatalf("summary = %+v", summary)
	}
}
