package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cineamore/catalogservice/internal/domain"
)

// testMongoURI defaults to localhost:27017. Set MONGO_TEST_URI to override.
func testMongoURI() string {
	if uri := os.Getenv("MONGO_TEST_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// setupTestDB connects to MongoDB and returns a unique test database that is
// dropped on cleanup. Calls t.Skip if MongoDB is unreachable.
func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uri := testMongoURI()
	client, err := Connect(ctx, uri,
		options.Client().SetConnectTimeout(3*time.Second).SetServerSelectionTimeout(3*time.Second))
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		t.Skipf("MongoDB ping failed at %s: %v", uri, err)
	}

	db := client.Database(fmt.Sprintf("cineamore_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = db.Drop(ctx2)
		_ = client.Disconnect(ctx2)
	})
	return db
}

func setupMovieRepo(t *testing.T) *MovieRepository {
	t.Helper()
	repo := NewMovieRepository(setupTestDB(t))
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return repo
}

func makeMovie(id, title string, year int, state domain.VisibilityState) domain.Movie {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Movie{
		ID:         id,
		Title:      title,
		Year:       year,
		Genre:      []string{"Drama"},
		Visibility: domain.Visibility{State: state, ChangedAt: now},
		AddedAt:    now,
		UpdatedAt:  now,
	}
}

func TestIntegrationMovieCreateGetDuplicate(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()

	movie := makeMovie("m1", "The Matrix", 1999, domain.VisibilityVisible)
	movie.Director = "Wachowski"
	movie.DownloadLinks = []domain.DownloadLink{{Label: "1080p", URL: "https://example.org/m", AddedAt: movie.AddedAt}}
	if err := repo.Create(ctx, movie); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, movie); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := repo.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "The Matrix" || got.Director != "Wachowski" || len(got.DownloadLinks) != 1 {
		t.Fatalf("unexpected movie: %+v", got)
	}
	if !got.AddedAt.Equal(movie.AddedAt) {
		t.Fatalf("addedAt: got %v want %v", got.AddedAt, movie.AddedAt)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegrationMovieUpdateKeepsAddedAt(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()

	movie := makeMovie("m1", "Heat", 1995, domain.VisibilityVisible)
	if err := repo.Create(ctx, movie); err != nil {
		t.Fatalf("Create: %v", err)
	}
	edited := movie
	edited.Title = "Heat (Director's Cut)"
	edited.AddedAt = movie.AddedAt.Add(time.Hour)
	edited.UpdatedAt = movie.UpdatedAt.Add(time.Hour)
	if err := repo.Update(ctx, edited); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != edited.Title {
		t.Fatalf("title not updated: %q", got.Title)
	}
	if !got.AddedAt.Equal(movie.AddedAt) {
		t.Fatalf("addedAt changed: %v", got.AddedAt)
	}

	if err := repo.Update(ctx, makeMovie("missing", "x", 0, domain.VisibilityVisible)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegrationFindVisibleCandidates(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()

	visible := makeMovie("m1", "The Matrix", 1999, domain.VisibilityVisible)
	byDirector := makeMovie("m2", "Bound", 1996, domain.VisibilityVisible)
	byDirector.Director = "The Wachowskis (Matrix)"
	byOriginal := makeMovie("m3", "Matorikkusu", 2003, domain.VisibilityVisible)
	byOriginal.Original = "Matrix Revolutions"
	hidden := makeMovie("m4", "Matrix Resurrections", 2021, domain.VisibilityHidden)
	quarantined := makeMovie("m5", "The Matrix Online", 2005, domain.VisibilityQuarantined)
	for _, m := range []domain.Movie{visible, byDirector, byOriginal, hidden, quarantined} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("Create %s: %v", m.ID, err)
		}
	}

	got, err := repo.FindVisibleCandidates(ctx, "MATRIX", 50)
	if err != nil {
		t.Fatalf("FindVisibleCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 visible candidates, got %d: %+v", len(got), got)
	}
	for _, m := range got {
		if !m.Visible() {
			t.Fatalf("non-visible candidate returned: %+v", m)
		}
	}

	limited, err := repo.FindVisibleCandidates(ctx, "matrix", 2)
	if err != nil {
		t.Fatalf("FindVisibleCandidates: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited))
	}

	special, err := repo.FindVisibleCandidates(ctx, "(matrix)", 50)
	if err != nil {
		t.Fatalf("FindVisibleCandidates: %v", err)
	}
	if len(special) != 1 || special[0].ID != "m2" {
		t.Fatalf("expected regex-quoted match on director, got %+v", special)
	}
}

func TestIntegrationListFiltersAndSorts(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()

	for i, title := range []string{"Ccc", "Aaa", "Bbb"} {
		m := makeMovie(fmt.Sprintf("m%d", i), title, 2000+i, domain.VisibilityVisible)
		m.TMDBRating = float64(5 + i)
		if err := repo.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	hidden := makeMovie("h1", "Hidden", 2010, domain.VisibilityHidden)
	if err := repo.Create(ctx, hidden); err != nil {
		t.Fatal(err)
	}

	state := domain.VisibilityVisible
	got, err := repo.List(ctx, domain.MovieFilter{State: &state, SortBy: domain.MovieSortTitle, SortOrder: domain.SortAsc})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].Title != "Aaa" || got[2].Title != "Ccc" {
		t.Fatalf("unexpected order: %+v", got)
	}

	got, err = repo.List(ctx, domain.MovieFilter{YearFrom: 2001, SortBy: domain.MovieSortRating})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].ID != "m2" || got[2].ID != "h1" {
		t.Fatalf("unexpected year/rating result: %+v", got)
	}

	page, err := repo.List(ctx, domain.MovieFilter{State: &state, SortBy: domain.MovieSortYear, SortOrder: domain.SortAsc, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 || page[0].Year != 2001 {
		t.Fatalf("unexpected page: %+v", page)
	}

	count, err := repo.Count(ctx, domain.MovieFilter{State: &state})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 visible, got %d", count)
	}
}

func TestIntegrationSetVisibilityAndSample(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, makeMovie(fmt.Sprintf("m%d", i), fmt.Sprintf("Film %d", i), 2000, domain.VisibilityVisible)); err != nil {
			t.Fatal(err)
		}
	}
	changed := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.SetVisibility(ctx, "m0", domain.Visibility{State: domain.VisibilityQuarantined, Reason: "broken", ChangedAt: changed}); err != nil {
		t.Fatalf("SetVisibility: %v", err)
	}
	if err := repo.SetVisibility(ctx, "missing", domain.Visibility{State: domain.VisibilityHidden}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	quarantined, err := repo.Sample(ctx, domain.VisibilityQuarantined, 3)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(quarantined) != 1 || quarantined[0].ID != "m0" || quarantined[0].Visibility.Reason != "broken" {
		t.Fatalf("unexpected quarantined sample: %+v", quarantined)
	}

	visible, err := repo.Sample(ctx, domain.VisibilityVisible, 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 sampled, got %d", len(visible))
	}
}

func TestIntegrationTopRatedAndRecentlyAdded(t *testing.T) {
	repo := setupMovieRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	seed := []struct {
		id     string
		year   int
		rating float64
		state  domain.VisibilityState
	}{
		{"old", 1975, 9.0, domain.VisibilityVisible},
		{"low", 2010, 5.5, domain.VisibilityVisible},
		{"good", 2012, 7.5, domain.VisibilityVisible},
		{"best", 1995, 8.7, domain.VisibilityVisible},
		{"hidden", 2015, 9.5, domain.VisibilityHidden},
	}
	for i, s := range seed {
		m := makeMovie(s.id, s.id, s.year, s.state)
		m.TMDBRating = s.rating
		m.AddedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	top, err := repo.TopRated(ctx, 6, 1980, 10)
	if err != nil {
		t.Fatalf("TopRated: %v", err)
	}
	if len(top) != 2 || top[0].ID != "best" || top[1].ID != "good" {
		t.Fatalf("unexpected top rated: %+v", top)
	}

	recent, err := repo.RecentlyAdded(ctx, 1980, 10)
	if err != nil {
		t.Fatalf("RecentlyAdded: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "best" || recent[2].ID != "low" {
		t.Fatalf("unexpected recent: %+v", recent)
	}
}

func TestIntegrationReports(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, domain.Report{
			ID:        fmt.Sprintf("r%d", i),
			Message:   "broken link",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.SetResolved(ctx, "r2", true); err != nil {
		t.Fatalf("SetResolved: %v", err)
	}
	if err := repo.SetResolved(ctx, "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := repo.List(ctx, false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r2" || !all[0].Resolved {
		t.Fatalf("unexpected reports: %+v", all)
	}
	open, err := repo.List(ctx, true, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open reports, got %d", len(open))
	}
}

func TestIntegrationRequests(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, title := range []string{"Dune", "Arrival", "Sicario"} {
		if err := repo.Create(ctx, domain.Request{
			ID:        fmt.Sprintf("q%d", i),
			Title:     title,
			Status:    domain.RequestPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.SetStatus(ctx, "q0", domain.RequestCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	pending := domain.RequestPending
	got, err := repo.List(ctx, &pending, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Sicario" {
		t.Fatalf("unexpected pending requests: %+v", got)
	}
	limited, err := repo.List(ctx, nil, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}
