package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchMovieBody = `{"page":1,"results":[
 {"id":603,"title":"The Matrix","release_date":"1999-03-30","poster_path":"/m.jpg","vote_average":8.2,"genre_ids":[28,878],"overview":"Neo."},
 {"id":604,"title":"Matrix Reloaded","release_date":"","vote_average":7.0},
 {"id":605,"title":"","release_date":"2003-11-05"}
]}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSearchMoviesParsesCandidates(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "matrix" || q.Get("api_key") != "key" || q.Get("include_adult") != "false" || q.Get("language") != "en-US" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchMovieBody))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL})

	items, err := client.SearchMovies(context.Background(), " matrix ")
	if err != nil {
		t.Fatalf("search movies: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected untitled result to be skipped, got %d items", len(items))
	}
	first := items[0]
	if first.ProviderID != 603 || first.Title != "The Matrix" || first.Year != 1999 {
		t.Fatalf("unexpected first candidate: %+v", first)
	}
	if first.PosterURL != PosterBaseURL+"/m.jpg" || first.Rating != 8.2 || first.Overview != "Neo." {
		t.Fatalf("unexpected first candidate details: %+v", first)
	}
	if items[1].Year != 0 || items[1].PosterURL != "" {
		t.Fatalf("expected unknown year and no poster, got %+v", items[1])
	}
}

func TestSearchSeriesUsesNameAndAirDate(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/tv" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":[{"id":1,"name":"Frieren","first_air_date":"2023-09-29","genre_ids":[16,10765],"origin_country":["JP"]}]}`))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL, Language: "it-IT"})

	items, err := client.SearchSeries(context.Background(), "frieren")
	if err != nil {
		t.Fatalf("search series: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Frieren" || items[0].Year != 2023 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if len(items[0].GenreIDs) != 2 || items[0].OriginCountry[0] != "JP" {
		t.Fatalf("expected genre and origin metadata, got %+v", items[0])
	}
}

func TestTrendingSeriesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trending/tv/day" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":[{"id":7,"name":"Severance"}]}`))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL})

	items, err := client.TrendingSeries(context.Background())
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(items) != 1 || items[0].ProviderID != 7 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestNon200IsAnError(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_message":"Invalid API key"}`, http.StatusUnauthorized)
	})
	client := NewClient(Config{APIKey: "bad", BaseURL: srv.URL})

	_, err := client.SearchMovies(context.Background(), "matrix")
	if err == nil || !strings.Contains(err.Error(), "tmdb HTTP 401") || !strings.Contains(err.Error(), "Invalid API key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMalformedBodyIsAnError(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL})

	if _, err := client.SearchMovies(context.Background(), "matrix"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDisabledWithoutKey(t *testing.T) {
	srv, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	client := NewClient(Config{BaseURL: srv.URL})

	if client.Enabled() {
		t.Fatal("client without key should be disabled")
	}
	if _, err := client.SearchMovies(context.Background(), "matrix"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("disabled client must not call the API")
	}
}

func TestThrottleHonorsContext(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL, RatePerSecond: 0.01, Burst: 1})

	if _, err := client.SearchMovies(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.SearchMovies(ctx, "second"); err == nil || !strings.Contains(err.Error(), "tmdb throttle") {
		t.Fatalf("expected throttle error, got %v", err)
	}
}

func TestParseYear(t *testing.T) {
	tests := map[string]int{
		"1999-03-30": 1999,
		"2024":       2024,
		"":           0,
		"n/a":        0,
		"99-01-01":   0,
		"abcd-01-01": 0,
	}
	for input, want := range tests {
		if got := ParseYear(input); got != want {
			t.Errorf("ParseYear(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestRedisCacheIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_TEST_URL")
	if redisURL == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	srv, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchMovieBody))
	})
	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL, Redis: rdb, CacheTTL: time.Minute})
	query := "cache-test-" + time.Now().Format("150405.000000")

	for i := 0; i < 2; i++ {
		items, err := client.SearchMovies(context.Background(), query)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("unexpected items: %+v", items)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected second call to be served from redis, got %d upstream hits", hits.Load())
	}
}
