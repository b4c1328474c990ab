package search

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"cineamore/catalogservice/internal/domain"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
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
	return rdb
}

func TestRedisCacheRoundTripAndFlush(t *testing.T) {
	backend := NewRedisCacheBackend(newTestRedis(t))
	ctx := context.Background()
	key := buildSearchCacheKey(domain.SearchModeFilms, "redis-test-"+time.Now().Format("150405.000000"))

	if _, found, err := backend.Get(ctx, key); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	response := domain.SearchResponse{
		Query:     "heat",
		Mode:      domain.SearchModeFilms,
		Catalogue: []domain.ScoredResult{{ID: "m1", Title: "Heat", Source: domain.ProvenanceCatalogue, Score: ScoreExact}},
		External:  []domain.ScoredResult{},
	}
	if err := backend.Set(ctx, key, response, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found, err := backend.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if len(got.Catalogue) != 1 || got.Catalogue[0].Title != "Heat" {
		t.Fatalf("unexpected response: %+v", got)
	}

	removed, err := backend.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if removed < 1 {
		t.Fatalf("expected at least one key removed, got %d", removed)
	}
	if _, found, _ := backend.Get(ctx, key); found {
		t.Fatal("entry survived flush")
	}
}

func TestInvalidateCacheClearsSharedEntries(t *testing.T) {
	rdb := newTestRedis(t)
	clock := newTestClock()
	svc := NewService(nil, nil, WithClock(clock.Now), WithRedisCache(NewRedisCacheBackend(rdb)))
	key := buildSearchCacheKey(domain.SearchModeFilms, "invalidate-"+time.Now().Format("150405.000000"))

	svc.cacheStore(key, domain.SearchResponse{Query: "x"}, clock.Now())
	svc.InvalidateCache()

	if _, ok, _ := svc.cacheLookup(key, clock.Now()); ok {
		t.Fatal("expected cache miss after invalidation")
	}
}
