package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"cineamore/catalogservice/internal/domain"
	"cineamore/catalogservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultStaleTTL        = 30 * time.Minute
	defaultCacheMaxEntries = 400
	redisCacheTimeout      = 500 * time.Millisecond
)

type cachedSearchResponse struct {
	response    domain.SearchResponse
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshOnce sync.Once // one background refresh per stale period
}

// cacheLookup returns the cached response for key. The third value reports
// whether the caller should start a background refresh of a stale entry.
func (s *Service) cacheLookup(key string, now time.Time) (domain.SearchResponse, bool, bool) {
	s.cacheMu.Lock()
	entry, ok := s.cache[key]
	if ok {
		switch {
		case now.Before(entry.expiresAt):
			response := cloneSearchResponse(entry.response)
			s.cacheMu.Unlock()
			metrics.CacheHitsTotal.Inc()
			return response, true, false
		case now.Before(entry.staleUntil):
			needsRefresh := false
			entry.refreshOnce.Do(func() {
				needsRefresh = true
			})
			response := cloneSearchResponse(entry.response)
			s.cacheMu.Unlock()
			metrics.CacheHitsTotal.Inc()
			return response, true, needsRefresh
		default:
			delete(s.cache, key)
		}
	}
	s.cacheMu.Unlock()

	if s.redisCache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
		defer cancel()
		response, found, err := s.redisCache.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, response, now)
			return response, true, false
		}
	}

	metrics.CacheMissesTotal.Inc()
	return domain.SearchResponse{}, false, false
}

func (s *Service) cacheStore(key string, response domain.SearchResponse, now time.Time) {
	if s.redisCache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
		defer cancel()
		_ = s.redisCache.Set(ctx, key, response, s.cacheTTL)
	}
	s.cacheStoreMemoryOnly(key, response, now)
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.SearchResponse, now time.Time) {
	staleTTL := s.staleTTL
	if staleTTL <= s.cacheTTL {
		staleTTL = s.cacheTTL * 3
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(s.cacheTTL),
		staleUntil: now.Add(staleTTL),
	}
	s.trimCacheLocked(now)
}

// cacheRearmRefresh lets the next stale lookup of key retry a background
// refresh that failed.
func (s *Service) cacheRearmRefresh(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshOnce = sync.Once{}
	}
}

// InvalidateCache drops every cached response, local and shared. It runs
// after catalogue writes.
func (s *Service) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache = make(map[string]*cachedSearchResponse)
	s.cacheMu.Unlock()

	if s.redisCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if removed, err := s.redisCache.Flush(ctx); err != nil {
		s.logger.Warn("search cache flush failed", slog.String("error", err.Error()))
	} else {
		s.logger.Debug("search cache flushed", slog.Int("removed", removed))
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}
	if len(s.cache) <= s.cacheMax {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-s.cacheMax; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	cloned.Catalogue = cloneResults(response.Catalogue)
	cloned.External = cloneResults(response.External)
	if response.Sources != nil {
		cloned.Sources = append([]domain.SourceStatus(nil), response.Sources...)
	}
	return cloned
}

func cloneResults(items []domain.ScoredResult) []domain.ScoredResult {
	if items == nil {
		return nil
	}
	cloned := make([]domain.ScoredResult, len(items))
	for i, item := range items {
		copied := item
		copied.Genre = append([]string(nil), item.Genre...)
		cloned[i] = copied
	}
	return cloned
}

func buildSearchCacheKey(mode domain.SearchMode, query string) string {
	return "m=" + string(mode) + "|q=" + strings.ToLower(strings.TrimSpace(query))
}
