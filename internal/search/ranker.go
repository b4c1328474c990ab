package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cineamore/catalogservice/internal/domain"
	"cineamore/catalogservice/internal/metrics"
)

var tracer = otel.Tracer("cineamore/catalogservice/search")

// Search is the cached entry point used by the HTTP layer. Responses from a
// partially failed retrieval are returned but never cached.
func (s *Service) Search(ctx context.Context, request SearchRequest) (domain.SearchResponse, error) {
	if !validMode(request.Mode) {
		return domain.SearchResponse{}, ErrInvalidMode
	}
	query := strings.TrimSpace(request.Query)
	if isShortQuery(query) || s.cacheDisabled || request.NoCache {
		return s.Rank(ctx, query, request.Mode)
	}

	startedAt := s.now()
	cacheKey := buildSearchCacheKey(request.Mode, query)
	if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, query, request.Mode)
		}
		cached.ElapsedMS = s.now().Sub(startedAt).Milliseconds()
		return cached, nil
	}

	// The shared ranking is detached from the first caller's cancellation.
	results := s.flight.DoChan(cacheKey, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sourceTimeout+rankGrace)
		defer cancel()
		response, err := s.Rank(runCtx, query, request.Mode)
		if err != nil {
			return domain.SearchResponse{}, err
		}
		if !response.Degraded() {
			s.cacheStore(cacheKey, response, s.now())
		}
		return response, nil
	})
	select {
	case <-ctx.Done():
		return domain.SearchResponse{}, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return domain.SearchResponse{}, result.Err
		}
		return cloneSearchResponse(result.Val.(domain.SearchResponse)), nil
	}
}

func (s *Service) refreshCacheAsync(cacheKey, query string, mode domain.SearchMode) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sourceTimeout+rankGrace)
		defer cancel()
		response, err := s.Rank(ctx, query, mode)
		if err != nil || response.Degraded() {
			s.cacheRearmRefresh(cacheKey)
			return
		}
		s.cacheStore(cacheKey, response, s.now())
	}()
}

// Rank retrieves candidates for query from the sources that serve mode,
// scores them and returns catalogue and external results grouped by
// provenance. Source failures never surface as errors.
func (s *Service) Rank(ctx context.Context, query string, mode domain.SearchMode) (domain.SearchResponse, error) {
	if !validMode(mode) {
		return domain.SearchResponse{}, ErrInvalidMode
	}
	query = strings.TrimSpace(query)
	if isShortQuery(query) {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode), "short").Inc()
		return domain.EmptySearchResponse(query, mode), nil
	}

	ctx, span := tracer.Start(ctx, "search.rank", trace.WithAttributes(
		attribute.String("search.mode", string(mode)),
		attribute.Int("search.query_length", utf8.RuneCountInString(query)),
	))
	defer span.End()

	startedAt := s.now()

	var (
		wg              sync.WaitGroup
		local           []domain.Movie
		remote          []domain.ExternalCandidate
		localStatus     *domain.SourceStatus
		remoteStatus    *domain.SourceStatus
		searchCatalogue = mode == domain.SearchModeFilms && s.catalogue != nil
	)

	if searchCatalogue {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, status := fetchSource(ctx, s, sourceCatalogue, query, func(runCtx context.Context) ([]domain.Movie, error) {
				return s.catalogue.FindVisibleCandidates(runCtx, query, catalogueFetchLimit)
			})
			local, localStatus = items, &status
		}()
	}
	if s.external != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, status := fetchSource(ctx, s, sourceTMDB, query, func(runCtx context.Context) ([]domain.ExternalCandidate, error) {
				if mode == domain.SearchModeFilms {
					return s.external.SearchMovies(runCtx, query)
				}
				return s.external.SearchSeries(runCtx, query)
			})
			remote, remoteStatus = items, &status
		}()
	}
	wg.Wait()

	if mode == domain.SearchModeAnime {
		remote = filterAnime(remote)
		if remoteStatus != nil {
			remoteStatus.Count = len(remote)
		}
	}

	catalogueResults := scoreCatalogue(local, query)
	sortByScore(catalogueResults)
	if len(catalogueResults) > catalogueResultLimit {
		catalogueResults = catalogueResults[:catalogueResultLimit]
	}

	localKeys := make(map[string]struct{}, len(local))
	for _, movie := range local {
		localKeys[dedupeKey(movie.Title, movie.Year)] = struct{}{}
	}
	externalResults := scoreExternal(remote, query, localKeys)
	sortByScore(externalResults)

	response := domain.SearchResponse{
		Query:     query,
		Mode:      mode,
		Catalogue: catalogueResults,
		External:  externalResults,
		Sources:   make([]domain.SourceStatus, 0, 2),
		ElapsedMS: s.now().Sub(startedAt).Milliseconds(),
	}
	for _, status := range []*domain.SourceStatus{localStatus, remoteStatus} {
		if status != nil {
			response.Sources = append(response.Sources, *status)
		}
	}

	outcome := "ok"
	if response.Degraded() {
		outcome = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	metrics.SearchResults.WithLabelValues(string(domain.ProvenanceCatalogue)).Observe(float64(len(catalogueResults)))
	metrics.SearchResults.WithLabelValues(string(domain.ProvenanceExternal)).Observe(float64(len(externalResults)))
	span.SetAttributes(
		attribute.Int("search.catalogue_results", len(catalogueResults)),
		attribute.Int("search.external_results", len(externalResults)),
		attribute.Bool("search.degraded", response.Degraded()),
	)
	return response, nil
}

// fetchSource runs one retrieval under the source timeout and the circuit
// breaker. Any failure, including a panic inside the source, is turned into
// an empty result plus a failed status. A cancelled caller context is not a
// source failure and never reaches the breaker.
func fetchSource[T any](ctx context.Context, s *Service, name, query string, fetch func(context.Context) ([]T, error)) (items []T, status domain.SourceStatus) {
	status = domain.SourceStatus{Name: name}
	if err := ctx.Err(); err != nil {
		status.Error = err.Error()
		return nil, status
	}

	now := s.now()
	if blocked, until, lastErr := s.isSourceBlocked(name, now); blocked {
		status.Error = fmt.Sprintf("source temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
		return nil, status
	}

	runCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("source panic: %v", recovered)
			}
		}()
		items, err = fetch(runCtx)
	}()
	if err != nil && ctx.Err() != nil {
		status.Error = ctx.Err().Error()
		return nil, status
	}
	s.recordSourceResult(name, err, s.now().Sub(now), s.now())

	if err != nil {
		s.logger.Warn("search source failed",
			slog.String("source", name),
			slog.String("query", truncateQuery(query)),
			slog.String("error", err.Error()),
		)
		status.Error = err.Error()
		return nil, status
	}
	status.OK = true
	status.Count = len(items)
	return items, status
}

func validMode(mode domain.SearchMode) bool {
	switch mode {
	case domain.SearchModeFilms, domain.SearchModeSeries, domain.SearchModeAnime:
		return true
	default:
		return false
	}
}

func isShortQuery(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) < minQueryLength
}

func truncateQuery(query string) string {
	const limit = 80
	if len(query) <= limit {
		return query
	}
	return query[:limit-3] + "..."
}
