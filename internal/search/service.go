package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cineamore/catalogservice/internal/domain"
)

const (
	sourceCatalogue = "catalogue"
	sourceTMDB      = "tmdb"

	minQueryLength       = 2
	catalogueFetchLimit  = 50
	catalogueResultLimit = 20
	defaultSourceTimeout = 8 * time.Second

	// rankGrace bounds a detached ranking beyond the per-source timeout.
	rankGrace = 2 * time.Second
)

var ErrInvalidMode = errors.New("mode must be one of films, series, anime")

// CatalogueSource is the local store boundary used by the ranker.
type CatalogueSource interface {
	FindVisibleCandidates(ctx context.Context, substring string, limit int) ([]domain.Movie, error)
}

// ExternalSource is the metadata provider boundary. Only the first result
// page is expected.
type ExternalSource interface {
	SearchMovies(ctx context.Context, query string) ([]domain.ExternalCandidate, error)
	SearchSeries(ctx context.Context, query string) ([]domain.ExternalCandidate, error)
}

// toggleable is implemented by sources that can be switched off by
// configuration, such as a provider without an API key.
type toggleable interface {
	Enabled() bool
}

type SearchRequest struct {
	Query   string
	Mode    domain.SearchMode
	NoCache bool
}

type Service struct {
	catalogue     CatalogueSource
	external      ExternalSource
	sourceTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	cacheDisabled bool
	cacheTTL      time.Duration
	staleTTL      time.Duration
	cacheMax      int
	cacheMu       sync.Mutex
	cache         map[string]*cachedSearchResponse
	redisCache    *RedisCacheBackend
	flight        singleflight.Group

	healthMu sync.Mutex
	health   map[string]*sourceHealth
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSourceTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.sourceTimeout = timeout
		}
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
			s.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

// WithClock replaces time.Now for cache expiry and health windows.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the ranker. Either source may be nil; a nil source simply
// contributes no candidates. An external source reporting itself disabled is
// treated as absent, so it neither degrades nor uncaches responses.
func NewService(catalogue CatalogueSource, external ExternalSource, opts ...ServiceOption) *Service {
	if t, ok := external.(toggleable); ok && !t.Enabled() {
		external = nil
	}
	svc := &Service{
		catalogue:     catalogue,
		external:      external,
		sourceTimeout: defaultSourceTimeout,
		logger:        slog.Default(),
		now:           time.Now,
		cacheTTL:      defaultCacheTTL,
		staleTTL:      defaultStaleTTL,
		cacheMax:      defaultCacheMaxEntries,
		cache:         make(map[string]*cachedSearchResponse),
		health:        make(map[string]*sourceHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) Sources() []string {
	names := make([]string, 0, 2)
	if s.catalogue != nil {
		names = append(names, sourceCatalogue)
	}
	if s.external != nil {
		names = append(names, sourceTMDB)
	}
	return names
}
