// Package catalogue holds the curation, browsing and feedback rules that sit
// between the HTTP layer and the MongoDB repositories.
package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cineamore/catalogservice/internal/domain"
)

const (
	defaultBrowseLimit = 24
	maxBrowseLimit     = 100
	defaultAdminLimit  = 200
)

type MovieStore interface {
	Get(ctx context.Context, id string) (domain.Movie, error)
	List(ctx context.Context, filter domain.MovieFilter) ([]domain.Movie, error)
	Count(ctx context.Context, filter domain.MovieFilter) (int64, error)
	Create(ctx context.Context, movie domain.Movie) error
	Update(ctx context.Context, movie domain.Movie) error
	SetVisibility(ctx context.Context, id string, visibility domain.Visibility) error
	TopRated(ctx context.Context, minRating float64, minYear, limit int) ([]domain.Movie, error)
	RecentlyAdded(ctx context.Context, minYear, limit int) ([]domain.Movie, error)
}

type ReportStore interface {
	Create(ctx context.Context, report domain.Report) error
	List(ctx context.Context, onlyOpen bool, limit int) ([]domain.Report, error)
	SetResolved(ctx context.Context, id string, resolved bool) error
}

type RequestStore interface {
	Create(ctx context.Context, request domain.Request) error
	List(ctx context.Context, status *domain.RequestStatus, limit int) ([]domain.Request, error)
	SetStatus(ctx context.Context, id string, status domain.RequestStatus) error
}

type Service struct {
	movies   MovieStore
	reports  ReportStore
	requests RequestStore
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	onChange func()

	trendingMu  sync.Mutex
	trendingDay string
	trending    []domain.Movie
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithChangeHook registers a callback run after every successful movie write.
func WithChangeHook(hook func()) Option {
	return func(s *Service) {
		s.onChange = hook
	}
}

func NewService(movies MovieStore, reports ReportStore, requests RequestStore, opts ...Option) *Service {
	s := &Service{
		movies:   movies,
		reports:  reports,
		requests: requests,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Browse lists visible movies only, whatever state the caller asked for.
func (s *Service) Browse(ctx context.Context, filter domain.MovieFilter) (domain.MoviePage, error) {
	visible := domain.VisibilityVisible
	filter.State = &visible
	return s.list(ctx, filter, defaultBrowseLimit)
}

// AdminMovies lists movies in any state; filter.State narrows it.
func (s *Service) AdminMovies(ctx context.Context, filter domain.MovieFilter) (domain.MoviePage, error) {
	return s.list(ctx, filter, defaultBrowseLimit)
}

func (s *Service) Quarantined(ctx context.Context, limit int) ([]domain.Movie, error) {
	state := domain.VisibilityQuarantined
	page, err := s.list(ctx, domain.MovieFilter{
		State:     &state,
		SortBy:    domain.MovieSortAddedAt,
		SortOrder: domain.SortDesc,
		Limit:     limit,
	}, maxBrowseLimit)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (s *Service) list(ctx context.Context, filter domain.MovieFilter, defaultLimit int) (domain.MoviePage, error) {
	filter.Limit = clampLimit(filter.Limit, defaultLimit, maxBrowseLimit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.SortBy = domain.NormalizeMovieSort(string(filter.SortBy))
	filter.SortOrder = domain.NormalizeSortOrder(string(filter.SortOrder))

	items, err := s.movies.List(ctx, filter)
	if err != nil {
		return domain.MoviePage{}, fmt.Errorf("list movies: %w", err)
	}
	total, err := s.movies.Count(ctx, filter)
	if err != nil {
		return domain.MoviePage{}, fmt.Errorf("count movies: %w", err)
	}
	if items == nil {
		items = []domain.Movie{}
	}
	return domain.MoviePage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Movie returns one entry. Non-visible entries are reported as not found
// unless includeHidden is set.
func (s *Service) Movie(ctx context.Context, id string, includeHidden bool) (domain.Movie, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Movie{}, domain.ErrNotFound
	}
	movie, err := s.movies.Get(ctx, id)
	if err != nil {
		return domain.Movie{}, err
	}
	if !includeHidden && !movie.Visible() {
		return domain.Movie{}, domain.ErrNotFound
	}
	return movie, nil
}

func (s *Service) CreateMovie(ctx context.Context, input MovieInput) (domain.Movie, error) {
	now := s.now().UTC()
	movie, err := input.build(now)
	if err != nil {
		return domain.Movie{}, err
	}
	if movie.ID == "" {
		movie.ID = s.newID()
	}
	movie.AddedAt = now
	movie.UpdatedAt = now

	if err := s.movies.Create(ctx, movie); err != nil {
		return domain.Movie{}, err
	}
	s.logger.Info("movie created", slog.String("id", movie.ID), slog.String("title", movie.Title))
	s.changed()
	return movie, nil
}

func (s *Service) UpdateMovie(ctx context.Context, id string, patch MoviePatch) (domain.Movie, error) {
	movie, err := s.movies.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Movie{}, err
	}
	now := s.now().UTC()
	if err := patch.apply(&movie, now); err != nil {
		return domain.Movie{}, err
	}
	movie.UpdatedAt = now
	if err := s.movies.Update(ctx, movie); err != nil {
		return domain.Movie{}, err
	}
	s.logger.Info("movie updated", slog.String("id", movie.ID))
	s.changed()
	return movie, nil
}

func (s *Service) SetVisibility(ctx context.Context, id, rawState, reason string) (domain.Movie, error) {
	state, ok := domain.ParseVisibilityState(rawState)
	if !ok {
		return domain.Movie{}, fmt.Errorf("%w: state must be one of visible, hidden, quarantined", domain.ErrValidation)
	}
	visibility := domain.Visibility{
		State:     state,
		Reason:    strings.TrimSpace(reason),
		ChangedAt: s.now().UTC(),
	}
	if err := s.movies.SetVisibility(ctx, strings.TrimSpace(id), visibility); err != nil {
		return domain.Movie{}, err
	}
	s.logger.Info("movie visibility changed",
		slog.String("id", id),
		slog.String("state", string(state)),
		slog.String("reason", visibility.Reason),
	)
	s.changed()
	return s.movies.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) changed() {
	s.trendingMu.Lock()
	s.trendingDay = ""
	s.trending = nil
	s.trendingMu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
