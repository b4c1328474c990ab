package catalogue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cineamore/catalogservice/internal/domain"
)

type memoryMovies struct {
	mu            sync.Mutex
	items         map[string]domain.Movie
	topRatedCalls int
	recentCalls   int
	lastFilter    domain.MovieFilter
}

func newMemoryMovies(movies ...domain.Movie) *memoryMovies {
	store := &memoryMovies{items: make(map[string]domain.Movie)}
	for _, m := range movies {
		store.items[m.ID] = m
	}
	return store
}

func (s *memoryMovies) Get(_ context.Context, id string) (domain.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return domain.Movie{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memoryMovies) matching(filter domain.MovieFilter) []domain.Movie {
	var out []domain.Movie
	for _, m := range s.items {
		if filter.State != nil && m.Visibility.State != *filter.State {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryMovies) List(_ context.Context, filter domain.MovieFilter) ([]domain.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	out := s.matching(filter)
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memoryMovies) Count(_ context.Context, filter domain.MovieFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matching(filter))), nil
}

func (s *memoryMovies) Create(_ context.Context, movie domain.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[movie.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.items[movie.ID] = movie
	return nil
}

func (s *memoryMovies) Update(_ context.Context, movie domain.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[movie.ID]; !ok {
		return domain.ErrNotFound
	}
	s.items[movie.ID] = movie
	return nil
}

func (s *memoryMovies) SetVisibility(_ context.Context, id string, visibility domain.Visibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Visibility = visibility
	s.items[id] = m
	return nil
}

func (s *memoryMovies) TopRated(_ context.Context, minRating float64, minYear, limit int) ([]domain.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topRatedCalls++
	var out []domain.Movie
	for _, m := range s.items {
		if m.Visible() && m.TMDBRating > minRating && m.Year > minYear {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TMDBRating != out[j].TMDBRating {
			return out[i].TMDBRating > out[j].TMDBRating
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryMovies) RecentlyAdded(_ context.Context, minYear, limit int) ([]domain.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentCalls++
	var out []domain.Movie
	for _, m := range s.items {
		if m.Visible() && m.Year > minYear {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryReports struct {
	items []domain.Report
}

func (s *memoryReports) Create(_ context.Context, report domain.Report) error {
	s.items = append([]domain.Report{report}, s.items...)
	return nil
}

func (s *memoryReports) List(_ context.Context, onlyOpen bool, limit int) ([]domain.Report, error) {
	var out []domain.Report
	for _, r := range s.items {
		if onlyOpen && r.Resolved {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryReports) SetResolved(_ context.Context, id string, resolved bool) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Resolved = resolved
			return nil
		}
	}
	return domain.ErrNotFound
}

type memoryRequests struct {
	items      []domain.Request
	lastStatus *domain.RequestStatus
}

func (s *memoryRequests) Create(_ context.Context, request domain.Request) error {
	s.items = append([]domain.Request{request}, s.items...)
	return nil
}

func (s *memoryRequests) List(_ context.Context, status *domain.RequestStatus, limit int) ([]domain.Request, error) {
	s.lastStatus = status
	var out []domain.Request
	for _, r := range s.items {
		if status != nil && r.Status != *status {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryRequests) SetStatus(_ context.Context, id string, status domain.RequestStatus) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func movie(id, title string, year int, rating float64, state domain.VisibilityState) domain.Movie {
	return domain.Movie{
		ID:         id,
		Title:      title,
		Year:       year,
		TMDBRating: rating,
		Genre:      []string{},
		Visibility: domain.Visibility{State: state},
	}
}
