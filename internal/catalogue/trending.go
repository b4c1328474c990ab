package catalogue

import (
	"context"
	"fmt"
	"math"

	"cineamore/catalogservice/internal/domain"
)

const (
	trendingSize        = 10
	trendingModernQuota = 5
	trendingPoolSize    = 100
	trendingFallback    = 50
	trendingMinPool     = 10
	trendingMinRating   = 6
	trendingMinYear     = 1980
	trendingModernYear  = 2000
)

// DailyTrending returns up to ten visible, well rated movies. The pick is
// stable for a UTC day and changes the next.
func (s *Service) DailyTrending(ctx context.Context) ([]domain.Movie, error) {
	day := s.now().UTC().Format("2006-01-02")

	s.trendingMu.Lock()
	if s.trendingDay == day && s.trending != nil {
		cached := append([]domain.Movie(nil), s.trending...)
		s.trendingMu.Unlock()
		return cached, nil
	}
	s.trendingMu.Unlock()

	pool, err := s.movies.TopRated(ctx, trendingMinRating, trendingMinYear, trendingPoolSize)
	if err != nil {
		return nil, fmt.Errorf("trending pool: %w", err)
	}
	if len(pool) < trendingMinPool {
		pool, err = s.movies.RecentlyAdded(ctx, trendingMinYear, trendingFallback)
		if err != nil {
			return nil, fmt.Errorf("trending fallback pool: %w", err)
		}
	}

	picks := pickTrending(pool, day)

	s.trendingMu.Lock()
	s.trendingDay = day
	s.trending = picks
	s.trendingMu.Unlock()
	return append([]domain.Movie(nil), picks...), nil
}

// pickTrending favours films after 2000 but keeps room for 1981-2000, then
// mixes the order. Every shuffle is seeded by day so replicas agree.
func pickTrending(pool []domain.Movie, day string) []domain.Movie {
	var modern, classic []domain.Movie
	for _, m := range pool {
		switch {
		case m.Year > trendingModernYear:
			modern = append(modern, m)
		case m.Year > trendingMinYear:
			classic = append(classic, m)
		}
	}
	seededShuffle(modern, day)
	seededShuffle(classic, day+"-pre")

	picks := make([]domain.Movie, 0, trendingSize)
	picks = append(picks, modern[:min(trendingModernQuota, len(modern))]...)
	picks = append(picks, classic[:min(trendingSize-len(picks), len(classic))]...)
	if len(picks) < trendingSize && len(modern) > trendingModernQuota {
		end := min(trendingModernQuota+trendingSize-len(picks), len(modern))
		picks = append(picks, modern[trendingModernQuota:end]...)
	}

	seededShuffle(picks, day+"-final")
	if len(picks) > trendingSize {
		picks = picks[:trendingSize]
	}
	return picks
}

// seedFromString hashes seed into [0, 1).
func seedFromString(seed string) float64 {
	h := uint32(0xdeadbeef)
	for _, c := range []byte(seed) {
		h = (h ^ uint32(c)) * 2654435761
	}
	h ^= h >> 16
	return float64(h) / 4294967296
}

// seededShuffle is a Fisher-Yates shuffle driven by a linear congruential
// sequence started from seedFromString(seed).
func seededShuffle[T any](items []T, seed string) {
	state := seedFromString(seed)
	next := func() float64 {
		state = math.Mod(state*9301+49297, 233280)
		return state / 233280
	}
	for m := len(items); m > 0; {
		i := int(math.Floor(next() * float64(m)))
		m--
		items[m], items[i] = items[i], items[m]
	}
}
