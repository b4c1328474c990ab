package search

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"cineamore/catalogservice/internal/domain"
)

// Relevance tiers. Matches not aligned to the start of the title or of a
// word share the bottom tier.
const (
	ScoreExact      = 100
	ScorePrefix     = 90
	ScoreWordPrefix = 80
	ScoreSubstring  = 10
)

const (
	animationGenreID = 16
	animeOrigin      = "JP"
)

// Score rates how well title matches query, case-insensitively.
func Score(title, query string) int {
	t := foldTitle(title)
	q := foldTitle(query)
	switch {
	case t == q:
		return ScoreExact
	case strings.HasPrefix(t, q):
		return ScorePrefix
	case hasWordPrefix(t, q):
		return ScoreWordPrefix
	default:
		return ScoreSubstring
	}
}

func foldTitle(raw string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
}

// hasWordPrefix reports whether query starts at any word boundary of title.
// Words are runs of letters and digits; everything else delimits.
func hasWordPrefix(title, query string) bool {
	if query == "" {
		return false
	}
	atBoundary := true
	for i, r := range title {
		if !isWordRune(r) {
			atBoundary = true
			continue
		}
		if atBoundary && strings.HasPrefix(title[i:], query) {
			return true
		}
		atBoundary = false
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// dedupeKey is the title+year identity shared by catalogue and provider
// results. An unknown year renders as the empty string.
func dedupeKey(title string, year int) string {
	yearPart := ""
	if year > 0 {
		yearPart = strconv.Itoa(year)
	}
	return foldTitle(title) + "-" + yearPart
}

// IsAnime reports whether a series candidate is Japanese animation.
func IsAnime(candidate domain.ExternalCandidate) bool {
	hasGenre := false
	for _, id := range candidate.GenreIDs {
		if id == animationGenreID {
			hasGenre = true
			break
		}
	}
	if !hasGenre {
		return false
	}
	for _, country := range candidate.OriginCountry {
		if strings.EqualFold(strings.TrimSpace(country), animeOrigin) {
			return true
		}
	}
	return false
}

func filterAnime(candidates []domain.ExternalCandidate) []domain.ExternalCandidate {
	filtered := make([]domain.ExternalCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if IsAnime(candidate) {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

func scoreCatalogue(movies []domain.Movie, query string) []domain.ScoredResult {
	results := make([]domain.ScoredResult, 0, len(movies))
	for _, movie := range movies {
		results = append(results, domain.ScoredResult{
			ID:         movie.ID,
			TMDBID:     movie.TMDBID,
			Title:      movie.Title,
			Year:       movie.Year,
			Director:   movie.Director,
			Poster:     movie.Poster,
			TMDBRating: movie.TMDBRating,
			Genre:      append([]string(nil), movie.Genre...),
			Source:     domain.ProvenanceCatalogue,
			Score:      Score(movie.Title, query),
		})
	}
	return results
}

func scoreExternal(candidates []domain.ExternalCandidate, query string, exclude map[string]struct{}) []domain.ScoredResult {
	results := make([]domain.ScoredResult, 0, len(candidates))
	for _, candidate := range candidates {
		if _, dup := exclude[dedupeKey(candidate.Title, candidate.Year)]; dup {
			continue
		}
		results = append(results, domain.ScoredResult{
			TMDBID:     candidate.ProviderID,
			Title:      candidate.Title,
			Year:       candidate.Year,
			Poster:     candidate.PosterURL,
			TMDBRating: candidate.Rating,
			Source:     domain.ProvenanceExternal,
			Score:      Score(candidate.Title, query),
		})
	}
	return results
}

func sortByScore(results []domain.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
