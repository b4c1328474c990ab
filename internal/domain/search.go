package domain

import (
	"strings"
	"time"
)

type SearchMode string

const (
	SearchModeFilms  SearchMode = "films"
	SearchModeSeries SearchMode = "series"
	SearchModeAnime  SearchMode = "anime"
)

// ParseSearchMode maps a raw mode value onto a known mode. The second return
// value is false for anything that is not films, series or anime.
func ParseSearchMode(raw string) (SearchMode, bool) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case SearchModeFilms:
		return SearchModeFilms, true
	case SearchModeSeries:
		return SearchModeSeries, true
	case SearchModeAnime:
		return SearchModeAnime, true
	default:
		return "", false
	}
}

type Provenance string

const (
	ProvenanceCatalogue Provenance = "catalogue"
	ProvenanceExternal  Provenance = "external"
)

// ExternalCandidate is a single hit returned by the metadata provider.
// Year is 0 when the provider sent no usable release date.
type ExternalCandidate struct {
	ProviderID    int      `json:"providerId"`
	Title         string   `json:"title"`
	Year          int      `json:"year,omitempty"`
	PosterPath    string   `json:"posterPath,omitempty"`
	PosterURL     string   `json:"poster,omitempty"`
	Rating        float64  `json:"rating"`
	GenreIDs      []int    `json:"genreIds,omitempty"`
	OriginCountry []string `json:"originCountry,omitempty"`
	Overview      string   `json:"overview,omitempty"`
}

type ScoredResult struct {
	ID         string     `json:"id,omitempty"`
	TMDBID     int        `json:"tmdbId,omitempty"`
	Title      string     `json:"title"`
	Year       int        `json:"year,omitempty"`
	Director   string     `json:"director,omitempty"`
	Poster     string     `json:"poster,omitempty"`
	TMDBRating float64    `json:"tmdbRating"`
	Genre      []string   `json:"genre,omitempty"`
	Source     Provenance `json:"source"`
	Score      int        `json:"score"`
}

type SourceStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type SearchResponse struct {
	Query     string         `json:"query"`
	Mode      SearchMode     `json:"mode"`
	Catalogue []ScoredResult `json:"catalogue"`
	External  []ScoredResult `json:"external"`
	Sources   []SourceStatus `json:"sources,omitempty"`
	ElapsedMS int64          `json:"elapsedMs"`
}

// EmptySearchResponse is the answer for queries below the minimum length:
// both arrays present and empty so clients never see null.
func EmptySearchResponse(query string, mode SearchMode) SearchResponse {
	return SearchResponse{
		Query:     query,
		Mode:      mode,
		Catalogue: []ScoredResult{},
		External:  []ScoredResult{},
	}
}

func (r SearchResponse) Degraded() bool {
	for _, source := range r.Sources {
		if !source.OK {
			return true
		}
	}
	return false
}

type SourceDiagnostics struct {
	Name                string     `json:"name"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	LastTimeout         bool       `json:"lastTimeout"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
	TimeoutCount        int64      `json:"timeoutCount"`
}
