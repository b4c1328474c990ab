package domain

import (
	"strings"
	"time"
)

type VisibilityState string

const (
	VisibilityVisible     VisibilityState = "visible"
	VisibilityHidden      VisibilityState = "hidden"
	VisibilityQuarantined VisibilityState = "quarantined"
)

func ParseVisibilityState(raw string) (VisibilityState, bool) {
	switch VisibilityState(strings.ToLower(strings.TrimSpace(raw))) {
	case VisibilityVisible:
		return VisibilityVisible, true
	case VisibilityHidden:
		return VisibilityHidden, true
	case VisibilityQuarantined:
		return VisibilityQuarantined, true
	default:
		return "", false
	}
}

type Visibility struct {
	State     VisibilityState `json:"state"`
	Reason    string          `json:"reason,omitempty"`
	ChangedAt time.Time       `json:"changedAt"`
}

type DownloadLink struct {
	Label   string    `json:"label"`
	URL     string    `json:"url"`
	AddedAt time.Time `json:"addedAt"`
}

// Movie is a catalogue entry. ID is the stable legacy identifier and never
// changes once assigned.
type Movie struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Original      string         `json:"original,omitempty"`
	Year          int            `json:"year,omitempty"`
	Director      string         `json:"director,omitempty"`
	Plot          string         `json:"plot,omitempty"`
	Genre         []string       `json:"genre"`
	Poster        string         `json:"poster,omitempty"`
	TMDBID        int            `json:"tmdbId,omitempty"`
	TMDBRating    float64        `json:"tmdbRating"`
	Notes         string         `json:"notes,omitempty"`
	DownloadLinks []DownloadLink `json:"downloadLinks,omitempty"`
	Visibility    Visibility     `json:"visibility"`
	AddedAt       time.Time      `json:"addedAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (m Movie) Visible() bool {
	return m.Visibility.State == VisibilityVisible
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type MovieSort string

const (
	MovieSortAddedAt MovieSort = "addedAt"
	MovieSortYear    MovieSort = "year"
	MovieSortRating  MovieSort = "rating"
	MovieSortTitle   MovieSort = "title"
)

func NormalizeMovieSort(raw string) MovieSort {
	switch MovieSort(strings.TrimSpace(raw)) {
	case MovieSortYear:
		return MovieSortYear
	case MovieSortRating:
		return MovieSortRating
	case MovieSortTitle:
		return MovieSortTitle
	default:
		return MovieSortAddedAt
	}
}

func NormalizeSortOrder(raw string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(raw))) == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// MovieFilter drives catalogue listings. A nil State matches every
// visibility state.
type MovieFilter struct {
	State     *VisibilityState
	Genre     string
	YearFrom  int
	YearTo    int
	Search    string
	SortBy    MovieSort
	SortOrder SortOrder
	Limit     int
	Offset    int
}

type MoviePage struct {
	Items  []Movie `json:"items"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
