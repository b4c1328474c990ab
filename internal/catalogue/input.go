package catalogue

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"cineamore/catalogservice/internal/domain"
)

const (
	minYear           = 1880
	maxYear           = 2100
	maxTitleLength    = 300
	maxRating         = 10
	maxReportName     = 50
	maxReportMessage  = 500
	maxRequestTitle   = 100
	maxDownloadLinks  = 20
	maxLinkLabelRunes = 80
)

type LinkInput struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// MovieInput is the payload for creating a catalogue entry.
type MovieInput struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Original      string      `json:"original"`
	Year          int         `json:"year"`
	Director      string      `json:"director"`
	Plot          string      `json:"plot"`
	Genre         []string    `json:"genre"`
	Poster        string      `json:"poster"`
	TMDBID        int         `json:"tmdbId"`
	TMDBRating    float64     `json:"tmdbRating"`
	Notes         string      `json:"notes"`
	DownloadLinks []LinkInput `json:"downloadLinks"`
	Visibility    string      `json:"visibility"`
}

// MoviePatch carries the fields an edit changes; nil means unchanged.
type MoviePatch struct {
	Title         *string      `json:"title"`
	Original      *string      `json:"original"`
	Year          *int         `json:"year"`
	Director      *string      `json:"director"`
	Plot          *string      `json:"plot"`
	Genre         *[]string    `json:"genre"`
	Poster        *string      `json:"poster"`
	TMDBID        *int         `json:"tmdbId"`
	TMDBRating    *float64     `json:"tmdbRating"`
	Notes         *string      `json:"notes"`
	DownloadLinks *[]LinkInput `json:"downloadLinks"`
}

func (in MovieInput) build(now time.Time) (domain.Movie, error) {
	state := domain.VisibilityVisible
	if strings.TrimSpace(in.Visibility) != "" {
		parsed, ok := domain.ParseVisibilityState(in.Visibility)
		if !ok {
			return domain.Movie{}, validationError("visibility must be one of visible, hidden, quarantined")
		}
		state = parsed
	}
	links, err := buildLinks(in.DownloadLinks, now)
	if err != nil {
		return domain.Movie{}, err
	}
	movie := domain.Movie{
		ID:            strings.TrimSpace(in.ID),
		Title:         strings.TrimSpace(in.Title),
		Original:      strings.TrimSpace(in.Original),
		Year:          in.Year,
		Director:      strings.TrimSpace(in.Director),
		Plot:          strings.TrimSpace(in.Plot),
		Genre:         normalizeGenres(in.Genre),
		Poster:        strings.TrimSpace(in.Poster),
		TMDBID:        in.TMDBID,
		TMDBRating:    in.TMDBRating,
		Notes:         strings.TrimSpace(in.Notes),
		DownloadLinks: links,
		Visibility:    domain.Visibility{State: state, ChangedAt: now},
	}
	if err := validateMovie(movie); err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}

func (p MoviePatch) apply(movie *domain.Movie, now time.Time) error {
	if p.Title != nil {
		movie.Title = strings.TrimSpace(*p.Title)
	}
	if p.Original != nil {
		movie.Original = strings.TrimSpace(*p.Original)
	}
	if p.Year != nil {
		movie.Year = *p.Year
	}
	if p.Director != nil {
		movie.Director = strings.TrimSpace(*p.Director)
	}
	if p.Plot != nil {
		movie.Plot = strings.TrimSpace(*p.Plot)
	}
	if p.Genre != nil {
		movie.Genre = normalizeGenres(*p.Genre)
	}
	if p.Poster != nil {
		movie.Poster = strings.TrimSpace(*p.Poster)
	}
	if p.TMDBID != nil {
		movie.TMDBID = *p.TMDBID
	}
	if p.TMDBRating != nil {
		movie.TMDBRating = *p.TMDBRating
	}
	if p.Notes != nil {
		movie.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.DownloadLinks != nil {
		links, err := mergeLinks(movie.DownloadLinks, *p.DownloadLinks, now)
		if err != nil {
			return err
		}
		movie.DownloadLinks = links
	}
	return validateMovie(*movie)
}

func validateMovie(m domain.Movie) error {
	switch {
	case m.Title == "":
		return validationError("title is required")
	case utf8.RuneCountInString(m.Title) > maxTitleLength:
		return validationError(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	case m.Year != 0 && (m.Year < minYear || m.Year > maxYear):
		return validationError(fmt.Sprintf("year must be between %d and %d", minYear, maxYear))
	case m.TMDBRating < 0 || m.TMDBRating > maxRating:
		return validationError("tmdbRating must be between 0 and 10")
	case m.TMDBID < 0:
		return validationError("tmdbId must not be negative")
	case m.Poster != "" && !isHTTPURL(m.Poster):
		return validationError("poster must be an absolute http(s) URL")
	}
	return nil
}

func buildLinks(inputs []LinkInput, now time.Time) ([]domain.DownloadLink, error) {
	return mergeLinks(nil, inputs, now)
}

// mergeLinks validates inputs and keeps the original AddedAt of links whose
// URL was already present.
func mergeLinks(existing []domain.DownloadLink, inputs []LinkInput, now time.Time) ([]domain.DownloadLink, error) {
	if len(inputs) > maxDownloadLinks {
		return nil, validationError(fmt.Sprintf("at most %d download links", maxDownloadLinks))
	}
	addedAt := make(map[string]time.Time, len(existing))
	for _, link := range existing {
		addedAt[link.URL] = link.AddedAt
	}
	links := make([]domain.DownloadLink, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		label := strings.TrimSpace(in.Label)
		raw := strings.TrimSpace(in.URL)
		if !isHTTPURL(raw) {
			return nil, validationError("download link url must be an absolute http(s) URL")
		}
		if utf8.RuneCountInString(label) > maxLinkLabelRunes {
			return nil, validationError(fmt.Sprintf("download link label must be at most %d characters", maxLinkLabelRunes))
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		at, ok := addedAt[raw]
		if !ok {
			at = now
		}
		links = append(links, domain.DownloadLink{Label: label, URL: raw, AddedAt: at})
	}
	if len(links) == 0 {
		return nil, nil
	}
	return links, nil
}

func normalizeGenres(genres []string) []string {
	seen := make(map[string]struct{}, len(genres))
	clean := make([]string, 0, len(genres))
	for _, genre := range genres {
		g := strings.TrimSpace(genre)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		clean = append(clean, g)
	}
	return clean
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validationError(message string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, message)
}
