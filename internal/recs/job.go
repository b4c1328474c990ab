// Package recs builds and posts the daily recommendations: one catalogue
// film, one trending series and one trending anime.
package recs

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"cineamore/catalogservice/internal/domain"
	"cineamore/catalogservice/internal/metrics"
	"cineamore/catalogservice/internal/search"
)

const (
	KindFilm   = "film"
	KindSeries = "series"
	KindAnime  = "anime"

	DefaultSiteURL = "https://cineamore.vercel.app"

	plotExcerptRunes = 150
	defaultTimeout   = 2 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("recommendations are already being posted")
	ErrNothingToPost  = errors.New("no recommendation could be posted")
)

// MovieSampler picks random catalogue entries in a given visibility state.
type MovieSampler interface {
	Sample(ctx context.Context, state domain.VisibilityState, n int) ([]domain.Movie, error)
}

type TrendingSource interface {
	TrendingSeries(ctx context.Context) ([]domain.ExternalCandidate, error)
}

type Poster interface {
	SendPhoto(ctx context.Context, photoURL, caption string) (int, error)
	SendHTML(ctx context.Context, text string) (int, error)
}

type PickResult struct {
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	MessageID int    `json:"messageId,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Summary struct {
	StartedAt time.Time    `json:"startedAt"`
	Posted    int          `json:"posted"`
	Failed    int          `json:"failed"`
	Picks     []PickResult `json:"picks"`
}

type Job struct {
	movies   MovieSampler
	trending TrendingSource
	poster   Poster
	siteURL  string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithSiteURL(siteURL string) Option {
	return func(j *Job) {
		if trimmed := strings.TrimRight(strings.TrimSpace(siteURL), "/"); trimmed != "" {
			j.siteURL = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(j *Job) {
		if timeout > 0 {
			j.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJob wires the job. trending may be nil, in which case the series and
// anime picks are skipped.
func NewJob(movies MovieSampler, trending TrendingSource, poster Poster, opts ...Option) *Job {
	j := &Job{
		movies:   movies,
		trending: trending,
		poster:   poster,
		siteURL:  DefaultSiteURL,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type pick struct {
	kind    string
	title   string
	caption string
	poster  string
}

// Run posts every pick in order. A failing pick is logged and the rest still
// go out; an error is returned only when nothing was posted and at least one
// pick failed.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if !j.running.TryLock() {
		return Summary{}, ErrAlreadyRunning
	}
	defer j.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	summary := Summary{StartedAt: j.now().UTC(), Picks: make([]PickResult, 0, 3)}

	film, filmErr := j.pickFilm(ctx)
	j.deliver(ctx, &summary, KindFilm, film, filmErr)

	series, anime, trendErr := j.pickTrending(ctx)
	j.deliver(ctx, &summary, KindSeries, series, trendErr)
	j.deliver(ctx, &summary, KindAnime, anime, trendErr)

	j.logger.Info("daily recommendations finished",
		slog.Int("posted", summary.Posted),
		slog.Int("failed", summary.Failed),
	)
	if summary.Posted == 0 && summary.Failed > 0 {
		return summary, ErrNothingToPost
	}
	return summary, nil
}

// RunScheduled adapts Run to the scheduler's job signature.
func (j *Job) RunScheduled() {
	if _, err := j.Run(context.Background()); err != nil {
		j.logger.Error("scheduled recommendations failed", slog.String("error", err.Error()))
	}
}

func (j *Job) deliver(ctx context.Context, summary *Summary, kind string, p *pick, pickErr error) {
	result := PickResult{Kind: kind}
	switch {
	case pickErr != nil:
		result.Error = pickErr.Error()
	case p == nil:
		result.Skipped = true
	default:
		result.Title = p.title
		var (
			id  int
			err error
		)
		if p.poster != "" {
			id, err = j.poster.SendPhoto(ctx, p.poster, p.caption)
		} else {
			id, err = j.poster.SendHTML(ctx, p.caption)
		}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.MessageID = id
		}
	}

	status := "ok"
	switch {
	case result.Error != "":
		status = "error"
		summary.Failed++
		j.logger.Warn("recommendation not posted",
			slog.String("kind", kind),
			slog.String("title", result.Title),
			slog.String("error", result.Error),
		)
	case result.Skipped:
		status = "skipped"
	default:
		summary.Posted++
	}
	metrics.RecsPostsTotal.WithLabelValues(kind, status).Inc()
	summary.Picks = append(summary.Picks, result)
}

func (j *Job) pickFilm(ctx context.Context) (*pick, error) {
	movies, err := j.movies.Sample(ctx, domain.VisibilityVisible, 1)
	if err != nil {
		return nil, fmt.Errorf("sample film: %w", err)
	}
	if len(movies) == 0 {
		return nil, nil
	}
	m := movies[0]
	return &pick{
		kind:    KindFilm,
		title:   m.Title,
		poster:  m.Poster,
		caption: caption("🎬", "Film of the Day", m.Title, m.Year, m.Plot, "Watch now", j.siteURL+"/movie/"+m.ID),
	}, nil
}

// pickTrending takes the first non-anime and the first anime entry of the
// daily trending TV list.
func (j *Job) pickTrending(ctx context.Context) (*pick, *pick, error) {
	if j.trending == nil {
		return nil, nil, nil
	}
	items, err := j.trending.TrendingSeries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("trending series: %w", err)
	}
	var series, anime *pick
	for _, item := range items {
		if series != nil && anime != nil {
			break
		}
		if search.IsAnime(item) {
			if anime == nil {
				anime = externalPick(KindAnime, "👺", "Anime Pick", "Stream now", j.siteURL+"/anime/", item)
			}
			continue
		}
		if series == nil {
			series = externalPick(KindSeries, "📺", "Series Recommendation", "Start bingeing", j.siteURL+"/series/", item)
		}
	}
	return series, anime, nil
}

func externalPick(kind, icon, heading, cta, linkPrefix string, item domain.ExternalCandidate) *pick {
	return &pick{
		kind:    kind,
		title:   item.Title,
		poster:  item.PosterURL,
		caption: caption(icon, heading, item.Title, item.Year, item.Overview, cta, linkPrefix+strconv.Itoa(item.ProviderID)),
	}
}

func caption(icon, heading, title string, year int, plot, cta, link string) string {
	var b strings.Builder
	b.WriteString(icon + " <b>" + heading + "</b>\n")
	b.WriteString("<b>" + html.EscapeString(title) + "</b>")
	if year > 0 {
		b.WriteString(" (" + strconv.Itoa(year) + ")")
	}
	b.WriteString("\n")
	if excerpt := plotExcerpt(plot); excerpt != "" {
		b.WriteString("\n" + html.EscapeString(excerpt) + "\n")
	}
	b.WriteString("\n👇 <b>" + cta + ":</b>\n")
	b.WriteString(html.EscapeString(link))
	return b.String()
}

func plotExcerpt(plot string) string {
	plot = strings.TrimSpace(plot)
	if utf8.RuneCountInString(plot) <= plotExcerptRunes {
		return plot
	}
	runes := []rune(plot)
	return strings.TrimSpace(string(runes[:plotExcerptRunes])) + "..."
}
