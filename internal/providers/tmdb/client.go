// Package tmdb is a small client for The Movie Database v3 REST API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"cineamore/catalogservice/internal/domain"
	"cineamore/catalogservice/internal/metrics"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	PosterBaseURL    = "https://image.tmdb.org/t/p/w500"
	defaultLanguage  = "en-US"
	defaultCacheTTL  = 24 * time.Hour
	defaultRate      = 4.0
	defaultBurst     = 10
	redisCachePrefix = "catalogue:tmdb:"

	endpointSearchMovie = "/search/movie"
	endpointSearchTV    = "/search/tv"
	endpointTrendingTV  = "/trending/tv/day"
)

var ErrDisabled = errors.New("tmdb api key not configured")

type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	limiter  *rate.Limiter
}

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	// RatePerSecond and Burst size the outbound token bucket.
	RatePerSecond float64
	Burst         int
}

type result struct {
	ID            int      `json:"id"`
	Title         string   `json:"title,omitempty"`
	Name          string   `json:"name,omitempty"`
	Overview      string   `json:"overview,omitempty"`
	PosterPath    string   `json:"poster_path,omitempty"`
	VoteAverage   float64  `json:"vote_average,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	FirstAirDate  string   `json:"first_air_date,omitempty"`
	GenreIDs      []int    `json:"genre_ids,omitempty"`
	OriginCountry []string `json:"origin_country,omitempty"`
}

type pageResponse struct {
	Results []result `json:"results"`
}

func (r result) displayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r result) candidate() domain.ExternalCandidate {
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	return domain.ExternalCandidate{
		ProviderID:    r.ID,
		Title:         r.displayTitle(),
		Year:          ParseYear(date),
		PosterPath:    r.PosterPath,
		PosterURL:     PosterURL(r.PosterPath),
		Rating:        r.VoteAverage,
		GenreIDs:      append([]int(nil), r.GenreIDs...),
		OriginCountry: append([]string(nil), r.OriginCountry...),
		Overview:      r.Overview,
	}
}

// ParseYear returns the leading year of a YYYY-MM-DD date, or 0 when the
// date is missing or malformed.
func ParseYear(date string) int {
	head, _, _ := strings.Cut(strings.TrimSpace(date), "-")
	if len(head) != 4 {
		return 0
	}
	year, err := strconv.Atoi(head)
	if err != nil || year <= 0 {
		return 0
	}
	return year
}

func PosterURL(path string) string {
	if path == "" {
		return ""
	}
	return PosterBaseURL + path
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SearchMovies returns the first result page of /search/movie.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]domain.ExternalCandidate, error) {
	return c.fetch(ctx, endpointSearchMovie, url.Values{
		"query":         {strings.TrimSpace(query)},
		"include_adult": {"false"},
		"page":          {"1"},
	})
}

// SearchSeries returns the first result page of /search/tv.
func (c *Client) SearchSeries(ctx context.Context, query string) ([]domain.ExternalCandidate, error) {
	return c.fetch(ctx, endpointSearchTV, url.Values{
		"query":         {strings.TrimSpace(query)},
		"include_adult": {"false"},
		"page":          {"1"},
	})
}

// TrendingSeries returns today's trending TV shows.
func (c *Client) TrendingSeries(ctx context.Context) ([]domain.ExternalCandidate, error) {
	return c.fetch(ctx, endpointTrendingTV, url.Values{})
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]domain.ExternalCandidate, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	params.Set("language", c.language)

	cacheKey := endpoint + "?" + strings.ToLower(params.Encode())
	if cached, ok := c.cacheGet(ctx, cacheKey); ok {
		return toCandidates(cached), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb throttle: %w", err)
	}

	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	metrics.TMDBRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startedAt).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, err
	}
	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("tmdb decode %s: %w", endpoint, err)
	}

	c.cacheSet(ctx, cacheKey, page.Results)
	return toCandidates(page.Results), nil
}

func toCandidates(results []result) []domain.ExternalCandidate {
	items := make([]domain.ExternalCandidate, 0, len(results))
	for _, r := range results {
		if r.displayTitle() == "" {
			continue
		}
		items = append(items, r.candidate())
	}
	return items
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]result, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var results []result
	if json.Unmarshal(data, &results) != nil {
		return nil, false
	}
	return results, true
}

func (c *Client) cacheSet(ctx context.Context, key string, results []result) {
	if c.redis == nil {
		return
	}
	if data, err := json.Marshal(results); err == nil {
		_ = c.redis.Set(ctx, redisCachePrefix+key, data, c.cacheTTL).Err()
	}
}
