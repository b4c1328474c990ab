package apihttp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cineamore/catalogservice/internal/catalogue"
	"cineamore/catalogservice/internal/domain"
	"cineamore/catalogservice/internal/recs"
	"cineamore/catalogservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxQueryLength = 500
	adminKeyHeader = "X-Admin-Key"
)

type SearchService interface {
	Search(ctx context.Context, request search.SearchRequest) (domain.SearchResponse, error)
	SourceDiagnostics() []domain.SourceDiagnostics
}

type CatalogueService interface {
	Browse(ctx context.Context, filter domain.MovieFilter) (domain.MoviePage, error)
	AdminMovies(ctx context.Context, filter domain.MovieFilter) (domain.MoviePage, error)
	Quarantined(ctx context.Context, limit int) ([]domain.Movie, error)
	Movie(ctx context.Context, id string, includeHidden bool) (domain.Movie, error)
	CreateMovie(ctx context.Context, input catalogue.MovieInput) (domain.Movie, error)
	UpdateMovie(ctx context.Context, id string, patch catalogue.MoviePatch) (domain.Movie, error)
	SetVisibility(ctx context.Context, id, state, reason string) (domain.Movie, error)
	DailyTrending(ctx context.Context) ([]domain.Movie, error)

	SubmitReport(ctx context.Context, input catalogue.ReportInput) (domain.Report, error)
	SubmitRequest(ctx context.Context, input catalogue.RequestInput) (domain.Request, error)
	Reports(ctx context.Context, onlyOpen bool, limit int) ([]domain.Report, error)
	Requests(ctx context.Context, status string, limit int) ([]domain.Request, error)
	ResolveReport(ctx context.Context, id string, resolved bool) error
	SetRequestStatus(ctx context.Context, id, status string) error
	ExportReports(ctx context.Context, w io.Writer) error
	ExportRequests(ctx context.Context, w io.Writer) error
}

type RecsRunner interface {
	Run(ctx context.Context) (recs.Summary, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	search    SearchService
	catalogue CatalogueService
	recs      RecsRunner
	adminKey  string
	checks    map[string]HealthCheck
	logger    *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithRecs(runner RecsRunner) ServerOption {
	return func(s *Server) {
		s.recs = runner
	}
}

// WithAdminKey enables the admin routes. An empty key leaves them answering
// 501.
func WithAdminKey(key string) ServerOption {
	return func(s *Server) {
		s.adminKey = strings.TrimSpace(key)
	}
}

func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

func NewServer(searchService SearchService, catalogueService CatalogueService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		catalogue: catalogueService,
		checks:    make(map[string]HealthCheck),
		logger:    slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/search/sources", s.handleSearchSources)
	mux.HandleFunc("GET /api/movies", s.handleBrowse)
	mux.HandleFunc("GET /api/movies/{id}", s.handleMovie)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("POST /api/report", s.handleSubmitReport)
	mux.HandleFunc("POST /api/request", s.handleSubmitRequest)
	mux.Handle("GET /api/image", newImageProxy(s.logger))

	mux.Handle("GET /api/admin/movies", s.admin(s.handleAdminMovies))
	mux.Handle("POST /api/admin/movies", s.admin(s.handleCreateMovie))
	mux.Handle("GET /api/admin/movies/{id}", s.admin(s.handleAdminMovie))
	mux.Handle("PATCH /api/admin/movies/{id}", s.admin(s.handleUpdateMovie))
	mux.Handle("PUT /api/admin/movies/{id}/visibility", s.admin(s.handleSetVisibility))
	mux.Handle("GET /api/admin/quarantined", s.admin(s.handleQuarantined))
	mux.Handle("GET /api/admin/reports", s.admin(s.handleReports))
	mux.Handle("PATCH /api/admin/reports/{id}", s.admin(s.handleResolveReport))
	mux.Handle("GET /api/admin/requests", s.admin(s.handleRequests))
	mux.Handle("PATCH /api/admin/requests/{id}", s.admin(s.handleRequestStatus))
	mux.Handle("GET /api/export/reports", s.admin(s.handleExportReports))
	mux.Handle("GET /api/export/requests", s.admin(s.handleExportRequests))
	mux.Handle("POST /api/admin/recs/run", s.admin(s.handleRunRecs))

	traced := otelhttp.NewHandler(observe(s.logger, mux), "catalogue",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, traced)
}

// admin guards curator routes with the shared X-Admin-Key.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			writeError(w, http.StatusNotImplemented, "not_configured", "admin api is not configured")
			return
		}
		given := strings.TrimSpace(r.Header.Get(adminKeyHeader))
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.adminKey)) != 1 {
			s.logger.Warn("admin request rejected",
				slog.String("path", r.URL.Path),
				slog.String("clientIP", clientIP(r)),
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin key")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				payload["status"] = "degraded"
				continue
			}
			results[name] = "ok"
		}
		payload["checks"] = results
	}
	writeJSON(w, status, payload)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	mode, ok := domain.ParseSearchMode(r.URL.Query().Get("mode"))
	if !ok {
		mode = domain.SearchModeFilms
	}
	noCache := parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache"))

	response, err := s.search.Search(r.Context(), search.SearchRequest{
		Query:   query,
		Mode:    mode,
		NoCache: noCache,
	})
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("search request cancelled", slog.String("query", truncate(query, 80)))
		return
	}
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidMode):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	failedSources := make([]string, 0, len(response.Sources))
	for _, status := range response.Sources {
		if !status.OK {
			failedSources = append(failedSources, status.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.String("mode", string(mode)),
		slog.Int("catalogue", len(response.Catalogue)),
		slog.Int("external", len(response.External)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	if len(failedSources) > 0 {
		s.logger.Warn("search sources partially failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("failedSources", failedSources),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchSources(w http.ResponseWriter, _ *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.SourceDiagnostics(),
	})
}

func (s *Server) handleRunRecs(w http.ResponseWriter, r *http.Request) {
	if s.recs == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "telegram recommendations are not configured")
		return
	}
	summary, err := s.recs.Run(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, recs.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, recs.ErrNothingToPost):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":   map[string]string{"code": "upstream_error", "message": err.Error()},
				"summary": summary,
			})
		default:
			s.logger.Error("recommendations run failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "recommendations failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeServiceError maps domain errors onto the JSON error envelope.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict", "already exists")
	default:
		s.logger.Error(action+" failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", action+" failed")
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
