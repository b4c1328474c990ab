package apihttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cineamore/catalogservice/internal/catalogue"
	"cineamore/catalogservice/internal/domain"
)

var errInvalidState = errors.New("state must be one of visible, hidden, quarantined")

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovieFilter(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	page, err := s.catalogue.Browse(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "browse")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminMovies(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovieFilter(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	page, err := s.catalogue.AdminMovies(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "list movies")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleMovie(w http.ResponseWriter, r *http.Request) {
	s.writeMovie(w, r, false)
}

func (s *Server) handleAdminMovie(w http.ResponseWriter, r *http.Request) {
	s.writeMovie(w, r, true)
}

func (s *Server) writeMovie(w http.ResponseWriter, r *http.Request, includeHidden bool) {
	movie, err := s.catalogue.Movie(r.Context(), r.PathValue("id"), includeHidden)
	if err != nil {
		s.writeServiceError(w, r, err, "get movie")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	movies, err := s.catalogue.DailyTrending(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "trending")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": movies})
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var input catalogue.MovieInput
	if err := decodeJSONBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	movie, err := s.catalogue.CreateMovie(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, r, err, "create movie")
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

func (s *Server) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	var patch catalogue.MoviePatch
	if err := decodeJSONBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	movie, err := s.catalogue.UpdateMovie(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeServiceError(w, r, err, "update movie")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		State  string `json:"state"`
		Reason string `json:"reason"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	movie, err := s.catalogue.SetVisibility(r.Context(), r.PathValue("id"), payload.State, payload.Reason)
	if err != nil {
		s.writeServiceError(w, r, err, "set visibility")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleQuarantined(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	movies, err := s.catalogue.Quarantined(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err, "list quarantined")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": movies})
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var input catalogue.ReportInput
	if err := decodeJSONBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	report, err := s.catalogue.SubmitReport(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, r, err, "submit report")
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var input catalogue.RequestInput
	if err := decodeJSONBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	request, err := s.catalogue.SubmitRequest(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, r, err, "submit request")
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	reports, err := s.catalogue.Reports(r.Context(), parseOptionalBool(r.URL.Query().Get("open")), limit)
	if err != nil {
		s.writeServiceError(w, r, err, "list reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reports})
}

func (s *Server) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Resolved *bool `json:"resolved"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if payload.Resolved == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "resolved is required")
		return
	}
	id := r.PathValue("id")
	if err := s.catalogue.ResolveReport(r.Context(), id, *payload.Resolved); err != nil {
		s.writeServiceError(w, r, err, "resolve report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": *payload.Resolved})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	requests, err := s.catalogue.Requests(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.writeServiceError(w, r, err, "list requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": requests})
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := r.PathValue("id")
	if err := s.catalogue.SetRequestStatus(r.Context(), id, payload.Status); err != nil {
		s.writeServiceError(w, r, err, "update request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": strings.ToLower(strings.TrimSpace(payload.Status))})
}

func (s *Server) handleExportReports(w http.ResponseWriter, r *http.Request) {
	s.writeCSV(w, r, "reports.csv", s.catalogue.ExportReports)
}

func (s *Server) handleExportRequests(w http.ResponseWriter, r *http.Request) {
	s.writeCSV(w, r, "requests.csv", s.catalogue.ExportRequests)
}

// writeCSV buffers the export so a store failure still yields a JSON error.
func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, filename string, export func(context.Context, io.Writer) error) {
	var buf bytes.Buffer
	if err := export(r.Context(), &buf); err != nil {
		s.writeServiceError(w, r, err, "export")
		return
	}
	s.logger.Info("csv export", slog.String("file", filename), slog.Int("bytes", buf.Len()))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseMovieFilter(r *http.Request, allowState bool) (domain.MovieFilter, error) {
	q := r.URL.Query()
	var filter domain.MovieFilter
	var err error

	if filter.Limit, err = parsePositiveInt(r, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseNonNegativeInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.YearFrom, err = parseNonNegativeInt(r, "yearFrom", 0); err != nil {
		return filter, err
	}
	if filter.YearTo, err = parseNonNegativeInt(r, "yearTo", 0); err != nil {
		return filter, err
	}
	filter.Genre = strings.TrimSpace(q.Get("genre"))
	filter.Search = strings.TrimSpace(q.Get("q"))
	filter.SortBy = domain.NormalizeMovieSort(q.Get("sortBy"))
	filter.SortOrder = domain.NormalizeSortOrder(q.Get("sortOrder"))

	if allowState {
		if raw := strings.TrimSpace(q.Get("state")); raw != "" {
			state, ok := domain.ParseVisibilityState(raw)
			if !ok {
				return filter, errInvalidState
			}
			filter.State = &state
		}
	}
	return filter, nil
}
