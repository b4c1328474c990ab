package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"cineamore/catalogservice/internal/domain"
)

type ReportInput struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	MovieID    string `json:"movieId"`
	MovieTitle string `json:"movieTitle"`
}

type RequestInput struct {
	Title string `json:"title"`
}

func (s *Service) SubmitReport(ctx context.Context, input ReportInput) (domain.Report, error) {
	report := domain.Report{
		ID:         s.newID(),
		Name:       strings.TrimSpace(input.Name),
		Message:    strings.TrimSpace(input.Message),
		MovieID:    strings.TrimSpace(input.MovieID),
		MovieTitle: strings.TrimSpace(input.MovieTitle),
		CreatedAt:  s.now().UTC(),
	}
	switch {
	case utf8.RuneCountInString(report.Name) > maxReportName:
		return domain.Report{}, validationError(fmt.Sprintf("name must be at most %d characters", maxReportName))
	case report.Message == "":
		return domain.Report{}, validationError("message is required")
	case utf8.RuneCountInString(report.Message) > maxReportMessage:
		return domain.Report{}, validationError(fmt.Sprintf("message must be at most %d characters", maxReportMessage))
	}
	if report.MovieID != "" && report.MovieTitle == "" {
		if movie, err := s.movies.Get(ctx, report.MovieID); err == nil {
			report.MovieTitle = movie.Title
		}
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return domain.Report{}, err
	}
	s.logger.Info("report submitted", slog.String("id", report.ID), slog.String("movieId", report.MovieID))
	return report, nil
}

func (s *Service) SubmitRequest(ctx context.Context, input RequestInput) (domain.Request, error) {
	request := domain.Request{
		ID:        s.newID(),
		Title:     strings.TrimSpace(input.Title),
		Status:    domain.RequestPending,
		CreatedAt: s.now().UTC(),
	}
	switch {
	case request.Title == "":
		return domain.Request{}, validationError("title is required")
	case utf8.RuneCountInString(request.Title) > maxRequestTitle:
		return domain.Request{}, validationError(fmt.Sprintf("title must be at most %d characters", maxRequestTitle))
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return domain.Request{}, err
	}
	s.logger.Info("request submitted", slog.String("id", request.ID), slog.String("title", request.Title))
	return request, nil
}

func (s *Service) Reports(ctx context.Context, onlyOpen bool, limit int) ([]domain.Report, error) {
	reports, err := s.reports.List(ctx, onlyOpen, clampLimit(limit, defaultAdminLimit, defaultAdminLimit))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	return reports, nil
}

// Requests lists visitor requests; an empty rawStatus lists every status.
func (s *Service) Requests(ctx context.Context, rawStatus string, limit int) ([]domain.Request, error) {
	var status *domain.RequestStatus
	if strings.TrimSpace(rawStatus) != "" {
		parsed, ok := domain.ParseRequestStatus(rawStatus)
		if !ok {
			return nil, validationError("status must be one of pending, completed, rejected")
		}
		status = &parsed
	}
	requests, err := s.requests.List(ctx, status, clampLimit(limit, defaultAdminLimit, defaultAdminLimit))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	if requests == nil {
		requests = []domain.Request{}
	}
	return requests, nil
}

func (s *Service) ResolveReport(ctx context.Context, id string, resolved bool) error {
	return s.reports.SetResolved(ctx, strings.TrimSpace(id), resolved)
}

func (s *Service) SetRequestStatus(ctx context.Context, id, rawStatus string) error {
	status, ok := domain.ParseRequestStatus(rawStatus)
	if !ok {
		return validationError("status must be one of pending, completed, rejected")
	}
	return s.requests.SetStatus(ctx, strings.TrimSpace(id), status)
}
