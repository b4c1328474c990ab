package catalogue

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var (
	reportsCSVHeader  = []string{"id", "createdAt", "name", "movieId", "movieTitle", "resolved", "message"}
	requestsCSVHeader = []string{"id", "createdAt", "title", "status"}
)

// ExportReports writes every report as CSV, newest first.
func (s *Service) ExportReports(ctx context.Context, w io.Writer) error {
	reports, err := s.reports.List(ctx, false, 0)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(reportsCSVHeader); err != nil {
		return err
	}
	for _, r := range reports {
		if err := cw.Write([]string{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Name,
			r.MovieID,
			r.MovieTitle,
			strconv.FormatBool(r.Resolved),
			r.Message,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportRequests writes every request as CSV, newest first.
func (s *Service) ExportRequests(ctx context.Context, w io.Writer) error {
	requests, err := s.requests.List(ctx, nil, 0)
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(requestsCSVHeader); err != nil {
		return err
	}
	for _, r := range requests {
		if err := cw.Write([]string{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Title,
			string(r.Status),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
