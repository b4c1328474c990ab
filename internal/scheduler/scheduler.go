// Package scheduler runs a single job once a day at a local wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidTime = errors.New("daily time must be HH:MM")

var timeHHMM = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

type Scheduler struct {
	cron  *cron.Cron
	jobID cron.EntryID
}

// New schedules job daily at dailyTime (HH:MM) in timezone. Overlapping runs
// are skipped and panics inside job are recovered and logged.
func New(dailyTime, timezone string, job func(), logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	hour, minute, err := parseTime(dailyTime)
	if err != nil {
		return nil, err
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	id, err := c.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), job)
	if err != nil {
		return nil, fmt.Errorf("add cron: %w", err)
	}
	return &Scheduler{cron: c, jobID: id}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.jobID).Next
}

func parseTime(value string) (int, int, error) {
	if !timeHHMM.MatchString(value) {
		return 0, 0, ErrInvalidTime
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
