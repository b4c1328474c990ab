package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	h, m, err := parseTime("09:30")
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	if h != 9 || m != 30 {
		t.Fatalf("unexpected time %d:%d", h, m)
	}

	for _, raw := range []string{"9:30", "24:00", "12:60", "noon", ""} {
		if _, _, err := parseTime(raw); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime for %q, got %v", raw, err)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("09:00", "Mars/Olympus", func() {}, nil); err == nil {
		t.Fatal("expected timezone error")
	}
	if _, err := New("9am", "UTC", func() {}, nil); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if _, err := New("09:00", "UTC", nil, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestNextIsZeroBeforeStart(t *testing.T) {
	s, err := New("06:00", "UTC", func() {}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatalf("expected no next run before Start, got %v", s.Next())
	}
}

func TestNextRunHonorsTimezone(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, err := New("09:15", "Europe/Rome", func() {}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next().In(rome)
	if next.IsZero() {
		t.Fatal("expected a scheduled next run")
	}
	if next.Hour() != 9 || next.Minute() != 15 {
		t.Fatalf("unexpected next run %v", next)
	}
	if next.Before(time.Now()) {
		t.Fatalf("next run %v is in the past", next)
	}
}
