package domain

import (
	"errors"
	"testing"
	"time"
)

func validRoute() *TrackedRoute {
	return &TrackedRoute{
		ID:               "r1",
		UserID:           "u1",
		Origin:           "JFK",
		Destination:      "LAX",
		DepartureDate:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		FlexibilityDays:  3,
		ThresholdPercent: 5,
		PollMinutes:      15,
		IsActive:         true,
	}
}

func TestTrackedRouteValidate(t *testing.T) {
	stops := func(n int) *int { return &n }

	tests := []struct {
		name    string
		mutate  func(*TrackedRoute)
		wantErr error
	}{
		{"valid", func(r *TrackedRoute) {}, nil},
		{"lowercase origin", func(r *TrackedRoute) { r.Origin = "jfk" }, ErrInvalidAirportCode},
		{"short destination", func(r *TrackedRoute) { r.Destination = "LA" }, ErrInvalidAirportCode},
		{"zero threshold", func(r *TrackedRoute) { r.ThresholdPercent = 0 }, ErrInvalidThreshold},
		{"threshold over 100", func(r *TrackedRoute) { r.ThresholdPercent = 100.5 }, ErrInvalidThreshold},
		{"threshold exactly 100", func(r *TrackedRoute) { r.ThresholdPercent = 100 }, nil},
		{"flex too wide", func(r *TrackedRoute) { r.FlexibilityDays = 8 }, ErrInvalidFlexibility},
		{"negative flex", func(r *TrackedRoute) { r.FlexibilityDays = -1 }, ErrInvalidFlexibility},
		{"too many stops", func(r *TrackedRoute) { r.MaxStops = stops(4) }, ErrInvalidMaxStops},
		{"nonstop filter", func(r *TrackedRoute) { r.MaxStops = stops(0) }, nil},
		{"interval too short", func(r *TrackedRoute) { r.PollMinutes = 4 }, ErrInvalidPollMinutes},
		{"interval too long", func(r *TrackedRoute) { r.PollMinutes = 1441 }, ErrInvalidPollMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRoute()
			tt.mutate(r)
			if err := r.Validate(); err != tt.wantErr {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDueAt(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	r := validRoute()
	if !r.DueAt(now) {
		t.Fatal("never-polled active route should be due")
	}

	last := now.Add(-20 * time.Minute)
	r.LastPolledAt = &last
	if !r.DueAt(now) {
		t.Fatal("route polled 20min ago with 15min interval should be due")
	}

	recent := now.Add(-5 * time.Minute)
	r.LastPolledAt = &recent
	if r.DueAt(now) {
		t.Fatal("route polled 5min ago with 15min interval should not be due")
	}

	exact := now.Add(-15 * time.Minute)
	r.LastPolledAt = &exact
	if !r.DueAt(now) {
		t.Fatal("route exactly at interval boundary should be due")
	}

	r.IsActive = false
	r.LastPolledAt = nil
	if r.DueAt(now) {
		t.Fatal("inactive route should never be due")
	}
}

func TestDeparted(t *testing.T) {
	now := time.Date(2026, 9, 1, 23, 30, 0, 0, time.UTC)

	r := validRoute()
	r.DepartureDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !r.Departed(now) {
		t.Fatal("yesterday's departure should be past")
	}

	r.DepartureDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if r.Departed(now) {
		t.Fatal("today's departure should not be past")
	}
}

func TestValidateForCreate(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	r := validRoute()
	r.DepartureDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if err := r.ValidateForCreate(now); err != nil {
		t.Fatalf("today's departure should be accepted: %v", err)
	}

	r.DepartureDate = now.AddDate(0, 0, -30)
	if err := r.ValidateForCreate(now); !errors.Is(err, ErrDepartureInPast) {
		t.Fatalf("expected ErrDepartureInPast, got %v", err)
	}

	r.DepartureDate = now.AddDate(0, 1, 0)
	r.ThresholdPercent = 0
	if err := r.ValidateForCreate(now); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("field bounds should still apply, got %v", err)
	}
}

func TestThresholdPrice(t *testing.T) {
	tests := []struct {
		average, percent, want float64
	}{
		{500, 5, 475},
		{1000, 10, 900},
		{250, 20, 200},
		{750, 15, 637.50},
	}
	for _, tt := range tests {
		if got := ThresholdPrice(tt.average, tt.percent); got != tt.want {
			t.Fatalf("ThresholdPrice(%v, %v) = %v, want %v", tt.average, tt.percent, got, tt.want)
		}
	}
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		name             string
		current, average float64
		percent          float64
		want             bool
	}{
		{"well below threshold", 450, 500, 5, true},
		{"just below threshold", 474.99, 500, 5, true},
		{"exactly at threshold", 475, 500, 5, false},
		{"at a ten percent threshold", 450, 500, 10, false},
		{"above threshold", 480, 500, 5, false},
		{"equal to average", 500, 500, 5, false},
		{"zero average", 10, 0, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAlert(tt.current, tt.average, tt.percent); got != tt.want {
				t.Fatalf("ShouldAlert(%v, %v, %v) = %v, want %v", tt.current, tt.average, tt.percent, got, tt.want)
			}
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		average, current, want float64
	}{
		{500, 450, -10},
		{1000, 900, -10},
		{250, 200, -20},
		{500, 525, 5},
		{100, 100, 0},
	}
	for _, tt := range tests {
		if got := PercentChange(tt.average, tt.current); got != tt.want {
			t.Fatalf("PercentChange(%v, %v) = %v, want %v", tt.average, tt.current, got, tt.want)
		}
	}
}
