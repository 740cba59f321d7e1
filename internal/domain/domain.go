package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Bounds enforced on tracked route creation and updates.
const (
	MinFlexibilityDays = 0
	MaxFlexibilityDays = 7
	MaxStopsLimit      = 3
	MinPollMinutes     = 5
	MaxPollMinutes     = 1440
)

var iataRe = regexp.MustCompile(`^[A-Z]{3}$`)

var (
	ErrInvalidAirportCode = errors.New("airport code must be 3 uppercase letters")
	ErrDepartureInPast    = errors.New("departure date must be today or in the future")
	ErrInvalidThreshold   = errors.New("threshold percent must be in (0, 100]")
	ErrInvalidFlexibility = fmt.Errorf("date flexibility must be between %d and %d days", MinFlexibilityDays, MaxFlexibilityDays)
	ErrInvalidMaxStops    = fmt.Errorf("max stops must be between 0 and %d", MaxStopsLimit)
	ErrInvalidPollMinutes = fmt.Errorf("polling interval must be between %d and %d minutes", MinPollMinutes, MaxPollMinutes)
)

// TrackedRoute is a user's standing interest in a city pair around a target
// departure date. The poller owns LastPolledAt; everything else is mutated
// through the API.
type TrackedRoute struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Origin           string     `json:"origin"`
	Destination      string     `json:"destination"`
	DepartureDate    time.Time  `json:"departure_date"`
	FlexibilityDays  int        `json:"flexibility_days"`
	MaxStops         *int       `json:"max_stops,omitempty"`
	ThresholdPercent float64    `json:"threshold_percent"`
	PollMinutes      int        `json:"poll_minutes"`
	IsActive         bool       `json:"is_active"`
	LastPolledAt     *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks the mutable fields against the configured bounds.
func (r *TrackedRoute) Validate() error {
	if !iataRe.MatchString(r.Origin) || !iataRe.MatchString(r.Destination) {
		return ErrInvalidAirportCode
	}
	if r.ThresholdPercent <= 0 || r.ThresholdPercent > 100 {
		return ErrInvalidThreshold
	}
	if r.FlexibilityDays < MinFlexibilityDays || r.FlexibilityDays > MaxFlexibilityDays {
		return ErrInvalidFlexibility
	}
	if r.MaxStops != nil && (*r.MaxStops < 0 || *r.MaxStops > MaxStopsLimit) {
		return ErrInvalidMaxStops
	}
	if r.PollMinutes < MinPollMinutes || r.PollMinutes > MaxPollMinutes {
		return ErrInvalidPollMinutes
	}
	return nil
}

// ValidateForCreate applies the field bounds plus the create-only rule that
// the departure date is today or later. Updates deliberately skip this so an
// already-departed route can still have its flags edited.
func (r *TrackedRoute) ValidateForCreate(now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Departed(now) {
		return ErrDepartureInPast
	}
	return nil
}

// PollInterval returns the per-route polling interval as a duration.
func (r *TrackedRoute) PollInterval() time.Duration {
	return time.Duration(r.PollMinutes) * time.Minute
}

// DueAt reports whether the route is due for a poll at the given instant.
// Inactive routes are never due; never-polled routes always are.
func (r *TrackedRoute) DueAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.LastPolledAt == nil {
		return true
	}
	return !r.LastPolledAt.Add(r.PollInterval()).After(now)
}

// Departed reports whether the target departure date has passed relative to
// the given instant (dates compared in UTC at day granularity).
func (r *TrackedRoute) Departed(now time.Time) bool {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return r.DepartureDate.Before(today)
}

// PriceObservation is one immutable price sample for a route.
type PriceObservation struct {
	ID         string        `json:"id"`
	RouteID    string        `json:"route_id"`
	Price      float64       `json:"price"`
	Currency   string        `json:"currency"`
	ObservedAt time.Time     `json:"observed_at"`
	Offer      *OfferDetails `json:"offer,omitempty"`
}

// PriceAlert records a detected price drop below the route's threshold.
type PriceAlert struct {
	ID            string     `json:"id"`
	RouteID       string     `json:"route_id"`
	OldPrice      float64    `json:"old_price"`
	NewPrice      float64    `json:"new_price"`
	PercentChange float64    `json:"percent_change"`
	Currency      string     `json:"currency"`
	AlertedAt     time.Time  `json:"alerted_at"`
	Processed     bool       `json:"processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// Recipient subscribes an email address to a route's alerts. Read by the
// downstream dispatcher, never by the poller.
type Recipient struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"route_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ThresholdPrice is the price below which an alert fires:
// average * (1 - percent/100).
func ThresholdPrice(average, thresholdPercent float64) float64 {
	return average * (1 - thresholdPercent/100)
}

// PercentChange is the signed change of current relative to average,
// negative on a drop.
func PercentChange(average, current float64) float64 {
	return (current - average) / average * 100
}

// ShouldAlert applies the alert rule: strictly below the threshold price.
// A price exactly at the threshold does not alert.
func ShouldAlert(current, average, thresholdPercent float64) bool {
	if average <= 0 {
		return false
	}
	return current < ThresholdPrice(average, thresholdPercent)
}
