package domain

import "time"

// RouteQuery describes one best-price lookup against the provider: a city
// pair, a target date widened by the flexibility window, and an optional
// stops filter.
type RouteQuery struct {
	Origin          string
	Destination     string
	DepartureDate   time.Time
	FlexibilityDays int
	MaxStops        *int
}

// PriceQuote is the best price found for a RouteQuery.
type PriceQuote struct {
	Price       float64       `json:"price"`
	Currency    string        `json:"currency"`
	RetrievedAt time.Time     `json:"retrieved_at"`
	Carrier     string        `json:"carrier,omitempty"`
	Stops       int           `json:"stops"`
	Offer       *OfferDetails `json:"offer,omitempty"`
}

// OfferDetails carries the itinerary behind a quote. Display only; none of
// the alerting math reads it.
type OfferDetails struct {
	DepartureDate time.Time       `json:"departure_date"`
	ArrivalTime   time.Time       `json:"arrival_time"`
	Duration      time.Duration   `json:"duration"`
	Segments      []SegmentDetail `json:"segments,omitempty"`
}

// SegmentDetail is one leg of an itinerary.
type SegmentDetail struct {
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartureAt  time.Time `json:"departure_at"`
	ArrivalAt    time.Time `json:"arrival_at"`
	Carrier      string    `json:"carrier"`
	FlightNumber string    `json:"flight_number"`
}

// SearchResult is one offer returned by a date-range flight search.
type SearchResult struct {
	FlightNumber  string    `json:"flight_number"`
	Carrier       string    `json:"carrier"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate time.Time `json:"departure_date"`
	DepartureAt   time.Time `json:"departure_at"`
	ArrivalAt     time.Time `json:"arrival_at"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Stops         int       `json:"stops"`
}
