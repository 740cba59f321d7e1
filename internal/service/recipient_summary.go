package service

import (
	"context"
	"sort"

	"farewatch/internal/domain"
)

// RecipientRouteSummary is one subscribed route with its price rollup.
// Price fields are nil when the route has no observations yet.
type RecipientRouteSummary struct {
	Route              *domain.TrackedRoute       `json:"route"`
	CurrentPrice       *float64                   `json:"current_price,omitempty"`
	MinPrice           *float64                   `json:"min_price,omitempty"`
	MaxPrice           *float64                   `json:"max_price,omitempty"`
	PriceChangePercent *float64                   `json:"price_change_percent,omitempty"`
	Currency           string                     `json:"currency,omitempty"`
	History            []*domain.PriceObservation `json:"history"`
}

// RecipientSummary groups one subscriber's routes under their email.
type RecipientSummary struct {
	Email  string                  `json:"email"`
	Name   string                  `json:"name,omitempty"`
	Routes []RecipientRouteSummary `json:"routes"`
}

// RecipientSummaries groups every subscriber by email and name, reporting
// each of their distinct routes with its full price history, the current,
// minimum, and maximum observed prices, and the change relative to the first
// observation. Sorted by email; a subscriber's routes by departure date.
func (s *TrackerService) RecipientSummaries(ctx context.Context) ([]RecipientSummary, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.recipient-summaries")
	defer span.End()

	recipients, err := s.recipients.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	type subscriber struct {
		email, name string
		routeIDs    []string
		seen        map[string]bool
	}
	byEmail := make(map[string]*subscriber)
	var order []string
	for _, rec := range recipients {
		key := rec.Email + "\x00" + rec.Name
		sub, ok := byEmail[key]
		if !ok {
			sub = &subscriber{email: rec.Email, name: rec.Name, seen: make(map[string]bool)}
			byEmail[key] = sub
			order = append(order, key)
		}
		if !sub.seen[rec.RouteID] {
			sub.seen[rec.RouteID] = true
			sub.routeIDs = append(sub.routeIDs, rec.RouteID)
		}
	}
	sort.Strings(order)

	summaries := make([]RecipientSummary, 0, len(order))
	for _, key := range order {
		sub := byEmail[key]
		summary := RecipientSummary{Email: sub.email, Name: sub.name}
		for _, routeID := range sub.routeIDs {
			route, err := s.routes.GetByID(ctx, routeID)
			if err != nil {
				return nil, err
			}
			if route == nil {
				continue
			}
			rollup, err := s.summarizeRouteHistory(ctx, route)
			if err != nil {
				return nil, err
			}
			summary.Routes = append(summary.Routes, rollup)
		}
		sort.Slice(summary.Routes, func(i, j int) bool {
			return summary.Routes[i].Route.DepartureDate.Before(summary.Routes[j].Route.DepartureDate)
		})
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *TrackerService) summarizeRouteHistory(ctx context.Context, route *domain.TrackedRoute) (RecipientRouteSummary, error) {
	history, err := s.history.ListByRoute(ctx, route.ID, 0)
	if err != nil {
		return RecipientRouteSummary{}, err
	}

	rollup := RecipientRouteSummary{Route: route, History: history}
	if len(history) == 0 {
		return rollup, nil
	}

	// History is newest first: current is the head, first the tail.
	current := history[0]
	first := history[len(history)-1]
	minPrice, maxPrice := current.Price, current.Price
	for _, obs := range history {
		if obs.Price < minPrice {
			minPrice = obs.Price
		}
		if obs.Price > maxPrice {
			maxPrice = obs.Price
		}
	}

	rollup.CurrentPrice = &current.Price
	rollup.MinPrice = &minPrice
	rollup.MaxPrice = &maxPrice
	rollup.Currency = current.Currency
	if first.Price > 0 {
		change := domain.PercentChange(first.Price, current.Price)
		rollup.PriceChangePercent = &change
	}
	return rollup, nil
}
