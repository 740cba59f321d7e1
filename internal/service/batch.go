package service

import (
	"context"
	"log"

	"farewatch/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// BatchItemResult reports the outcome of one route in a batch create.
type BatchItemResult struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	RouteID string `json:"route_id,omitempty"`
	Route   string `json:"route"`
	Error   string `json:"error,omitempty"`
}

// BatchCreateResult is the per-item outcome list of a batch create.
type BatchCreateResult struct {
	TotalRequested int               `json:"total_requested"`
	SuccessCount   int               `json:"success_count"`
	FailureCount   int               `json:"failure_count"`
	Results        []BatchItemResult `json:"results"`
}

// BatchCreateRoutes creates each route independently; one item failing its
// validation or persistence does not abort the rest of the batch.
func (s *TrackerService) BatchCreateRoutes(ctx context.Context, routes []*domain.TrackedRoute) (*BatchCreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.batch-create-routes")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(routes)))

	if len(routes) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(routes) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	result := &BatchCreateResult{TotalRequested: len(routes)}
	for i, route := range routes {
		item := BatchItemResult{Index: i, Route: route.Origin + "-" + route.Destination}
		if err := s.CreateRoute(ctx, route); err != nil {
			item.Error = err.Error()
			result.FailureCount++
			log.Printf("batch item %d (%s): %v", i, item.Route, err)
		} else {
			item.Success = true
			item.RouteID = route.ID
			result.SuccessCount++
		}
		result.Results = append(result.Results, item)
	}

	log.Printf("batch create done: %d ok, %d failed of %d",
		result.SuccessCount, result.FailureCount, result.TotalRequested)
	return result, nil
}
