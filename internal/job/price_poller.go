package job

import (
	"context"
	"log"
	"sync"
	"time"

	"farewatch/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RouteRegistry is the poller's view of tracked route storage.
type RouteRegistry interface {
	DueForPolling(ctx context.Context, now time.Time) ([]*domain.TrackedRoute, error)
	MarkPolled(ctx context.Context, routeID string, at time.Time) error
}

// HistoryStore persists price observations and answers the running average.
type HistoryStore interface {
	Append(ctx context.Context, obs *domain.PriceObservation) error
	AveragePrice(ctx context.Context, routeID string) (float64, error)
}

// AlertStore persists fired alerts.
type AlertStore interface {
	Append(ctx context.Context, alert *domain.PriceAlert) error
}

// QuoteProvider fetches the current best price for a route.
type QuoteProvider interface {
	QuoteRoute(ctx context.Context, q domain.RouteQuery) (*domain.PriceQuote, error)
}

// PricePoller drives the polling cycle: every tick it loads the due routes
// and fans them out to a bounded worker pool. Each route is quoted, its
// observation appended, and an alert recorded when the price drops strictly
// below the route's threshold off the running average.
type PricePoller struct {
	tracer   trace.Tracer
	routes   RouteRegistry
	history  HistoryStore
	alerts   AlertStore
	provider QuoteProvider
	tick     time.Duration
	workers  int

	mu       sync.Mutex
	inFlight map[string]struct{}

	now func() time.Time
}

func NewPricePoller(tracer trace.Tracer, routes RouteRegistry, history HistoryStore, alerts AlertStore, provider QuoteProvider, tickSecs, workers int) *PricePoller {
	if workers < 1 {
		workers = 1
	}
	return &PricePoller{
		tracer:   tracer,
		routes:   routes,
		history:  history,
		alerts:   alerts,
		provider: provider,
		tick:     time.Duration(tickSecs) * time.Second,
		workers:  workers,
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Start runs the polling loop. Blocks until ctx is cancelled, then waits for
// in-flight route cycles to finish.
func (p *PricePoller) Start(ctx context.Context) {
	log.Println("Price poller starting...")

	// Run immediately on start
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce handles a single tick: query the due set and process every route
// through the worker pool. Returns once all routes of this tick are done.
func (p *PricePoller) pollOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "poller.tick")
	defer span.End()

	now := p.now().UTC()
	due, err := p.routes.DueForPolling(ctx, now)
	if err != nil {
		log.Printf("poller: query due routes: %v", err)
		return
	}
	span.SetAttributes(attribute.Int("due_routes", len(due)))
	if len(due) == 0 {
		return
	}
	log.Printf("poller: %d routes due", len(due))

	work := make(chan *domain.TrackedRoute)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for route := range work {
				p.pollRoute(ctx, route)
			}
		}()
	}

	for _, route := range due {
		if !p.claim(route.ID) {
			// A slow cycle from a previous tick still owns this route.
			continue
		}
		work <- route
	}
	close(work)
	wg.Wait()
}

func (p *PricePoller) claim(routeID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[routeID]; busy {
		return false
	}
	p.inFlight[routeID] = struct{}{}
	return true
}

func (p *PricePoller) release(routeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, routeID)
}

// pollRoute runs one route's cycle. Provider failures and empty results still
// stamp the route so a broken provider cannot make it due every tick;
// persistence failures leave it unstamped so the next tick retries.
func (p *PricePoller) pollRoute(ctx context.Context, route *domain.TrackedRoute) {
	ctx, span := p.tracer.Start(ctx, "poller.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("route_id", route.ID),
		attribute.String("origin", route.Origin),
		attribute.String("destination", route.Destination),
	)
	defer p.release(route.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("poller: panic polling route %s (%s-%s): %v", route.ID, route.Origin, route.Destination, r)
			p.stamp(ctx, route.ID)
		}
	}()

	now := p.now().UTC()
	if route.Departed(now) {
		// Departed routes fall out of scope without burning provider calls.
		// Left unstamped on purpose; deactivation is the owner's call.
		log.Printf("poller: route %s (%s-%s) departure date passed, skipping", route.ID, route.Origin, route.Destination)
		return
	}

	quote, err := p.provider.QuoteRoute(ctx, domain.RouteQuery{
		Origin:          route.Origin,
		Destination:     route.Destination,
		DepartureDate:   route.DepartureDate,
		FlexibilityDays: route.FlexibilityDays,
		MaxStops:        route.MaxStops,
	})
	if err != nil {
		log.Printf("poller: quote route %s (%s-%s): %v", route.ID, route.Origin, route.Destination, err)
		p.stamp(ctx, route.ID)
		return
	}
	if quote == nil {
		log.Printf("poller: no offers for route %s (%s-%s)", route.ID, route.Origin, route.Destination)
		p.stamp(ctx, route.ID)
		return
	}

	// Average over history before this observation joins it.
	average, err := p.history.AveragePrice(ctx, route.ID)
	if err != nil {
		log.Printf("poller: average for route %s: %v", route.ID, err)
		return
	}

	obs := &domain.PriceObservation{
		ID:         uuid.New().String(),
		RouteID:    route.ID,
		Price:      quote.Price,
		Currency:   quote.Currency,
		ObservedAt: quote.RetrievedAt,
		Offer:      quote.Offer,
	}
	if err := p.history.Append(ctx, obs); err != nil {
		log.Printf("poller: append observation for route %s: %v", route.ID, err)
		return
	}

	if domain.ShouldAlert(quote.Price, average, route.ThresholdPercent) {
		change := domain.PercentChange(average, quote.Price)
		alert := &domain.PriceAlert{
			ID:            uuid.New().String(),
			RouteID:       route.ID,
			OldPrice:      average,
			NewPrice:      quote.Price,
			PercentChange: change,
			Currency:      quote.Currency,
			AlertedAt:     p.now().UTC(),
		}
		if err := p.alerts.Append(ctx, alert); err != nil {
			log.Printf("poller: append alert for route %s: %v", route.ID, err)
			return
		}
		log.Printf("poller: price alert for %s-%s: %.2f -> %.2f (%.1f%%)",
			route.Origin, route.Destination, average, quote.Price, change)
	}

	p.stamp(ctx, route.ID)
}

func (p *PricePoller) stamp(ctx context.Context, routeID string) {
	if err := p.routes.MarkPolled(ctx, routeID, p.now().UTC()); err != nil {
		log.Printf("poller: mark polled for route %s: %v", routeID, err)
	}
}
