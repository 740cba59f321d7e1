package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"farewatch/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const quoteCacheTTL = 5 * time.Minute

// MaxBatchSize bounds how many routes one batch create may carry.
const MaxBatchSize = 50

var (
	ErrRouteNotFound     = errors.New("tracked route not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidDateRange  = errors.New("date range start must not be after end")
	ErrEmptyBatch        = errors.New("at least one route must be provided")
	ErrBatchTooLarge     = fmt.Errorf("cannot create more than %d routes in a single batch", MaxBatchSize)
)

type RouteStore interface {
	Create(ctx context.Context, route *domain.TrackedRoute) error
	GetByID(ctx context.Context, id string) (*domain.TrackedRoute, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.TrackedRoute, error)
	Update(ctx context.Context, route *domain.TrackedRoute) error
	Delete(ctx context.Context, id string) error
}

type HistoryStore interface {
	Append(ctx context.Context, obs *domain.PriceObservation) error
	ListByRoute(ctx context.Context, routeID string, limit int) ([]*domain.PriceObservation, error)
	AveragePrice(ctx context.Context, routeID string) (float64, error)
	Latest(ctx context.Context, routeID string) (*domain.PriceObservation, error)
}

type AlertStore interface {
	ListByRoute(ctx context.Context, routeID string) ([]*domain.PriceAlert, error)
	ListUnprocessed(ctx context.Context) ([]*domain.PriceAlert, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

type RecipientStore interface {
	Add(ctx context.Context, recipient *domain.Recipient) error
	ListByRoute(ctx context.Context, routeID string, activeOnly bool) ([]*domain.Recipient, error)
	ListAll(ctx context.Context) ([]*domain.Recipient, error)
	Delete(ctx context.Context, id string) error
}

type QuoteProvider interface {
	QuoteRoute(ctx context.Context, q domain.RouteQuery) (*domain.PriceQuote, error)
	SearchOffers(ctx context.Context, origin, destination string, from, to time.Time) ([]domain.SearchResult, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TrackerService orchestrates route management, price history views, and
// on-demand quotes on top of the stores and the provider client.
type TrackerService struct {
	tracer     trace.Tracer
	routes     RouteStore
	history    HistoryStore
	alerts     AlertStore
	recipients RecipientStore
	provider   QuoteProvider
	redis      RedisClient
}

func NewTrackerService(
	tracer trace.Tracer,
	routes RouteStore,
	history HistoryStore,
	alerts AlertStore,
	recipients RecipientStore,
	provider QuoteProvider,
	redisClient RedisClient,
) *TrackerService {
	return &TrackerService{
		tracer:     tracer,
		routes:     routes,
		history:    history,
		alerts:     alerts,
		recipients: recipients,
		provider:   provider,
		redis:      redisClient,
	}
}

// CreateRoute validates and persists a new tracked route, then fetches a
// first observation so the history is not empty until the poller's next tick.
// The first fetch is best effort; its failure does not fail the create.
func (s *TrackerService) CreateRoute(ctx context.Context, route *domain.TrackedRoute) error {
	ctx, span := s.tracer.Start(ctx, "tracker-service.create-route")
	defer span.End()

	now := time.Now().UTC()
	if err := route.ValidateForCreate(now); err != nil {
		return err
	}

	route.ID = uuid.New().String()
	route.IsActive = true
	route.LastPolledAt = nil
	route.CreatedAt = now
	route.UpdatedAt = now

	if err := s.routes.Create(ctx, route); err != nil {
		return fmt.Errorf("create route: %w", err)
	}
	log.Printf("created tracked route %s (%s-%s)", route.ID, route.Origin, route.Destination)

	s.seedFirstObservation(ctx, route)
	return nil
}

func (s *TrackerService) seedFirstObservation(ctx context.Context, route *domain.TrackedRoute) {
	quote, err := s.provider.QuoteRoute(ctx, routeQuery(route))
	if err != nil {
		log.Printf("initial quote for route %s failed: %v", route.ID, err)
		return
	}
	if quote == nil {
		log.Printf("initial quote for route %s: no offers", route.ID)
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
	if err := s.history.Append(ctx, obs); err != nil {
		log.Printf("store initial observation for route %s: %v", route.ID, err)
	}
}

func (s *TrackerService) GetRoute(ctx context.Context, id string) (*domain.TrackedRoute, error) {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, ErrRouteNotFound
	}
	return route, nil
}

func (s *TrackerService) ListRoutes(ctx context.Context, userID string) ([]*domain.TrackedRoute, error) {
	return s.routes.ListByUser(ctx, userID)
}

// RouteGroup collects a user's tracked routes sharing a city pair.
type RouteGroup struct {
	Route       string                 `json:"route"`
	Origin      string                 `json:"origin"`
	Destination string                 `json:"destination"`
	Count       int                    `json:"count"`
	Routes      []*domain.TrackedRoute `json:"routes"`
}

// RoutesGroupedByPair groups a user's tracked routes by origin-destination,
// pairs sorted alphabetically and dates ascending within each pair.
func (s *TrackerService) RoutesGroupedByPair(ctx context.Context, userID string) ([]RouteGroup, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.routes-by-pair")
	defer span.End()

	routes, err := s.routes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byPair := make(map[string][]*domain.TrackedRoute)
	for _, r := range routes {
		pair := r.Origin + "-" + r.Destination
		byPair[pair] = append(byPair[pair], r)
	}

	groups := make([]RouteGroup, 0, len(byPair))
	for pair, members := range byPair {
		sort.Slice(members, func(i, j int) bool {
			return members[i].DepartureDate.Before(members[j].DepartureDate)
		})
		groups = append(groups, RouteGroup{
			Route:       pair,
			Origin:      members[0].Origin,
			Destination: members[0].Destination,
			Count:       len(members),
			Routes:      members,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Route < groups[j].Route })
	return groups, nil
}

// UpdateRoute applies the mutable fields of in onto the stored route.
// LastPolledAt stays poller-owned and is never touched here.
func (s *TrackerService) UpdateRoute(ctx context.Context, in *domain.TrackedRoute) (*domain.TrackedRoute, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.update-route")
	defer span.End()

	route, err := s.GetRoute(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	route.Origin = in.Origin
	route.Destination = in.Destination
	route.DepartureDate = in.DepartureDate
	route.FlexibilityDays = in.FlexibilityDays
	route.MaxStops = in.MaxStops
	route.ThresholdPercent = in.ThresholdPercent
	route.PollMinutes = in.PollMinutes
	route.IsActive = in.IsActive
	route.UpdatedAt = time.Now().UTC()

	if err := route.Validate(); err != nil {
		return nil, err
	}
	if err := s.routes.Update(ctx, route); err != nil {
		return nil, fmt.Errorf("update route: %w", err)
	}

	s.invalidateQuoteCache(ctx, route.ID)
	return route, nil
}

func (s *TrackerService) DeleteRoute(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tracker-service.delete-route")
	defer span.End()

	if _, err := s.GetRoute(ctx, id); err != nil {
		return err
	}
	if err := s.routes.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete route: %w", err)
	}

	s.invalidateQuoteCache(ctx, id)
	log.Printf("deleted tracked route %s", id)
	return nil
}

// History returns the newest observations for a route, newest first.
func (s *TrackerService) History(ctx context.Context, routeID string, limit int) ([]*domain.PriceObservation, error) {
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.history.ListByRoute(ctx, routeID, limit)
}

// Summary is the price history rollup served alongside the raw observations.
type Summary struct {
	RouteID        string                   `json:"route_id"`
	AveragePrice   float64                  `json:"average_price"`
	ThresholdPrice float64                  `json:"threshold_price"`
	Latest         *domain.PriceObservation `json:"latest,omitempty"`
}

func (s *TrackerService) Summarize(ctx context.Context, routeID string) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.summarize")
	defer span.End()

	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	average, err := s.history.AveragePrice(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("average price: %w", err)
	}
	latest, err := s.history.Latest(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}

	return &Summary{
		RouteID:        routeID,
		AveragePrice:   average,
		ThresholdPrice: domain.ThresholdPrice(average, route.ThresholdPercent),
		Latest:         latest,
	}, nil
}

// CurrentQuote fetches the live best price for a route, cached in Redis so
// the API and the bot do not multiply provider traffic.
func (s *TrackerService) CurrentQuote(ctx context.Context, routeID string) (*domain.PriceQuote, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.current-quote")
	defer span.End()

	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		cached, err := s.getQuoteCache(ctx, routeID)
		if err != nil {
			log.Printf("redis cache read error: %v", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	quote, err := s.provider.QuoteRoute(ctx, routeQuery(route))
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, nil
	}

	if s.redis != nil {
		if err := s.setQuoteCache(ctx, routeID, quote); err != nil {
			log.Printf("redis cache write error: %v", err)
		}
	}
	return quote, nil
}

func (s *TrackerService) Alerts(ctx context.Context, routeID string) ([]*domain.PriceAlert, error) {
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.alerts.ListByRoute(ctx, routeID)
}

func (s *TrackerService) UnprocessedAlerts(ctx context.Context) ([]*domain.PriceAlert, error) {
	return s.alerts.ListUnprocessed(ctx)
}

func (s *TrackerService) MarkAlertProcessed(ctx context.Context, alertID string) error {
	return s.alerts.MarkProcessed(ctx, alertID, time.Now().UTC())
}

func (s *TrackerService) AddRecipient(ctx context.Context, recipient *domain.Recipient) error {
	ctx, span := s.tracer.Start(ctx, "tracker-service.add-recipient")
	defer span.End()

	if _, err := s.GetRoute(ctx, recipient.RouteID); err != nil {
		return err
	}

	recipient.ID = uuid.New().String()
	recipient.IsActive = true
	recipient.CreatedAt = time.Now().UTC()
	if err := s.recipients.Add(ctx, recipient); err != nil {
		return fmt.Errorf("add recipient: %w", err)
	}
	return nil
}

func (s *TrackerService) Recipients(ctx context.Context, routeID string) ([]*domain.Recipient, error) {
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.recipients.ListByRoute(ctx, routeID, false)
}

func (s *TrackerService) RemoveRecipient(ctx context.Context, routeID, recipientID string) error {
	recipients, err := s.Recipients(ctx, routeID)
	if err != nil {
		return err
	}
	for _, r := range recipients {
		if r.ID == recipientID {
			return s.recipients.Delete(ctx, recipientID)
		}
	}
	return ErrRecipientNotFound
}

// Search lists offers for an ad hoc city pair over a date range without
// creating a tracked route.
func (s *TrackerService) Search(ctx context.Context, origin, destination string, from, to time.Time) ([]domain.SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "tracker-service.search")
	defer span.End()

	probe := domain.TrackedRoute{
		Origin: origin, Destination: destination,
		ThresholdPercent: 1, PollMinutes: domain.MinPollMinutes,
	}
	if err := probe.Validate(); err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}
	return s.provider.SearchOffers(ctx, origin, destination, from, to)
}

func routeQuery(route *domain.TrackedRoute) domain.RouteQuery {
	return domain.RouteQuery{
		Origin:          route.Origin,
		Destination:     route.Destination,
		DepartureDate:   route.DepartureDate,
		FlexibilityDays: route.FlexibilityDays,
		MaxStops:        route.MaxStops,
	}
}

func (s *TrackerService) setQuoteCache(ctx context.Context, routeID string, quote *domain.PriceQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "quote:"+routeID, data, quoteCacheTTL).Err()
}

func (s *TrackerService) getQuoteCache(ctx context.Context, routeID string) (*domain.PriceQuote, error) {
	data, err := s.redis.Get(ctx, "quote:"+routeID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var quote domain.PriceQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *TrackerService) invalidateQuoteCache(ctx context.Context, routeID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, "quote:"+routeID).Err(); err != nil {
		log.Printf("redis cache invalidate error: %v", err)
	}
}
