package repository

import (
	"context"
	"errors"
	"time"

	"farewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const routeColumns = `id, user_id, origin, destination, departure_date, flexibility_days,
	max_stops, threshold_percent, poll_minutes, is_active, last_polled_at, created_at, updated_at`

// RouteRepository is the registry of tracked routes. DueForPolling drives the
// scheduler; everything else serves the API layer.
type RouteRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRouteRepository(pool PgxPool, tracer trace.Tracer) *RouteRepository {
	return &RouteRepository{pool: pool, tracer: tracer}
}

func (r *RouteRepository) Create(ctx context.Context, route *domain.TrackedRoute) error {
	_, span := r.tracer.Start(ctx, "route-repo.create")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tracked_routes
		 (id, user_id, origin, destination, departure_date, flexibility_days,
		  max_stops, threshold_percent, poll_minutes, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		route.ID, route.UserID, route.Origin, route.Destination, route.DepartureDate,
		route.FlexibilityDays, route.MaxStops, route.ThresholdPercent, route.PollMinutes,
		route.IsActive, route.CreatedAt, route.UpdatedAt,
	)
	return err
}

func (r *RouteRepository) GetByID(ctx context.Context, id string) (*domain.TrackedRoute, error) {
	_, span := r.tracer.Start(ctx, "route-repo.get-by-id")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM tracked_routes WHERE id = $1`, id)
	route, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return route, err
}

func (r *RouteRepository) ListByUser(ctx context.Context, userID string) ([]*domain.TrackedRoute, error) {
	_, span := r.tracer.Start(ctx, "route-repo.list-by-user")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+routeColumns+`
		 FROM tracked_routes
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// DueForPolling returns every active route whose last poll (if any) is older
// than its own interval at the given instant. The result is a snapshot; it is
// re-queried on every scheduler tick so API updates take effect immediately.
func (r *RouteRepository) DueForPolling(ctx context.Context, now time.Time) ([]*domain.TrackedRoute, error) {
	_, span := r.tracer.Start(ctx, "route-repo.due-for-polling")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+routeColumns+`
		 FROM tracked_routes
		 WHERE is_active
		   AND (last_polled_at IS NULL
		        OR last_polled_at + poll_minutes * interval '1 minute' <= $1)`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// MarkPolled stamps last_polled_at unconditionally. Called after every poll
// attempt so a chronically failing route still respects its own interval.
func (r *RouteRepository) MarkPolled(ctx context.Context, id string, at time.Time) error {
	_, span := r.tracer.Start(ctx, "route-repo.mark-polled")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE tracked_routes SET last_polled_at = $2, updated_at = $2 WHERE id = $1`,
		id, at)
	return err
}

func (r *RouteRepository) Update(ctx context.Context, route *domain.TrackedRoute) error {
	_, span := r.tracer.Start(ctx, "route-repo.update")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE tracked_routes
		 SET departure_date = $2, flexibility_days = $3, max_stops = $4,
		     threshold_percent = $5, poll_minutes = $6, is_active = $7, updated_at = $8
		 WHERE id = $1`,
		route.ID, route.DepartureDate, route.FlexibilityDays, route.MaxStops,
		route.ThresholdPercent, route.PollMinutes, route.IsActive, time.Now().UTC(),
	)
	return err
}

// Delete removes a route; history, alerts, and recipients cascade via FKs.
func (r *RouteRepository) Delete(ctx context.Context, id string) error {
	_, span := r.tracer.Start(ctx, "route-repo.delete")
	defer span.End()

	_, err := r.pool.Exec(ctx, `DELETE FROM tracked_routes WHERE id = $1`, id)
	return err
}

func scanRoute(row pgx.Row) (*domain.TrackedRoute, error) {
	route := &domain.TrackedRoute{}
	err := row.Scan(
		&route.ID, &route.UserID, &route.Origin, &route.Destination, &route.DepartureDate,
		&route.FlexibilityDays, &route.MaxStops, &route.ThresholdPercent, &route.PollMinutes,
		&route.IsActive, &route.LastPolledAt, &route.CreatedAt, &route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return route, nil
}

func scanRoutes(rows pgx.Rows) ([]*domain.TrackedRoute, error) {
	var routes []*domain.TrackedRoute
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}
