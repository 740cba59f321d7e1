package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"farewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// HistoryRepository is the append-only log of price observations per route.
type HistoryRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewHistoryRepository(pool PgxPool, tracer trace.Tracer) *HistoryRepository {
	return &HistoryRepository{pool: pool, tracer: tracer}
}

func (r *HistoryRepository) Append(ctx context.Context, obs *domain.PriceObservation) error {
	_, span := r.tracer.Start(ctx, "history-repo.append")
	defer span.End()

	var offer []byte
	if obs.Offer != nil {
		var err error
		offer, err = json.Marshal(obs.Offer)
		if err != nil {
			return fmt.Errorf("marshal offer details: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_history (id, route_id, price, currency, observed_at, offer)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.ID, obs.RouteID, obs.Price, obs.Currency, obs.ObservedAt, offer,
	)
	return err
}

// ListByRoute returns observations newest first. limit <= 0 returns the full
// history.
func (r *HistoryRepository) ListByRoute(ctx context.Context, routeID string, limit int) ([]*domain.PriceObservation, error) {
	_, span := r.tracer.Start(ctx, "history-repo.list-by-route")
	defer span.End()

	query := `SELECT id, route_id, price, currency, observed_at, offer
	          FROM price_history
	          WHERE route_id = $1
	          ORDER BY observed_at DESC`
	args := []any{routeID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []*domain.PriceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// AveragePrice computes the arithmetic mean over the route's full stored
// history. Unbounded on purpose; histories only live as long as the route
// stays tracked. Returns 0 with no error when the route has no observations.
func (r *HistoryRepository) AveragePrice(ctx context.Context, routeID string) (float64, error) {
	_, span := r.tracer.Start(ctx, "history-repo.average-price")
	defer span.End()

	var avg *float64
	err := r.pool.QueryRow(ctx,
		`SELECT AVG(price) FROM price_history WHERE route_id = $1`, routeID,
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (r *HistoryRepository) Latest(ctx context.Context, routeID string) (*domain.PriceObservation, error) {
	_, span := r.tracer.Start(ctx, "history-repo.latest")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, route_id, price, currency, observed_at, offer
		 FROM price_history
		 WHERE route_id = $1
		 ORDER BY observed_at DESC
		 LIMIT 1`, routeID)
	obs, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return obs, err
}

func scanObservation(row pgx.Row) (*domain.PriceObservation, error) {
	obs := &domain.PriceObservation{}
	var offer []byte
	if err := row.Scan(&obs.ID, &obs.RouteID, &obs.Price, &obs.Currency, &obs.ObservedAt, &offer); err != nil {
		return nil, err
	}
	if len(offer) > 0 {
		obs.Offer = &domain.OfferDetails{}
		if err := json.Unmarshal(offer, obs.Offer); err != nil {
			return nil, fmt.Errorf("unmarshal offer details: %w", err)
		}
	}
	return obs, nil
}
