package repository

import (
	"context"
	"time"

	"farewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const alertColumns = `id, route_id, old_price, new_price, percent_change, currency,
	alerted_at, processed, processed_at`

// AlertRepository records detected price drops. Rows flip to processed when a
// downstream notifier picks them up; they are never deleted directly.
type AlertRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAlertRepository(pool PgxPool, tracer trace.Tracer) *AlertRepository {
	return &AlertRepository{pool: pool, tracer: tracer}
}

func (r *AlertRepository) Append(ctx context.Context, alert *domain.PriceAlert) error {
	_, span := r.tracer.Start(ctx, "alert-repo.append")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_alerts
		 (id, route_id, old_price, new_price, percent_change, currency, alerted_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		alert.ID, alert.RouteID, alert.OldPrice, alert.NewPrice, alert.PercentChange,
		alert.Currency, alert.AlertedAt,
	)
	return err
}

func (r *AlertRepository) ListByRoute(ctx context.Context, routeID string) ([]*domain.PriceAlert, error) {
	_, span := r.tracer.Start(ctx, "alert-repo.list-by-route")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM price_alerts
		 WHERE route_id = $1
		 ORDER BY alerted_at DESC`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (r *AlertRepository) ListUnprocessed(ctx context.Context) ([]*domain.PriceAlert, error) {
	_, span := r.tracer.Start(ctx, "alert-repo.list-unprocessed")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM price_alerts
		 WHERE NOT processed
		 ORDER BY alerted_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (r *AlertRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, span := r.tracer.Start(ctx, "alert-repo.mark-processed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE price_alerts SET processed = true, processed_at = $2 WHERE id = $1`,
		id, at)
	return err
}

func scanAlerts(rows pgx.Rows) ([]*domain.PriceAlert, error) {
	var alerts []*domain.PriceAlert
	for rows.Next() {
		a := &domain.PriceAlert{}
		if err := rows.Scan(
			&a.ID, &a.RouteID, &a.OldPrice, &a.NewPrice, &a.PercentChange,
			&a.Currency, &a.AlertedAt, &a.Processed, &a.ProcessedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
