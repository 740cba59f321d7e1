package repository

import (
	"context"

	"farewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// RecipientRepository stores alert subscribers per route. Cascade-deleted
// with the route.
type RecipientRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRecipientRepository(pool PgxPool, tracer trace.Tracer) *RecipientRepository {
	return &RecipientRepository{pool: pool, tracer: tracer}
}

func (r *RecipientRepository) Add(ctx context.Context, recipient *domain.Recipient) error {
	_, span := r.tracer.Start(ctx, "recipient-repo.add")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO recipients (id, route_id, email, name, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		recipient.ID, recipient.RouteID, recipient.Email, recipient.Name,
		recipient.IsActive, recipient.CreatedAt,
	)
	return err
}

func (r *RecipientRepository) ListByRoute(ctx context.Context, routeID string, activeOnly bool) ([]*domain.Recipient, error) {
	_, span := r.tracer.Start(ctx, "recipient-repo.list-by-route")
	defer span.End()

	query := `SELECT id, route_id, email, name, is_active, created_at
	          FROM recipients
	          WHERE route_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// ListAll returns every recipient across all routes, ordered by email. Feeds
// the subscriber summary view.
func (r *RecipientRepository) ListAll(ctx context.Context) ([]*domain.Recipient, error) {
	_, span := r.tracer.Start(ctx, "recipient-repo.list-all")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, route_id, email, name, is_active, created_at
		 FROM recipients
		 ORDER BY email ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (r *RecipientRepository) Delete(ctx context.Context, id string) error {
	_, span := r.tracer.Start(ctx, "recipient-repo.delete")
	defer span.End()

	_, err := r.pool.Exec(ctx, `DELETE FROM recipients WHERE id = $1`, id)
	return err
}

func scanRecipients(rows pgx.Rows) ([]*domain.Recipient, error) {
	var recipients []*domain.Recipient
	for rows.Next() {
		rec := &domain.Recipient{}
		if err := rows.Scan(&rec.ID, &rec.RouteID, &rec.Email, &rec.Name, &rec.IsActive, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}
