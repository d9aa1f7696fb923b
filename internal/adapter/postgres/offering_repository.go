package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferingRepo struct {
	pool *pgxpool.Pool
}

func NewOfferingRepo(pool *pgxpool.Pool) *OfferingRepo {
	return &OfferingRepo{pool: pool}
}

const offeringColumns = `id, business_id, name, duration_minutes, price_cents, active`

func scanOffering(row pgx.Row) (*domain.Offering, error) {
	var o domain.Offering
	if err := row.Scan(&o.ID, &o.BusinessID, &o.Name, &o.DurationMinutes, &o.PriceCents, &o.Active); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OfferingRepo) Create(ctx context.Context, o *domain.Offering) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO offerings (id, business_id, name, duration_minutes, price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.BusinessID, o.Name, o.DurationMinutes, o.PriceCents, o.Active)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBusinessNotFound
		}
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *OfferingRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Offering, error) {
	o, err := scanOffering(r.pool.QueryRow(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE id = $1 AND business_id = $2`, id, businessID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOfferingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return o, nil
}

func (r *OfferingRepo) List(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offeringColumns+` FROM offerings
		WHERE business_id = $1 AND (active OR $2)
		ORDER BY name`, businessID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Offering
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *OfferingRepo) Archive(ctx context.Context, businessID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE offerings SET active = FALSE WHERE id = $1 AND business_id = $2`, id, businessID)
	if err != nil {
		return fmt.Errorf("failed to archive service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferingNotFound
	}
	return nil
}
