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

type BusinessRepo struct {
	pool *pgxpool.Pool
}

func NewBusinessRepo(pool *pgxpool.Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

const businessColumns = `id, slug, name, vertical, timezone, open_minute, close_minute, created_at, updated_at`

func scanBusiness(row pgx.Row) (*domain.Business, error) {
	var b domain.Business
	err := row.Scan(&b.ID, &b.Slug, &b.Name, &b.Vertical, &b.Timezone, &b.OpenMinute, &b.CloseMinute, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO businesses (id, slug, name, vertical, timezone, open_minute, close_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.Slug, b.Name, b.Vertical, b.Timezone, b.OpenMinute, b.CloseMinute)

	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrBusinessExists
		}
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	b, err := scanBusiness(r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business by ID: %w", err)
	}
	return b, nil
}

func (r *BusinessRepo) GetBySlug(ctx context.Context, slug string) (*domain.Business, error) {
	b, err := scanBusiness(r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business by slug: %w", err)
	}
	return b, nil
}

func (r *BusinessRepo) List(ctx context.Context) ([]domain.Business, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BusinessRepo) UpdateHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error) {
	b, err := scanBusiness(r.pool.QueryRow(ctx, `
		UPDATE businesses SET open_minute = $2, close_minute = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+businessColumns, id, openMinute, closeMinute))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update business hours: %w", err)
	}
	return b, nil
}
