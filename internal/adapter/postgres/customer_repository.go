package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

const customerColumns = `id, business_id, name, email, phone, notes, created_at`

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepo) Upsert(ctx context.Context, c *domain.Customer) error {
	stored, err := scanCustomer(r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, business_id, name, email, phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, email) WHERE email <> '' DO UPDATE SET
			name  = EXCLUDED.name,
			phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE customers.phone END
		RETURNING `+customerColumns,
		c.ID, c.BusinessID, c.Name, c.Email, c.Phone, c.Notes))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBusinessNotFound
		}
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	*c = *stored
	return nil
}

func (r *CustomerRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND business_id = $2`, id, businessID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// Search matches query against name, email and phone. An empty query lists the newest customers.
func (r *CustomerRepo) Search(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]domain.Customer, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE business_id = $1 AND (name ILIKE $2 OR email ILIKE $2 OR phone ILIKE $2)
		ORDER BY created_at DESC
		LIMIT $3`, businessID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
