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

type StaffRepo struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) *StaffRepo {
	return &StaffRepo{pool: pool}
}

const staffColumns = `id, business_id, email, name, role, password_hash, active, created_at`

func scanStaff(row pgx.Row) (*domain.Staff, error) {
	var s domain.Staff
	err := row.Scan(&s.ID, &s.BusinessID, &s.Email, &s.Name, &s.Role, &s.PasswordHash, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StaffRepo) Create(ctx context.Context, s *domain.Staff) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff (id, business_id, email, name, role, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID, s.BusinessID, s.Email, s.Name, s.Role, s.PasswordHash, s.Active).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "staff_email_key") {
			return domain.ErrStaffExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrBusinessNotFound
		}
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return nil
}

func (r *StaffRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	s, err := scanStaff(r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff by ID: %w", err)
	}
	return s, nil
}

func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (*domain.Staff, error) {
	s, err := scanStaff(r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff by email: %w", err)
	}
	return s, nil
}

func (r *StaffRepo) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff WHERE business_id = $1 ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var out []domain.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *StaffRepo) Deactivate(ctx context.Context, businessID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE staff SET active = FALSE WHERE id = $1 AND business_id = $2`, id, businessID)
	if err != nil {
		return fmt.Errorf("failed to deactivate staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}
