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

type SupportCaseRepo struct {
	pool *pgxpool.Pool
}

func NewSupportCaseRepo(pool *pgxpool.Pool) *SupportCaseRepo {
	return &SupportCaseRepo{pool: pool}
}

const caseColumns = `id, business_id, opened_by, subject, body, status, priority, notes, created_at, updated_at`

func scanCase(row pgx.Row) (*domain.SupportCase, error) {
	var c domain.SupportCase
	err := row.Scan(&c.ID, &c.BusinessID, &c.OpenedBy, &c.Subject, &c.Body, &c.Status, &c.Priority, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Notes == nil {
		c.Notes = []domain.CaseNote{}
	}
	return &c, nil
}

func (r *SupportCaseRepo) Create(ctx context.Context, c *domain.SupportCase) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO support_cases (id, business_id, opened_by, subject, body, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING notes, created_at, updated_at`,
		c.ID, c.BusinessID, c.OpenedBy, c.Subject, c.Body, c.Status, c.Priority,
	).Scan(&c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBusinessNotFound
		}
		return fmt.Errorf("failed to create support case: %w", err)
	}
	return nil
}

func (r *SupportCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportCase, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM support_cases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSupportCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get support case: %w", err)
	}
	return c, nil
}

func (r *SupportCaseRepo) List(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseColumns+` FROM support_cases
		WHERE ($1::uuid IS NULL OR business_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, filter.BusinessID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list support cases: %w", err)
	}
	defer rows.Close()

	var out []domain.SupportCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan support case: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *SupportCaseRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.CaseStatus) (*domain.SupportCase, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, `
		UPDATE support_cases SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+caseColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update support case status: %w", err)
	}
	return c, nil
}

func (r *SupportCaseRepo) AppendNote(ctx context.Context, id uuid.UUID, note domain.CaseNote) (*domain.SupportCase, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, `
		UPDATE support_cases SET notes = notes || jsonb_build_array($2::jsonb), updated_at = NOW()
		WHERE id = $1
		RETURNING `+caseColumns, id, note))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSupportCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append support case note: %w", err)
	}
	return c, nil
}
