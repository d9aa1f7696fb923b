package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

const bookingColumns = `id, business_id, customer_id, staff_id, offering_id, starts_at, ends_at, status, intake, source, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.BusinessID, &b.CustomerID, &b.StaffID, &b.OfferingID, &b.StartsAt, &b.EndsAt,
		&b.Status, &b.Intake, &b.Source, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// lockStaffAndCheckOverlap serialises bookings per staff member by holding the staff row
// lock for the rest of tx, then looks for a clashing booking other than exclude.
func lockStaffAndCheckOverlap(ctx context.Context, tx pgx.Tx, b *domain.Booking, exclude uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM staff WHERE id = $1 AND business_id = $2 AND active FOR UPDATE`,
		b.StaffID, b.BusinessID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrStaffNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock staff member: %w", err)
	}

	var clash bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE staff_id = $1 AND status <> 'cancelled' AND id <> $4
			  AND starts_at < $3 AND ends_at > $2
		)`, b.StaffID, b.StartsAt, b.EndsAt, exclude).Scan(&clash)
	if err != nil {
		return fmt.Errorf("failed to check booking overlap: %w", err)
	}
	if clash {
		return domain.ErrBookingConflict
	}
	return nil
}

func (r *BookingRepo) CreateChecked(ctx context.Context, b *domain.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockStaffAndCheckOverlap(ctx, tx, b, b.ID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, business_id, customer_id, staff_id, offering_id, starts_at, ends_at, status, intake, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		b.ID, b.BusinessID, b.CustomerID, b.StaffID, b.OfferingID, b.StartsAt, b.EndsAt, b.Status, b.Intake, b.Source,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *BookingRepo) RescheduleChecked(ctx context.Context, b *domain.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockStaffAndCheckOverlap(ctx, tx, b, b.ID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		UPDATE bookings SET starts_at = $3, ends_at = $4, staff_id = $5, updated_at = NOW()
		WHERE id = $1 AND business_id = $2 AND status = 'confirmed'
		RETURNING updated_at`,
		b.ID, b.BusinessID, b.StartsAt, b.EndsAt, b.StaffID).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to reschedule booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *BookingRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND business_id = $2`, id, businessID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// List returns bookings of any status that intersect [from, to).
func (r *BookingRepo) List(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE business_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, businessID, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		UPDATE bookings SET status = $4, updated_at = NOW()
		WHERE id = $1 AND business_id = $2 AND status = $3
		RETURNING `+bookingColumns, id, businessID, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, businessID, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return b, nil
}
