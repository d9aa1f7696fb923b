package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

// Business is a tenant. Opening hours are minutes since local midnight.
type Business struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Vertical    string    `json:"vertical"`
	Timezone    string    `json:"timezone"`
	OpenMinute  int       `json:"open_minute"`
	CloseMinute int       `json:"close_minute"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (b *Business) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, b.Timezone)
	}
	return loc, nil
}

// OpeningWindow returns the open and close instants of day (a local calendar date) for the business.
func (b *Business) OpeningWindow(day time.Time) (time.Time, time.Time, error) {
	loc, err := b.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(b.OpenMinute) * time.Minute), midnight.Add(time.Duration(b.CloseMinute) * time.Minute), nil
}

func ValidateHours(openMinute, closeMinute int) error {
	if openMinute < 0 || closeMinute > minutesPerDay || openMinute >= closeMinute {
		return fmt.Errorf("%w: opening hours must satisfy 0 <= open < close <= %d", ErrInvalidInput, minutesPerDay)
	}
	return nil
}

type BusinessRepository interface {
	Create(ctx context.Context, b *Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*Business, error)
	GetBySlug(ctx context.Context, slug string) (*Business, error)
	List(ctx context.Context) ([]Business, error)
	UpdateHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*Business, error)
}
