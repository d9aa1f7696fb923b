package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Offering is a bookable service of a business.
type Offering struct {
	ID              uuid.UUID `json:"id"`
	BusinessID      uuid.UUID `json:"business_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int       `json:"price_cents"`
	Active          bool      `json:"active"`
}

func (o *Offering) Duration() time.Duration {
	return time.Duration(o.DurationMinutes) * time.Minute
}

func (o *Offering) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if o.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if o.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

type OfferingRepository interface {
	Create(ctx context.Context, o *Offering) error
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*Offering, error)
	List(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]Offering, error)
	Archive(ctx context.Context, businessID, id uuid.UUID) error
}
