package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

type CustomerRepository interface {
	// Upsert inserts c, or refreshes name and phone of the customer with the same
	// non-empty email in the business. c is updated with the stored row.
	Upsert(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*Customer, error)
	Search(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]Customer, error)
}
