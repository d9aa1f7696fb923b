package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleAgent      Role = "agent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOwner, RoleAdmin, RoleAgent:
		return true
	}
	return false
}

// Staff is a login. BusinessID is nil only for super admins.
type Staff struct {
	ID           uuid.UUID  `json:"id"`
	BusinessID   *uuid.UUID `json:"business_id,omitempty"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
}

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Staff, error)
	Deactivate(ctx context.Context, businessID, id uuid.UUID) error
}
