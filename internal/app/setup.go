package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

type SetupInput struct {
	Business      CreateBusinessInput
	OwnerName     string
	OwnerEmail    string
	OwnerPassword string
}

type SetupResult struct {
	Business  *domain.Business  `json:"business"`
	Owner     *domain.Staff     `json:"owner"`
	Offerings []domain.Offering `json:"services"`
}

// Setup onboards a new business: the business itself, its owner login and the default
// services of whichever pack version the new business resolves to.
func (s *Service) Setup(ctx context.Context, in SetupInput) (*SetupResult, error) {
	if err := validatePassword(in.OwnerPassword); err != nil {
		return nil, err
	}
	_, err := s.staff.GetByEmail(ctx, normalizeEmail(in.OwnerEmail))
	if err == nil {
		return nil, domain.ErrStaffExists
	}
	if !errors.Is(err, domain.ErrStaffNotFound) {
		return nil, err
	}

	b, err := s.CreateBusiness(ctx, in.Business)
	if err != nil {
		return nil, err
	}

	owner, err := s.createStaff(ctx, &b.ID, CreateStaffInput{
		Email:    in.OwnerEmail,
		Name:     in.OwnerName,
		Role:     domain.RoleOwner,
		Password: in.OwnerPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("business %s created without owner: %w", b.Slug, err)
	}

	content, err := s.effectiveContent(ctx, b)
	if err != nil {
		// the business is usable without defaults
		slog.WarnContext(ctx, "Failed to resolve pack for new business", "business_id", b.ID, "error", err)
	}

	offerings := make([]domain.Offering, 0, len(content.DefaultServices))
	for _, ds := range content.DefaultServices {
		o, err := s.CreateOffering(ctx, b.ID, OfferingInput{Name: ds.Name, DurationMinutes: ds.DurationMinutes, PriceCents: ds.PriceCents})
		if err != nil {
			slog.WarnContext(ctx, "Skipped default service", "business_id", b.ID, "service", ds.Name, "error", err)
			continue
		}
		offerings = append(offerings, *o)
	}

	slog.InfoContext(ctx, "Business set up", "business_id", b.ID, "owner_id", owner.ID, "services", len(offerings))
	return &SetupResult{Business: b, Owner: owner, Offerings: offerings}, nil
}
