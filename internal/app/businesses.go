package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const customerSearchLimit = 50

type CreateBusinessInput struct {
	Slug        string
	Name        string
	Vertical    string
	Timezone    string
	OpenMinute  int
	CloseMinute int
}

func (s *Service) CreateBusiness(ctx context.Context, in CreateBusinessInput) (*domain.Business, error) {
	if err := domain.ValidateSlug(in.Slug); err != nil {
		return nil, err
	}
	if err := domain.ValidateVertical(in.Vertical); err != nil {
		return nil, err
	}
	if err := domain.ValidateHours(in.OpenMinute, in.CloseMinute); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: business name is required", domain.ErrInvalidInput)
	}

	b := &domain.Business{
		ID:          uuid.New(),
		Slug:        in.Slug,
		Name:        name,
		Vertical:    in.Vertical,
		Timezone:    in.Timezone,
		OpenMinute:  in.OpenMinute,
		CloseMinute: in.CloseMinute,
	}
	if _, err := b.Location(); err != nil {
		return nil, err
	}
	if err := s.businesses.Create(ctx, b); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Business created", "business_id", b.ID, "slug", b.Slug, "vertical", b.Vertical)
	return b, nil
}

func (s *Service) GetBusiness(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	return s.businesses.GetByID(ctx, id)
}

func (s *Service) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	return s.businesses.List(ctx)
}

func (s *Service) UpdateBusinessHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error) {
	if err := domain.ValidateHours(openMinute, closeMinute); err != nil {
		return nil, err
	}
	return s.businesses.UpdateHours(ctx, id, openMinute, closeMinute)
}

// --- Staff ---

type CreateStaffInput struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
}

// CreateStaff adds a login to a business. Super admins are created by the seed tool only.
func (s *Service) CreateStaff(ctx context.Context, businessID uuid.UUID, in CreateStaffInput) (*domain.Staff, error) {
	if !in.Role.Valid() || in.Role == domain.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", domain.ErrInvalidInput, in.Role)
	}
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, err
	}
	return s.createStaff(ctx, &businessID, in)
}

func (s *Service) createStaff(ctx context.Context, businessID *uuid.UUID, in CreateStaffInput) (*domain.Staff, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	st := &domain.Staff{
		ID:           uuid.New(),
		BusinessID:   businessID,
		Email:        email,
		Name:         name,
		Role:         in.Role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.staff.Create(ctx, st); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Staff member created", "staff_id", st.ID, "role", st.Role)
	return st, nil
}

func (s *Service) ListStaff(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error) {
	return s.staff.ListByBusiness(ctx, businessID)
}

func (s *Service) DeactivateStaff(ctx context.Context, businessID, id, actor uuid.UUID) error {
	if id == actor {
		return fmt.Errorf("%w: you cannot deactivate your own login", domain.ErrInvalidInput)
	}
	if err := s.staff.Deactivate(ctx, businessID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Staff member deactivated", "staff_id", id, "by", actor)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Customers ---

type CustomerInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// SaveCustomer creates a customer, or refreshes the one with the same email.
func (s *Service) SaveCustomer(ctx context.Context, businessID uuid.UUID, in CustomerInput) (*domain.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", domain.ErrInvalidInput)
	}
	c := &domain.Customer{
		ID:         uuid.New(),
		BusinessID: businessID,
		Name:       name,
		Email:      normalizeEmail(in.Email),
		Phone:      strings.TrimSpace(in.Phone),
		Notes:      in.Notes,
	}
	if err := s.customers.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) SearchCustomers(ctx context.Context, businessID uuid.UUID, query string) ([]domain.Customer, error) {
	return s.customers.Search(ctx, businessID, strings.TrimSpace(query), customerSearchLimit)
}

// --- Offerings ---

type OfferingInput struct {
	Name            string
	DurationMinutes int
	PriceCents      int
}

func (s *Service) CreateOffering(ctx context.Context, businessID uuid.UUID, in OfferingInput) (*domain.Offering, error) {
	o := &domain.Offering{
		ID:              uuid.New(),
		BusinessID:      businessID,
		Name:            strings.TrimSpace(in.Name),
		DurationMinutes: in.DurationMinutes,
		PriceCents:      in.PriceCents,
		Active:          true,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := s.offerings.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) ListOfferings(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error) {
	return s.offerings.List(ctx, businessID, includeArchived)
}

func (s *Service) ArchiveOffering(ctx context.Context, businessID, id uuid.UUID) error {
	return s.offerings.Archive(ctx, businessID, id)
}

// TodayBounds returns the UTC instants that bound the business's current local day.
func (s *Service) TodayBounds(ctx context.Context, businessID uuid.UUID) (time.Time, time.Time, error) {
	b, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	loc, err := b.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := s.clock.Now().In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}
