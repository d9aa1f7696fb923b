package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const maxBookingRange = 92 * 24 * time.Hour

type CreateBookingInput struct {
	CustomerID uuid.UUID
	StaffID    uuid.UUID
	OfferingID uuid.UUID
	StartsAt   time.Time
	Intake     map[string]string
}

// CreateBooking books a customer with a chosen staff member from the dashboard.
func (s *Service) CreateBooking(ctx context.Context, businessID uuid.UUID, in CreateBookingInput) (*domain.Booking, error) {
	b, offering, intake, err := s.prepareBooking(ctx, businessID, in.OfferingID, in.Intake)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, businessID, in.CustomerID); err != nil {
		return nil, err
	}

	booking := s.newBooking(b.ID, in.CustomerID, in.StaffID, offering, in.StartsAt, intake, domain.BookingFromStaff)
	err = s.bookings.CreateChecked(ctx, booking)
	s.recordAttempt(domain.BookingFromStaff, err)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Booking created", "booking_id", booking.ID, "business_id", businessID, "staff_id", booking.StaffID, "starts_at", booking.StartsAt)
	return booking, nil
}

type PortalBookingInput struct {
	OfferingID uuid.UUID
	StartsAt   time.Time
	Name       string
	Email      string
	Phone      string
	Intake     map[string]string
}

// BookFromPortal books a walk-up customer with the first staff member free for the slot.
// Only a request that ends in a booking keeps its submission fingerprint.
func (s *Service) BookFromPortal(ctx context.Context, slug string, in PortalBookingInput) (*domain.Booking, error) {
	b, err := s.businesses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	biz, offering, intake, err := s.prepareBooking(ctx, b.ID, in.OfferingID, in.Intake)
	if err != nil {
		return nil, err
	}
	if err := s.checkPortalSlot(biz, offering, in.StartsAt); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrInvalidInput)
	}

	fingerprint := email + "|" + offering.ID.String() + "|" + in.StartsAt.UTC().Format(time.RFC3339)
	claimed, err := s.claimSubmission(ctx, biz.ID, fingerprint)
	if err != nil {
		return nil, err
	}

	booking, err := s.placePortalBooking(ctx, biz.ID, offering, in, name, email, intake)
	if err != nil && claimed {
		if relErr := s.guard.Release(context.WithoutCancel(ctx), biz.ID, fingerprint); relErr != nil {
			slog.WarnContext(ctx, "Failed to release submission claim", "business_id", biz.ID, "error", relErr)
		}
	}
	return booking, err
}

// claimSubmission reports whether this request now holds the submission fingerprint.
// A guard outage lets the booking through unclaimed.
func (s *Service) claimSubmission(ctx context.Context, businessID uuid.UUID, fingerprint string) (bool, error) {
	if s.guard == nil {
		return false, nil
	}
	debounced, err := s.guard.IsDebounced(ctx, businessID, fingerprint)
	if err != nil {
		// fail open: a Redis outage must not stop bookings
		slog.WarnContext(ctx, "Submission guard failed, allowing booking", "business_id", businessID, "error", err)
		return false, nil
	}
	if debounced {
		s.observer.BookingAttempt(domain.BookingFromPortal, "duplicate")
		return false, domain.ErrDuplicateBooking
	}
	return true, nil
}

func (s *Service) placePortalBooking(ctx context.Context, businessID uuid.UUID, offering *domain.Offering, in PortalBookingInput, name, email string, intake map[string]string) (*domain.Booking, error) {
	staff, err := s.staff.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	customer := &domain.Customer{ID: uuid.New(), BusinessID: businessID, Name: name, Email: email, Phone: strings.TrimSpace(in.Phone)}
	if err := s.customers.Upsert(ctx, customer); err != nil {
		return nil, err
	}

	for _, member := range staff {
		if !member.Active {
			continue
		}
		booking := s.newBooking(businessID, customer.ID, member.ID, offering, in.StartsAt, intake, domain.BookingFromPortal)
		err := s.bookings.CreateChecked(ctx, booking)
		if errors.Is(err, domain.ErrBookingConflict) || errors.Is(err, domain.ErrStaffNotFound) {
			continue
		}
		s.recordAttempt(domain.BookingFromPortal, err)
		if err != nil {
			return nil, err
		}

		slog.InfoContext(ctx, "Portal booking created", "booking_id", booking.ID, "business_id", businessID, "staff_id", member.ID, "starts_at", booking.StartsAt)
		return booking, nil
	}

	s.recordAttempt(domain.BookingFromPortal, domain.ErrBookingConflict)
	return nil, domain.ErrBookingConflict
}

func (s *Service) prepareBooking(ctx context.Context, businessID, offeringID uuid.UUID, answers map[string]string) (*domain.Business, *domain.Offering, map[string]string, error) {
	b, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, nil, nil, err
	}
	offering, err := s.offerings.GetByID(ctx, businessID, offeringID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !offering.Active {
		return nil, nil, nil, fmt.Errorf("%w: service %q is archived", domain.ErrInvalidInput, offering.Name)
	}

	content, err := s.effectiveContent(ctx, b)
	if err != nil {
		return nil, nil, nil, err
	}
	intake, err := domain.ValidateIntake(content.IntakeFields, answers)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, offering, intake, nil
}

// checkPortalSlot keeps self-service bookings in the future and inside opening hours.
func (s *Service) checkPortalSlot(b *domain.Business, offering *domain.Offering, start time.Time) error {
	if !start.After(s.clock.Now()) {
		return fmt.Errorf("%w: booking must start in the future", domain.ErrInvalidInput)
	}
	loc, err := b.Location()
	if err != nil {
		return err
	}
	openAt, closeAt, err := b.OpeningWindow(start.In(loc))
	if err != nil {
		return err
	}
	if start.Before(openAt) || start.Add(offering.Duration()).After(closeAt) {
		return fmt.Errorf("%w: booking must fall within opening hours", domain.ErrInvalidInput)
	}
	return nil
}

func (s *Service) newBooking(businessID, customerID, staffID uuid.UUID, offering *domain.Offering, start time.Time, intake map[string]string, source domain.BookingSource) *domain.Booking {
	return &domain.Booking{
		ID:         uuid.New(),
		BusinessID: businessID,
		CustomerID: customerID,
		StaffID:    staffID,
		OfferingID: offering.ID,
		StartsAt:   start.UTC(),
		EndsAt:     start.Add(offering.Duration()).UTC(),
		Status:     domain.BookingConfirmed,
		Intake:     intake,
		Source:     source,
	}
}

func (s *Service) recordAttempt(source domain.BookingSource, err error) {
	result := "created"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBookingConflict):
		result = "conflict"
	default:
		result = "error"
	}
	s.observer.BookingAttempt(source, result)
}

func (s *Service) CancelBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	return s.setBookingStatus(ctx, businessID, id, domain.BookingCancelled)
}

func (s *Service) CompleteBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	return s.setBookingStatus(ctx, businessID, id, domain.BookingCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	return s.setBookingStatus(ctx, businessID, id, domain.BookingNoShow)
}

func (s *Service) setBookingStatus(ctx context.Context, businessID, id uuid.UUID, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := s.bookings.UpdateStatus(ctx, businessID, id, domain.BookingConfirmed, to)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Booking status changed", "booking_id", id, "status", to)
	return b, nil
}

// Reschedule moves a confirmed booking, optionally to another staff member.
func (s *Service) Reschedule(ctx context.Context, businessID, id uuid.UUID, startsAt time.Time, staffID *uuid.UUID) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingConfirmed {
		return nil, fmt.Errorf("%w: cannot reschedule a %s booking", domain.ErrInvalidTransition, b.Status)
	}
	offering, err := s.offerings.GetByID(ctx, businessID, b.OfferingID)
	if err != nil {
		return nil, err
	}

	b.StartsAt = startsAt.UTC()
	b.EndsAt = startsAt.Add(offering.Duration()).UTC()
	if staffID != nil {
		b.StaffID = *staffID
	}
	if err := s.bookings.RescheduleChecked(ctx, b); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Booking rescheduled", "booking_id", id, "starts_at", b.StartsAt, "staff_id", b.StaffID)
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after its start", domain.ErrInvalidInput)
	}
	if to.Sub(from) > maxBookingRange {
		return nil, fmt.Errorf("%w: range must not exceed 92 days", domain.ErrInvalidInput)
	}
	return s.bookings.List(ctx, businessID, from, to)
}

// Availability lists the free start times for an offering on a local calendar day.
func (s *Service) Availability(ctx context.Context, slug string, offeringID uuid.UUID, day time.Time) ([]time.Time, error) {
	b, err := s.businesses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	offering, err := s.offerings.GetByID(ctx, b.ID, offeringID)
	if err != nil {
		return nil, err
	}
	if !offering.Active {
		return nil, domain.ErrOfferingNotFound
	}

	openAt, closeAt, err := b.OpeningWindow(day)
	if err != nil {
		return nil, err
	}

	staff, err := s.staff.ListByBusiness(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	var staffIDs []uuid.UUID
	for _, member := range staff {
		if member.Active {
			staffIDs = append(staffIDs, member.ID)
		}
	}

	busy, err := s.bookings.List(ctx, b.ID, openAt, closeAt)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	slots := domain.FreeSlots(openAt, closeAt, offering.Duration(), staffIDs, busy)
	upcoming := slots[:0]
	for _, slot := range slots {
		if slot.After(now) {
			upcoming = append(upcoming, slot)
		}
	}
	return upcoming, nil
}

// PortalView is what the public booking page needs to render.
type PortalView struct {
	Business     domain.Business      `json:"business"`
	Offerings    []domain.Offering    `json:"services"`
	Labels       map[string]string    `json:"labels"`
	IntakeFields []domain.IntakeField `json:"intake_fields"`
}

func (s *Service) Portal(ctx context.Context, slug string) (*PortalView, error) {
	b, err := s.businesses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	offerings, err := s.offerings.List(ctx, b.ID, false)
	if err != nil {
		return nil, err
	}
	content, err := s.effectiveContent(ctx, b)
	if err != nil {
		return nil, err
	}
	return &PortalView{
		Business:     *b,
		Offerings:    offerings,
		Labels:       content.Labels,
		IntakeFields: content.IntakeFields,
	}, nil
}
