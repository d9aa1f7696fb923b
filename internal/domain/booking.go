package domain

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// CanTransitionTo allows leaving confirmed only.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	return s == BookingConfirmed && to != BookingConfirmed
}

type BookingSource string

const (
	BookingFromPortal BookingSource = "portal"
	BookingFromStaff  BookingSource = "staff"
)

type Booking struct {
	ID         uuid.UUID         `json:"id"`
	BusinessID uuid.UUID         `json:"business_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	StaffID    uuid.UUID         `json:"staff_id"`
	OfferingID uuid.UUID         `json:"offering_id"`
	StartsAt   time.Time         `json:"starts_at"`
	EndsAt     time.Time         `json:"ends_at"`
	Status     BookingStatus     `json:"status"`
	Intake     map[string]string `json:"intake"`
	Source     BookingSource     `json:"source"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Overlaps reports whether the booking occupies any of the half-open interval [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.Status != BookingCancelled && b.StartsAt.Before(end) && start.Before(b.EndsAt)
}

// FreeSlots steps from openAt to closeAt by step and keeps each slot for which at least one
// of staffIDs has no overlapping booking in busy.
func FreeSlots(openAt, closeAt time.Time, step time.Duration, staffIDs []uuid.UUID, busy []Booking) []time.Time {
	if step <= 0 || len(staffIDs) == 0 {
		return nil
	}

	var slots []time.Time
	for start := openAt; !start.Add(step).After(closeAt); start = start.Add(step) {
		end := start.Add(step)
		for _, staffID := range staffIDs {
			if staffFree(staffID, start, end, busy) {
				slots = append(slots, start)
				break
			}
		}
	}
	return slots
}

func staffFree(staffID uuid.UUID, start, end time.Time, busy []Booking) bool {
	for i := range busy {
		if busy[i].StaffID == staffID && busy[i].Overlaps(start, end) {
			return false
		}
	}
	return true
}

// ValidateIntake checks answers against the pack's intake fields and returns only the
// answers for known fields.
func ValidateIntake(fields []IntakeField, answers map[string]string) (map[string]string, error) {
	clean := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := answers[f.Key]
		if !ok || v == "" {
			if f.Required {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, f.Label)
			}
			continue
		}
		if err := checkIntakeValue(f, v); err != nil {
			return nil, err
		}
		clean[f.Key] = v
	}
	return clean, nil
}

func checkIntakeValue(f IntakeField, v string) error {
	var err error
	switch f.Type {
	case FieldNumber:
		_, err = strconv.ParseFloat(v, 64)
	case FieldDate:
		_, err = time.Parse(time.DateOnly, v)
	case FieldBoolean:
		_, err = strconv.ParseBool(v)
	case FieldSelect:
		if !slices.Contains(f.Options, v) {
			return fmt.Errorf("%w: %q is not an option for %s", ErrInvalidInput, v, f.Label)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s has an invalid %s value", ErrInvalidInput, f.Label, f.Type)
	}
	return nil
}

type BookingRepository interface {
	// CreateChecked inserts b unless the staff member already has an overlapping booking.
	CreateChecked(ctx context.Context, b *Booking) error
	// RescheduleChecked moves b to its new StartsAt/EndsAt under the same overlap check.
	RescheduleChecked(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*Booking, error)
	List(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]Booking, error)
	UpdateStatus(ctx context.Context, businessID, id uuid.UUID, from, to BookingStatus) (*Booking, error)
}
