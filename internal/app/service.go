package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/crypto"
)

// Observer receives domain events worth counting. metrics.DomainMetrics implements it.
type Observer interface {
	RolloutTransition(action domain.AuditAction)
	AutoAdvanced()
	Resolved(source domain.ResolutionSource)
	BookingAttempt(source domain.BookingSource, result string)
}

// SubmissionGuard rejects repeats of the same portal booking request. A claim that
// did not end in a booking is released so the visitor can retry at once.
type SubmissionGuard interface {
	IsDebounced(ctx context.Context, businessID uuid.UUID, fingerprint string) (bool, error)
	Release(ctx context.Context, businessID uuid.UUID, fingerprint string) error
}

// Deps wires the service. Guard and Observer may be nil.
type Deps struct {
	Businesses domain.BusinessRepository
	Staff      domain.StaffRepository
	Customers  domain.CustomerRepository
	Offerings  domain.OfferingRepository
	Bookings   domain.BookingRepository
	Packs      domain.PackRepository
	Support    domain.SupportCaseRepository
	Settings   domain.SettingsRepository

	Snapshots   domain.PackSnapshotSource
	Invalidator domain.PackCacheInvalidator
	Sealer      crypto.Service
	Guard       SubmissionGuard
	Observer    Observer
	Clock       clockwork.Clock
}

// Service is the application layer, the only component that references multiple
// domain components. It orchestrates all use cases.
type Service struct {
	businesses domain.BusinessRepository
	staff      domain.StaffRepository
	customers  domain.CustomerRepository
	offerings  domain.OfferingRepository
	bookings   domain.BookingRepository
	packs      domain.PackRepository
	support    domain.SupportCaseRepository
	settings   domain.SettingsRepository

	snapshots   domain.PackSnapshotSource
	invalidator domain.PackCacheInvalidator
	sealer      crypto.Service
	guard       SubmissionGuard
	observer    Observer
	clock       clockwork.Clock
}

func NewService(d Deps) *Service {
	observer := d.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{
		businesses:  d.Businesses,
		staff:       d.Staff,
		customers:   d.Customers,
		offerings:   d.Offerings,
		bookings:    d.Bookings,
		packs:       d.Packs,
		support:     d.Support,
		settings:    d.Settings,
		snapshots:   d.Snapshots,
		invalidator: d.Invalidator,
		sealer:      d.Sealer,
		guard:       d.Guard,
		observer:    observer,
		clock:       d.Clock,
	}
}

// packChanged runs after every committed pack mutation. The database is already
// updated, so a failed invalidation is logged and left to the cache TTL.
func (s *Service) packChanged(ctx context.Context, packID uuid.UUID, action domain.AuditAction) {
	s.observer.RolloutTransition(action)
	if err := s.invalidator.InvalidatePack(ctx, packID); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate pack cache", "pack_id", packID, "action", action, "error", err)
	}
}

type noopObserver struct{}

func (noopObserver) RolloutTransition(domain.AuditAction) {}
func (noopObserver) AutoAdvanced() {}
func (noopObserver) Resolved(domain.ResolutionSource) {}
func (noopObserver) BookingAttempt(domain.BookingSource, string) {}
