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
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/correlation"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type CreatePackInput struct {
	Slug        string
	Name        string
	Vertical    string
	Description string
}

func (s *Service) CreatePack(ctx context.Context, in CreatePackInput) (*domain.Pack, error) {
	if err := domain.ValidateSlug(in.Slug); err != nil {
		return nil, err
	}
	if err := domain.ValidateVertical(in.Vertical); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: pack name is required", domain.ErrInvalidInput)
	}

	p := &domain.Pack{
		ID:          uuid.New(),
		Slug:        in.Slug,
		Name:        name,
		Vertical:    in.Vertical,
		Description: in.Description,
	}
	if err := s.packs.CreatePack(ctx, p); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Pack created", "pack_id", p.ID, "slug", p.Slug, "vertical", p.Vertical)
	return p, nil
}

func (s *Service) ListPacks(ctx context.Context) ([]domain.Pack, error) {
	return s.packs.ListPacks(ctx)
}

// PackDetail is a pack with all of its versions, newest first.
type PackDetail struct {
	domain.Pack
	Versions []domain.PackVersion `json:"versions"`
}

func (s *Service) GetPack(ctx context.Context, packID uuid.UUID) (*PackDetail, error) {
	p, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	versions, err := s.packs.ListVersions(ctx, packID)
	if err != nil {
		return nil, err
	}
	return &PackDetail{Pack: *p, Versions: versions}, nil
}

func (s *Service) ListVersions(ctx context.Context, packID uuid.UUID) ([]domain.PackVersion, error) {
	if _, err := s.packs.GetPack(ctx, packID); err != nil {
		return nil, err
	}
	return s.packs.ListVersions(ctx, packID)
}

// CreateDraft opens the next version of a pack. Empty content starts from the latest version.
func (s *Service) CreateDraft(ctx context.Context, packID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error) {
	if content.IsEmpty() {
		versions, err := s.ListVersions(ctx, packID)
		if err != nil {
			return nil, err
		}
		if latest := latestVersion(versions); latest != nil {
			content = latest.Content
		}
	}

	now := s.clock.Now()
	v := &domain.PackVersion{
		ID:        uuid.New(),
		PackID:    packID,
		Status:    domain.StatusDraft,
		Content:   content,
		Notes:     notes,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := domain.AuditEntry{
		PackID:    packID,
		VersionID: &v.ID,
		Action:    domain.AuditDraftCreated,
		ToStatus:  domain.StatusDraft,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := s.packs.CreateVersion(ctx, v, entry); err != nil {
		return nil, err
	}

	s.packChanged(ctx, packID, domain.AuditDraftCreated)
	slog.InfoContext(ctx, "Pack draft created", "pack_id", packID, "version", v.Version)
	return v, nil
}

func latestVersion(versions []domain.PackVersion) *domain.PackVersion {
	var latest *domain.PackVersion
	for i := range versions {
		if latest == nil || versions[i].Version > latest.Version {
			latest = &versions[i]
		}
	}
	return latest
}

func (s *Service) UpdateDraft(ctx context.Context, versionID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditDraftUpdated, actor, "", func(v *domain.PackVersion, now time.Time) error {
		if v.Status != domain.StatusDraft {
			return fmt.Errorf("%w: only drafts can be edited, version is %s", domain.ErrInvalidTransition, v.Status)
		}
		v.Content = content
		v.Notes = notes
		v.UpdatedAt = now
		return nil
	})
}

func (s *Service) Publish(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditPublished, actor, "", func(v *domain.PackVersion, now time.Time) error {
		return v.Publish(now)
	})
}

// StartRollout begins a staged rollout. Nil stages use the default ladder; every of zero
// means stages only move when advanced by hand. A single stage of 100 completes at once,
// but is still refused while another version of the pack is rolling out or paused.
func (s *Service) StartRollout(ctx context.Context, versionID uuid.UUID, stages []int, every time.Duration, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditRolloutStarted, actor, "", func(v *domain.PackVersion, now time.Time) error {
		if err := v.StartRollout(stages, every, now); err != nil {
			return err
		}
		return s.checkNoOtherActive(ctx, v)
	})
}

func (s *Service) checkNoOtherActive(ctx context.Context, v *domain.PackVersion) error {
	versions, err := s.packs.ListVersions(ctx, v.PackID)
	if err != nil {
		return err
	}
	for _, other := range versions {
		if other.ID != v.ID && other.Status.Active() {
			return fmt.Errorf("%w: version %d is %s", domain.ErrRolloutInProgress, other.Version, other.Status)
		}
	}
	return nil
}

func (s *Service) AdvanceRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditAdvanced, actor, "", func(v *domain.PackVersion, now time.Time) error {
		return v.Advance(now)
	})
}

func (s *Service) SetRolloutPercent(ctx context.Context, versionID uuid.UUID, percent int, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditPercentSet, actor, "", func(v *domain.PackVersion, now time.Time) error {
		return v.SetPercent(percent, now)
	})
}

func (s *Service) PauseRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditPaused, actor, reason, func(v *domain.PackVersion, now time.Time) error {
		return v.Pause(now)
	})
}

func (s *Service) ResumeRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditResumed, actor, "", func(v *domain.PackVersion, now time.Time) error {
		return v.Resume(now)
	})
}

func (s *Service) CompleteRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditCompleted, actor, "", func(v *domain.PackVersion, now time.Time) error {
		return v.Complete(now)
	})
}

func (s *Service) Rollback(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error) {
	return s.changeVersion(ctx, versionID, domain.AuditRolledBack, actor, reason, func(v *domain.PackVersion, now time.Time) error {
		return v.Rollback(now)
	})
}

// changeVersion loads a version, applies change and stores it with an audit entry,
// failing with ErrVersionConflict if someone else changed the version in between.
func (s *Service) changeVersion(ctx context.Context, versionID uuid.UUID, action domain.AuditAction, actor *uuid.UUID, reason string, change func(v *domain.PackVersion, now time.Time) error) (*domain.PackVersion, error) {
	v, err := s.packs.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	prevUpdatedAt := v.UpdatedAt
	from := v.Status
	now := s.clock.Now()
	if err := change(v, now); err != nil {
		return nil, err
	}

	entry := domain.AuditEntry{
		PackID:     v.PackID,
		VersionID:  &v.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   v.Status,
		Percent:    v.RolloutPercent,
		Actor:      actor,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := s.packs.SaveVersion(ctx, v, prevUpdatedAt, entry); err != nil {
		return nil, err
	}

	s.packChanged(ctx, v.PackID, action)
	slog.InfoContext(ctx, "Pack version changed",
		"pack_id", v.PackID, "version", v.Version, "action", action,
		"from", from, "to", v.Status, "percent", v.RolloutPercent)
	return v, nil
}

// Pin fixes a business to one version of a pack, replacing any earlier pin for that pack.
func (s *Service) Pin(ctx context.Context, businessID, versionID uuid.UUID, reason string, actor *uuid.UUID) (*domain.PackPin, error) {
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, err
	}
	v, err := s.packs.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !v.Status.Pinnable() {
		return nil, fmt.Errorf("%w: cannot pin a %s version", domain.ErrInvalidTransition, v.Status)
	}

	now := s.clock.Now()
	pin := &domain.PackPin{
		BusinessID: businessID,
		PackID:     v.PackID,
		VersionID:  v.ID,
		PinnedBy:   actor,
		Reason:     reason,
		CreatedAt:  now,
	}
	entry := domain.AuditEntry{
		PackID:     v.PackID,
		VersionID:  &v.ID,
		BusinessID: &businessID,
		Action:     domain.AuditPinned,
		ToStatus:   v.Status,
		Percent:    v.RolloutPercent,
		Actor:      actor,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := s.packs.UpsertPin(ctx, pin, entry); err != nil {
		return nil, err
	}

	s.packChanged(ctx, v.PackID, domain.AuditPinned)
	slog.InfoContext(ctx, "Business pinned to pack version", "business_id", businessID, "pack_id", v.PackID, "version", v.Version)
	return pin, nil
}

func (s *Service) Unpin(ctx context.Context, businessID, packID uuid.UUID, actor *uuid.UUID) error {
	entry := domain.AuditEntry{
		PackID:     packID,
		BusinessID: &businessID,
		Action:     domain.AuditUnpinned,
		Actor:      actor,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.packs.DeletePin(ctx, businessID, packID, entry); err != nil {
		return err
	}

	s.packChanged(ctx, packID, domain.AuditUnpinned)
	slog.InfoContext(ctx, "Business unpinned from pack", "business_id", businessID, "pack_id", packID)
	return nil
}

func (s *Service) ListPins(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error) {
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, err
	}
	return s.packs.ListPins(ctx, businessID)
}

// Resolve returns the version of a pack a business sees right now.
func (s *Service) Resolve(ctx context.Context, businessID, packID uuid.UUID) (*domain.Resolution, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, packID)
	if err != nil {
		return nil, err
	}
	res, err := snap.Resolve(businessID)
	if err != nil {
		return nil, err
	}
	s.observer.Resolved(res.Source)
	return res, nil
}

// ResolveForBusiness resolves the pack for the business's vertical.
func (s *Service) ResolveForBusiness(ctx context.Context, businessID uuid.UUID) (*domain.Resolution, error) {
	b, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return s.resolveForVertical(ctx, b.ID, b.Vertical)
}

func (s *Service) resolveForVertical(ctx context.Context, businessID uuid.UUID, vertical string) (*domain.Resolution, error) {
	p, err := s.packs.FindPackByVertical(ctx, vertical)
	if errors.Is(err, domain.ErrPackNotFound) {
		return nil, fmt.Errorf("%w: no pack for vertical %s", domain.ErrNoPackVersion, vertical)
	}
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, businessID, p.ID)
}

// effectiveContent is the pack content a business works with, or empty content when
// its vertical has no applicable pack.
func (s *Service) effectiveContent(ctx context.Context, b *domain.Business) (domain.PackContent, error) {
	res, err := s.resolveForVertical(ctx, b.ID, b.Vertical)
	if errors.Is(err, domain.ErrNoPackVersion) {
		return domain.PackContent{}, nil
	}
	if err != nil {
		return domain.PackContent{}, err
	}
	return res.Version.Content, nil
}

func (s *Service) RolloutHistory(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	if _, err := s.packs.GetPack(ctx, packID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.packs.History(ctx, packID, limit)
}

// AdvanceDue moves every rolling-out version whose stage interval has elapsed to its
// next stage and returns how many moved. Versions changed concurrently are skipped.
func (s *Service) AdvanceDue(ctx context.Context) (int, error) {
	versions, err := s.packs.ListAutoAdvancing(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list auto-advancing versions: %w", err)
	}

	now := s.clock.Now()
	advanced := 0
	for _, v := range versions {
		if !v.DueForAdvance(now) {
			continue
		}

		vctx := correlation.WithID(ctx, correlation.NewID())
		moved, err := s.changeVersion(vctx, v.ID, domain.AuditAdvanced, nil, "auto-advance", func(cur *domain.PackVersion, now time.Time) error {
			if !cur.DueForAdvance(now) {
				return errNotDue
			}
			return cur.Advance(now)
		})
		switch {
		case errors.Is(err, errNotDue), errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrInvalidTransition):
			slog.DebugContext(vctx, "Skipped auto-advance", "version_id", v.ID, "reason", err)
			continue
		case err != nil:
			slog.ErrorContext(vctx, "Auto-advance failed", "version_id", v.ID, "error", err)
			continue
		}

		advanced++
		s.observer.AutoAdvanced()
		slog.InfoContext(vctx, "Rollout auto-advanced", "pack_id", moved.PackID, "version", moved.Version, "percent", moved.RolloutPercent)
	}
	return advanced, nil
}

var errNotDue = errors.New("version no longer due for advance")
