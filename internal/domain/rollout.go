package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

type RolloutStatus string

const (
	StatusDraft      RolloutStatus = "draft"
	StatusPublished  RolloutStatus = "published"
	StatusRollingOut RolloutStatus = "rolling_out"
	StatusPaused     RolloutStatus = "paused"
	StatusCompleted  RolloutStatus = "completed"
	StatusRolledBack RolloutStatus = "rolled_back"
)

var rolloutTransitions = map[RolloutStatus][]RolloutStatus{
	StatusDraft:      {StatusPublished},
	StatusPublished:  {StatusRollingOut},
	StatusRollingOut: {StatusPaused, StatusCompleted, StatusRolledBack},
	StatusPaused:     {StatusRollingOut, StatusCompleted, StatusRolledBack},
	StatusCompleted:  {StatusRolledBack},
}

func (s RolloutStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusRollingOut, StatusPaused, StatusCompleted, StatusRolledBack:
		return true
	}
	return false
}

func (s RolloutStatus) CanTransitionTo(to RolloutStatus) bool {
	for _, allowed := range rolloutTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active reports whether versions in this status take part in percentage assignment.
func (s RolloutStatus) Active() bool {
	return s == StatusRollingOut || s == StatusPaused
}

// Pinnable reports whether a tenant may be pinned to a version in this status.
func (s RolloutStatus) Pinnable() bool {
	switch s {
	case StatusPublished, StatusRollingOut, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Duration is a time.Duration that travels as "90m" style text in JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	*d = Duration(parsed)
	return nil
}

var DefaultRolloutStages = []int{10, 25, 50, 100}

// ValidateStages checks stages are strictly increasing, within 1..100 and end at 100.
func ValidateStages(stages []int) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: rollout needs at least one stage", ErrInvalidInput)
	}
	prev := 0
	for _, s := range stages {
		if s < 1 || s > 100 {
			return fmt.Errorf("%w: stage %d out of range 1..100", ErrInvalidInput, s)
		}
		if s <= prev {
			return fmt.Errorf("%w: stages must be strictly increasing", ErrInvalidInput)
		}
		prev = s
	}
	if prev != 100 {
		return fmt.Errorf("%w: last stage must be 100", ErrInvalidInput)
	}
	return nil
}

// NextStage returns the first stage above current, or 100 when none is left.
func NextStage(stages []int, current int) int {
	for _, s := range stages {
		if s > current {
			return s
		}
	}
	return 100
}

// Bucket maps a tenant onto 0..99 for a pack. The mapping never changes, so raising
// a percentage only ever adds tenants to a rollout.
func Bucket(packID, businessID uuid.UUID) int {
	return int(xxhash.Sum64String(packID.String()+":"+businessID.String()) % 100)
}

type PackVersion struct {
	ID               uuid.UUID     `json:"id"`
	PackID           uuid.UUID     `json:"pack_id"`
	Version          int           `json:"version"`
	Status           RolloutStatus `json:"status"`
	Content          PackContent   `json:"content"`
	RolloutPercent   int           `json:"rollout_percent"`
	RolloutStages    []int         `json:"rollout_stages"`
	AutoAdvanceEvery Duration      `json:"auto_advance_every"`
	StageUpdatedAt   *time.Time    `json:"stage_updated_at,omitempty"`
	Notes            string        `json:"notes"`
	CreatedBy        *uuid.UUID    `json:"created_by,omitempty"`
	PublishedAt      *time.Time    `json:"published_at,omitempty"`
	RolloutStartedAt *time.Time    `json:"rollout_started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	RolledBackAt     *time.Time    `json:"rolled_back_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (v *PackVersion) transition(to RolloutStatus, now time.Time) error {
	if !v.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, to)
	}
	v.Status = to
	v.UpdatedAt = now
	return nil
}

func (v *PackVersion) Publish(now time.Time) error {
	if v.Status != StatusDraft {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusPublished)
	}
	if err := v.Content.Validate(); err != nil {
		return err
	}
	if err := v.transition(StatusPublished, now); err != nil {
		return err
	}
	v.PublishedAt = &now
	return nil
}

// StartRollout moves a published version onto its first stage. Nil stages use DefaultRolloutStages.
func (v *PackVersion) StartRollout(stages []int, every time.Duration, now time.Time) error {
	if stages == nil {
		stages = DefaultRolloutStages
	}
	if err := ValidateStages(stages); err != nil {
		return err
	}
	if every < 0 {
		return fmt.Errorf("%w: auto advance interval must not be negative", ErrInvalidInput)
	}
	if err := v.transition(StatusRollingOut, now); err != nil {
		return err
	}

	v.RolloutStages = append([]int(nil), stages...)
	v.AutoAdvanceEvery = Duration(every)
	v.RolloutStartedAt = &now
	v.setPercent(stages[0], now)
	return nil
}

func (v *PackVersion) Advance(now time.Time) error {
	if v.Status != StatusRollingOut {
		return fmt.Errorf("%w: cannot advance a %s version", ErrInvalidTransition, v.Status)
	}
	v.setPercent(NextStage(v.RolloutStages, v.RolloutPercent), now)
	return nil
}

// SetPercent jumps the rollout to percent. Lowering a rollout is only possible by rolling back.
func (v *PackVersion) SetPercent(percent int, now time.Time) error {
	if v.Status != StatusRollingOut {
		return fmt.Errorf("%w: cannot change percentage of a %s version", ErrInvalidTransition, v.Status)
	}
	if percent <= v.RolloutPercent || percent > 100 {
		return fmt.Errorf("%w: percent must be above %d and at most 100", ErrInvalidInput, v.RolloutPercent)
	}
	v.setPercent(percent, now)
	return nil
}

func (v *PackVersion) setPercent(percent int, now time.Time) {
	v.RolloutPercent = percent
	v.StageUpdatedAt = &now
	v.UpdatedAt = now
	if percent >= 100 {
		v.Status = StatusCompleted
		v.CompletedAt = &now
	}
}

func (v *PackVersion) Pause(now time.Time) error {
	return v.transition(StatusPaused, now)
}

// Resume restarts the auto-advance clock from now.
func (v *PackVersion) Resume(now time.Time) error {
	if v.Status != StatusPaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusRollingOut)
	}
	if err := v.transition(StatusRollingOut, now); err != nil {
		return err
	}
	v.StageUpdatedAt = &now
	return nil
}

func (v *PackVersion) Complete(now time.Time) error {
	if err := v.transition(StatusCompleted, now); err != nil {
		return err
	}
	v.RolloutPercent = 100
	v.StageUpdatedAt = &now
	v.CompletedAt = &now
	return nil
}

func (v *PackVersion) Rollback(now time.Time) error {
	if err := v.transition(StatusRolledBack, now); err != nil {
		return err
	}
	v.RolledBackAt = &now
	return nil
}

// DueForAdvance reports whether the auto-advance interval for the current stage has elapsed.
func (v *PackVersion) DueForAdvance(now time.Time) bool {
	if v.Status != StatusRollingOut || v.AutoAdvanceEvery <= 0 || v.StageUpdatedAt == nil {
		return false
	}
	return !now.Before(v.StageUpdatedAt.Add(time.Duration(v.AutoAdvanceEvery)))
}

type ResolutionSource string

const (
	SourcePin      ResolutionSource = "pin"
	SourceRollout  ResolutionSource = "rollout"
	SourceBaseline ResolutionSource = "baseline"
)

// Resolution is the version a tenant sees for a pack and why.
type Resolution struct {
	Pack    Pack             `json:"pack"`
	Version PackVersion      `json:"version"`
	Source  ResolutionSource `json:"source"`
	Bucket  int              `json:"bucket"`
}

// PackSnapshot is everything needed to resolve a pack for any tenant: the versions that can
// be served (active, completed and pinned ones, highest version first) and the pins.
type PackSnapshot struct {
	Pack     Pack                    `json:"pack"`
	Versions []PackVersion           `json:"versions"`
	Pins     map[uuid.UUID]uuid.UUID `json:"pins"`
}

func (s *PackSnapshot) Resolve(businessID uuid.UUID) (*Resolution, error) {
	bucket := Bucket(s.Pack.ID, businessID)
	resolved := func(v PackVersion, source ResolutionSource) *Resolution {
		return &Resolution{Pack: s.Pack, Version: v, Source: source, Bucket: bucket}
	}

	if versionID, ok := s.Pins[businessID]; ok {
		for _, v := range s.Versions {
			if v.ID == versionID {
				return resolved(v, SourcePin), nil
			}
		}
	}

	for _, v := range s.Versions {
		if v.Status.Active() && bucket < v.RolloutPercent {
			return resolved(v, SourceRollout), nil
		}
	}

	var baseline *PackVersion
	for i := range s.Versions {
		v := &s.Versions[i]
		if v.Status == StatusCompleted && (baseline == nil || v.Version > baseline.Version) {
			baseline = v
		}
	}
	if baseline != nil {
		return resolved(*baseline, SourceBaseline), nil
	}

	return nil, fmt.Errorf("%w: pack %s", ErrNoPackVersion, s.Pack.Slug)
}

// PackSnapshotSource provides snapshot lookup with read-through caching.
type PackSnapshotSource interface {
	GetSnapshot(ctx context.Context, packID uuid.UUID) (*PackSnapshot, error)
}

// PackCacheInvalidator drops a pack's cached snapshot on every instance.
type PackCacheInvalidator interface {
	InvalidatePack(ctx context.Context, packID uuid.UUID) error
}

// LeaderLease coordinates single-instance background work.
type LeaderLease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}
