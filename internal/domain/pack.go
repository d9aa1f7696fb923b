package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	verticalPattern = regexp.MustCompile(`^[a-z]+$`)
)

// ValidateSlug checks the shared slug format used by packs and businesses.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug %q must match %s", ErrInvalidInput, slug, slugPattern)
	}
	return nil
}

// ValidateVertical checks a vertical name such as "clinic" or "salon".
func ValidateVertical(vertical string) error {
	if !verticalPattern.MatchString(vertical) {
		return fmt.Errorf("%w: vertical %q must be a lowercase word", ErrInvalidInput, vertical)
	}
	return nil
}

type Pack struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Vertical    string    `json:"vertical"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type IntakeFieldType string

const (
	FieldText    IntakeFieldType = "text"
	FieldNumber  IntakeFieldType = "number"
	FieldDate    IntakeFieldType = "date"
	FieldSelect  IntakeFieldType = "select"
	FieldBoolean IntakeFieldType = "boolean"
)

func (t IntakeFieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldDate, FieldSelect, FieldBoolean:
		return true
	}
	return false
}

type IntakeField struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	Type     IntakeFieldType `json:"type"`
	Required bool            `json:"required"`
	Options  []string        `json:"options,omitempty"`
}

type DefaultService struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int    `json:"price_cents"`
}

type MessageTemplate struct {
	Key  string `json:"key"`
	Body string `json:"body"`
}

// PackContent is the tenant configuration carried by a pack version. Stored as JSONB.
type PackContent struct {
	Labels           map[string]string `json:"labels,omitempty"`
	IntakeFields     []IntakeField     `json:"intake_fields,omitempty"`
	DefaultServices  []DefaultService  `json:"default_services,omitempty"`
	MessageTemplates []MessageTemplate `json:"message_templates,omitempty"`
}

func (c PackContent) IsEmpty() bool {
	return len(c.Labels) == 0 && len(c.IntakeFields) == 0 && len(c.DefaultServices) == 0 && len(c.MessageTemplates) == 0
}

// Validate checks that the content is fit to be published.
func (c PackContent) Validate() error {
	seen := make(map[string]struct{}, len(c.IntakeFields))
	for i, f := range c.IntakeFields {
		if f.Key == "" {
			return fmt.Errorf("%w: intake field %d has an empty key", ErrInvalidInput, i)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("%w: duplicate intake field key %q", ErrInvalidInput, f.Key)
		}
		seen[f.Key] = struct{}{}

		if !f.Type.Valid() {
			return fmt.Errorf("%w: intake field %q has unknown type %q", ErrInvalidInput, f.Key, f.Type)
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return fmt.Errorf("%w: select field %q needs options", ErrInvalidInput, f.Key)
		}
	}

	for _, s := range c.DefaultServices {
		if s.Name == "" {
			return fmt.Errorf("%w: default service without a name", ErrInvalidInput)
		}
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("%w: default service %q needs a positive duration", ErrInvalidInput, s.Name)
		}
		if s.PriceCents < 0 {
			return fmt.Errorf("%w: default service %q has a negative price", ErrInvalidInput, s.Name)
		}
	}

	templates := make(map[string]struct{}, len(c.MessageTemplates))
	for _, m := range c.MessageTemplates {
		if m.Key == "" {
			return fmt.Errorf("%w: message template with an empty key", ErrInvalidInput)
		}
		if _, dup := templates[m.Key]; dup {
			return fmt.Errorf("%w: duplicate message template %q", ErrInvalidInput, m.Key)
		}
		templates[m.Key] = struct{}{}
	}

	return nil
}

// Label returns the vertical's wording for key, or fallback when the pack does not rename it.
func (c PackContent) Label(key, fallback string) string {
	if v, ok := c.Labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

type PackPin struct {
	BusinessID uuid.UUID  `json:"business_id"`
	PackID     uuid.UUID  `json:"pack_id"`
	VersionID  uuid.UUID  `json:"version_id"`
	PinnedBy   *uuid.UUID `json:"pinned_by,omitempty"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AuditAction string

const (
	AuditDraftCreated   AuditAction = "draft_created"
	AuditDraftUpdated   AuditAction = "draft_updated"
	AuditPublished      AuditAction = "published"
	AuditRolloutStarted AuditAction = "rollout_started"
	AuditAdvanced       AuditAction = "rollout_advanced"
	AuditPercentSet     AuditAction = "percent_set"
	AuditPaused         AuditAction = "paused"
	AuditResumed        AuditAction = "resumed"
	AuditCompleted      AuditAction = "completed"
	AuditRolledBack     AuditAction = "rolled_back"
	AuditPinned         AuditAction = "pinned"
	AuditUnpinned       AuditAction = "unpinned"
)

// AuditEntry records one change to a pack's versions or pins.
type AuditEntry struct {
	ID         uuid.UUID     `json:"id"`
	PackID     uuid.UUID     `json:"pack_id"`
	VersionID  *uuid.UUID    `json:"version_id,omitempty"`
	BusinessID *uuid.UUID    `json:"business_id,omitempty"`
	Action     AuditAction   `json:"action"`
	FromStatus RolloutStatus `json:"from_status,omitempty"`
	ToStatus   RolloutStatus `json:"to_status,omitempty"`
	Percent    int           `json:"percent"`
	Actor      *uuid.UUID    `json:"actor,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// PackRepository persists packs, their versions, pins and the rollout audit log.
// Mutating methods write the given audit entry in the same transaction.
type PackRepository interface {
	CreatePack(ctx context.Context, p *Pack) error
	GetPack(ctx context.Context, id uuid.UUID) (*Pack, error)
	ListPacks(ctx context.Context) ([]Pack, error)
	FindPackByVertical(ctx context.Context, vertical string) (*Pack, error)

	GetVersion(ctx context.Context, id uuid.UUID) (*PackVersion, error)
	ListVersions(ctx context.Context, packID uuid.UUID) ([]PackVersion, error)
	CreateVersion(ctx context.Context, v *PackVersion, entry AuditEntry) error
	// SaveVersion stores v if the row still carries prevUpdatedAt, else ErrVersionConflict.
	SaveVersion(ctx context.Context, v *PackVersion, prevUpdatedAt time.Time, entry AuditEntry) error
	ListAutoAdvancing(ctx context.Context) ([]PackVersion, error)

	GetPin(ctx context.Context, businessID, packID uuid.UUID) (*PackPin, error)
	ListPins(ctx context.Context, businessID uuid.UUID) ([]PackPin, error)
	UpsertPin(ctx context.Context, pin *PackPin, entry AuditEntry) error
	DeletePin(ctx context.Context, businessID, packID uuid.UUID, entry AuditEntry) error

	LoadSnapshot(ctx context.Context, packID uuid.UUID) (*PackSnapshot, error)
	History(ctx context.Context, packID uuid.UUID, limit int) ([]AuditEntry, error)
}
