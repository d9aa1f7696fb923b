package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MaskedValue replaces secret setting values in listings.
const MaskedValue = "********"

var settingKeyPattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

type PlatformSetting struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Secret    bool       `json:"secret"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func ValidateSettingKey(key string) error {
	if !settingKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: setting key %q must match %s", ErrInvalidInput, key, settingKeyPattern)
	}
	return nil
}

// Masked returns a copy safe to show in listings.
func (s PlatformSetting) Masked() PlatformSetting {
	if s.Secret {
		s.Value = MaskedValue
	}
	return s
}

// SettingsRepository stores values as given; sealing secrets is the caller's job.
type SettingsRepository interface {
	List(ctx context.Context) ([]PlatformSetting, error)
	Get(ctx context.Context, key string) (*PlatformSetting, error)
	Upsert(ctx context.Context, s *PlatformSetting) error
}
