package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

// ListSettings returns every setting with secret values masked.
func (s *Service) ListSettings(ctx context.Context) ([]domain.PlatformSetting, error) {
	settings, err := s.settings.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range settings {
		settings[i] = settings[i].Masked()
	}
	return settings, nil
}

// SettingValue returns the plain value of a setting, opening it if it is secret.
func (s *Service) SettingValue(ctx context.Context, key string) (string, error) {
	st, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !st.Secret {
		return st.Value, nil
	}
	plain, err := s.sealer.Open(key, st.Value)
	if err != nil {
		return "", fmt.Errorf("failed to open secret setting %s: %w", key, err)
	}
	return plain, nil
}

// PutSetting stores a setting, sealing the value when it is secret. The result is masked.
func (s *Service) PutSetting(ctx context.Context, key, value string, secret bool, actor uuid.UUID) (*domain.PlatformSetting, error) {
	if err := domain.ValidateSettingKey(key); err != nil {
		return nil, err
	}

	stored := value
	if secret {
		sealed, err := s.sealer.Seal(key, value)
		if err != nil {
			return nil, fmt.Errorf("failed to seal setting %s: %w", key, err)
		}
		stored = sealed
	}

	st := &domain.PlatformSetting{Key: key, Value: stored, Secret: secret, UpdatedBy: &actor}
	if err := s.settings.Upsert(ctx, st); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Platform setting updated", "key", key, "secret", secret, "by", actor)
	masked := st.Masked()
	if !secret {
		masked.Value = value
	}
	return &masked, nil
}
