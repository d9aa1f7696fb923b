package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

const settingColumns = `key, value, secret, updated_by, updated_at`

func scanSetting(row pgx.Row) (*domain.PlatformSetting, error) {
	var s domain.PlatformSetting
	if err := row.Scan(&s.Key, &s.Value, &s.Secret, &s.UpdatedBy, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepo) List(ctx context.Context) ([]domain.PlatformSetting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM platform_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []domain.PlatformSetting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (*domain.PlatformSetting, error) {
	s, err := scanSetting(r.pool.QueryRow(ctx, `SELECT `+settingColumns+` FROM platform_settings WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *domain.PlatformSetting) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO platform_settings (key, value, secret, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			secret     = EXCLUDED.secret,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		s.Key, s.Value, s.Secret, s.UpdatedBy).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}
