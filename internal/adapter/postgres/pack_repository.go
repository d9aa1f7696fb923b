package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PackRepo struct {
	pool *pgxpool.Pool
}

func NewPackRepo(pool *pgxpool.Pool) *PackRepo {
	return &PackRepo{pool: pool}
}

const (
	packColumns    = `id, slug, name, vertical, description, created_at, updated_at`
	versionColumns = `id, pack_id, version, status, content, rollout_percent, rollout_stages, auto_advance_seconds,
		stage_updated_at, notes, created_by, published_at, rollout_started_at, completed_at, rolled_back_at,
		created_at, updated_at`
	pinColumns   = `business_id, pack_id, version_id, pinned_by, reason, created_at`
	auditColumns = `id, pack_id, version_id, business_id, action, from_status, to_status, percent, actor, reason, created_at`
)

func scanPack(row pgx.Row) (*domain.Pack, error) {
	var p domain.Pack
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Vertical, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanVersion(row pgx.Row) (*domain.PackVersion, error) {
	var (
		v          domain.PackVersion
		advanceSec int64
	)
	err := row.Scan(&v.ID, &v.PackID, &v.Version, &v.Status, &v.Content, &v.RolloutPercent, &v.RolloutStages, &advanceSec,
		&v.StageUpdatedAt, &v.Notes, &v.CreatedBy, &v.PublishedAt, &v.RolloutStartedAt, &v.CompletedAt, &v.RolledBackAt,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.AutoAdvanceEvery = domain.Duration(time.Duration(advanceSec) * time.Second)
	return &v, nil
}

func scanPin(row pgx.Row) (*domain.PackPin, error) {
	var p domain.PackPin
	if err := row.Scan(&p.BusinessID, &p.PackID, &p.VersionID, &p.PinnedBy, &p.Reason, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAudit(row pgx.Row) (*domain.AuditEntry, error) {
	var e domain.AuditEntry
	err := row.Scan(&e.ID, &e.PackID, &e.VersionID, &e.BusinessID, &e.Action, &e.FromStatus, &e.ToStatus,
		&e.Percent, &e.Actor, &e.Reason, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectVersions(rows pgx.Rows) ([]domain.PackVersion, error) {
	defer rows.Close()

	var out []domain.PackVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pack version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func insertAudit(ctx context.Context, tx pgx.Tx, e domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO pack_audit (id, pack_id, version_id, business_id, action, from_status, to_status, percent, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.PackID, e.VersionID, e.BusinessID, e.Action, e.FromStatus, e.ToStatus, e.Percent, e.Actor, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (r *PackRepo) CreatePack(ctx context.Context, p *domain.Pack) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO packs (id, slug, name, vertical, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Slug, p.Name, p.Vertical, p.Description).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "packs_slug_key") {
			return domain.ErrPackExists
		}
		return fmt.Errorf("failed to create pack: %w", err)
	}
	return nil
}

func (r *PackRepo) GetPack(ctx context.Context, id uuid.UUID) (*domain.Pack, error) {
	p, err := scanPack(r.pool.QueryRow(ctx, `SELECT `+packColumns+` FROM packs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	return p, nil
}

func (r *PackRepo) ListPacks(ctx context.Context) ([]domain.Pack, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+packColumns+` FROM packs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list packs: %w", err)
	}
	defer rows.Close()

	var out []domain.Pack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pack: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FindPackByVertical returns the earliest created pack for vertical.
func (r *PackRepo) FindPackByVertical(ctx context.Context, vertical string) (*domain.Pack, error) {
	p, err := scanPack(r.pool.QueryRow(ctx,
		`SELECT `+packColumns+` FROM packs WHERE vertical = $1 ORDER BY created_at, id LIMIT 1`, vertical))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pack by vertical: %w", err)
	}
	return p, nil
}

func (r *PackRepo) GetVersion(ctx context.Context, id uuid.UUID) (*domain.PackVersion, error) {
	v, err := scanVersion(r.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM pack_versions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pack version: %w", err)
	}
	return v, nil
}

// ListVersions returns all versions of a pack, highest version first.
func (r *PackRepo) ListVersions(ctx context.Context, packID uuid.UUID) ([]domain.PackVersion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM pack_versions WHERE pack_id = $1 ORDER BY version DESC`, packID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pack versions: %w", err)
	}
	return collectVersions(rows)
}

// CreateVersion numbers v after the pack's highest version and inserts it.
func (r *PackRepo) CreateVersion(ctx context.Context, v *domain.PackVersion, entry domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM packs WHERE id = $1 FOR UPDATE`, v.PackID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrPackNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock pack: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM pack_versions WHERE pack_id = $1`, v.PackID).Scan(&v.Version); err != nil {
		return fmt.Errorf("failed to number pack version: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO pack_versions (id, pack_id, version, status, content, rollout_stages, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING created_at, updated_at`,
		v.ID, v.PackID, v.Version, v.Status, v.Content, stagesOrEmpty(v.RolloutStages), v.Notes, v.CreatedBy, v.CreatedAt,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_pack_versions_one_draft") {
			return domain.ErrDraftExists
		}
		return fmt.Errorf("failed to insert pack version: %w", err)
	}

	entry.Percent = v.RolloutPercent
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PackRepo) SaveVersion(ctx context.Context, v *domain.PackVersion, prevUpdatedAt time.Time, entry domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if entry.Action == domain.AuditRolloutStarted {
		if err := checkRolloutStart(ctx, tx, v); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE pack_versions SET
			status = $3, content = $4, notes = $5, rollout_percent = $6, rollout_stages = $7,
			auto_advance_seconds = $8, stage_updated_at = $9, published_at = $10, rollout_started_at = $11,
			completed_at = $12, rolled_back_at = $13, updated_at = $14
		WHERE id = $1 AND updated_at = $2
		RETURNING updated_at`,
		v.ID, prevUpdatedAt, v.Status, v.Content, v.Notes, v.RolloutPercent, stagesOrEmpty(v.RolloutStages),
		int64(time.Duration(v.AutoAdvanceEvery)/time.Second), v.StageUpdatedAt, v.PublishedAt, v.RolloutStartedAt,
		v.CompletedAt, v.RolledBackAt, v.UpdatedAt,
	).Scan(&v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		if isUniqueViolation(err, "idx_pack_versions_one_active") {
			return domain.ErrRolloutInProgress
		}
		return fmt.Errorf("failed to save pack version: %w", err)
	}

	entry.Percent = v.RolloutPercent
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkRolloutStart serialises rollout starts of one pack on its row. The partial index
// only sees versions that stay active, so a start that completes at once is checked here.
func checkRolloutStart(ctx context.Context, tx pgx.Tx, v *domain.PackVersion) error {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM packs WHERE id = $1 FOR UPDATE`, v.PackID); err != nil {
		return fmt.Errorf("failed to lock pack: %w", err)
	}
	var active bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pack_versions
			WHERE pack_id = $1 AND id <> $2 AND status IN ('rolling_out', 'paused')
		)`, v.PackID, v.ID).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to check active rollout: %w", err)
	}
	if active {
		return domain.ErrRolloutInProgress
	}
	return nil
}

func (r *PackRepo) ListAutoAdvancing(ctx context.Context) ([]domain.PackVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM pack_versions
		WHERE status = 'rolling_out' AND auto_advance_seconds > 0
		ORDER BY stage_updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-advancing versions: %w", err)
	}
	return collectVersions(rows)
}

func (r *PackRepo) GetPin(ctx context.Context, businessID, packID uuid.UUID) (*domain.PackPin, error) {
	p, err := scanPin(r.pool.QueryRow(ctx,
		`SELECT `+pinColumns+` FROM pack_pins WHERE business_id = $1 AND pack_id = $2`, businessID, packID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pin: %w", err)
	}
	return p, nil
}

func (r *PackRepo) ListPins(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pinColumns+` FROM pack_pins WHERE business_id = $1 ORDER BY created_at`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	defer rows.Close()

	var out []domain.PackPin
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpsertPin replaces any existing pin of the business for the same pack.
func (r *PackRepo) UpsertPin(ctx context.Context, pin *domain.PackPin, entry domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO pack_pins (business_id, pack_id, version_id, pinned_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, pack_id) DO UPDATE SET
			version_id = EXCLUDED.version_id,
			pinned_by  = EXCLUDED.pinned_by,
			reason     = EXCLUDED.reason,
			created_at = EXCLUDED.created_at
		RETURNING created_at`,
		pin.BusinessID, pin.PackID, pin.VersionID, pin.PinnedBy, pin.Reason, pin.CreatedAt).Scan(&pin.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBusinessNotFound
		}
		return fmt.Errorf("failed to upsert pin: %w", err)
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PackRepo) DeletePin(ctx context.Context, businessID, packID uuid.UUID, entry domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var versionID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM pack_pins WHERE business_id = $1 AND pack_id = $2 RETURNING version_id`,
		businessID, packID).Scan(&versionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrPinNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}

	entry.VersionID = &versionID
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot reads the pack with every version a tenant could be served: active and
// completed versions plus whatever pins point at.
func (r *PackRepo) LoadSnapshot(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error) {
	pack, err := r.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM pack_versions
		WHERE pack_id = $1 AND (
			status IN ('rolling_out', 'paused', 'completed')
			OR id IN (SELECT version_id FROM pack_pins WHERE pack_id = $1)
		)
		ORDER BY version DESC`, packID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot versions: %w", err)
	}
	versions, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}

	pinRows, err := r.pool.Query(ctx, `SELECT business_id, version_id FROM pack_pins WHERE pack_id = $1`, packID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot pins: %w", err)
	}
	defer pinRows.Close()

	pins := make(map[uuid.UUID]uuid.UUID)
	for pinRows.Next() {
		var businessID, versionID uuid.UUID
		if err := pinRows.Scan(&businessID, &versionID); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pins[businessID] = versionID
	}
	if err := pinRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pins: %w", err)
	}

	return &domain.PackSnapshot{Pack: *pack, Versions: versions, Pins: pins}, nil
}

// History returns audit entries for the pack, newest first.
func (r *PackRepo) History(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auditColumns+` FROM pack_audit
		WHERE pack_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, packID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read pack history: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func stagesOrEmpty(stages []int) []int {
	if stages == nil {
		return []int{}
	}
	return stages
}
