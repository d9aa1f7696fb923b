package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

// --- Mock implementations ---

type mockBusinessRepo struct {
	createFn      func(ctx context.Context, b *domain.Business) error
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	getBySlugFn   func(ctx context.Context, slug string) (*domain.Business, error)
	listFn        func(ctx context.Context) ([]domain.Business, error)
	updateHoursFn func(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error)
}

func (m *mockBusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	if m.createFn != nil {
		return m.createFn(ctx, b)
	}
	return nil
}

func (m *mockBusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrBusinessNotFound
}

func (m *mockBusinessRepo) GetBySlug(ctx context.Context, slug string) (*domain.Business, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, domain.ErrBusinessNotFound
}

func (m *mockBusinessRepo) List(ctx context.Context) ([]domain.Business, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockBusinessRepo) UpdateHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error) {
	if m.updateHoursFn != nil {
		return m.updateHoursFn(ctx, id, openMinute, closeMinute)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockStaffRepo struct {
	createFn         func(ctx context.Context, s *domain.Staff) error
	getByIDFn        func(ctx context.Context, id uuid.UUID) (*domain.Staff, error)
	getByEmailFn     func(ctx context.Context, email string) (*domain.Staff, error)
	listByBusinessFn func(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error)
	deactivateFn     func(ctx context.Context, businessID, id uuid.UUID) error
}

func (m *mockStaffRepo) Create(ctx context.Context, s *domain.Staff) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}

func (m *mockStaffRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrStaffNotFound
}

func (m *mockStaffRepo) GetByEmail(ctx context.Context, email string) (*domain.Staff, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, domain.ErrStaffNotFound
}

func (m *mockStaffRepo) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error) {
	if m.listByBusinessFn != nil {
		return m.listByBusinessFn(ctx, businessID)
	}
	return nil, nil
}

func (m *mockStaffRepo) Deactivate(ctx context.Context, businessID, id uuid.UUID) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, businessID, id)
	}
	return nil
}

type mockCustomerRepo struct {
	upsertFn  func(ctx context.Context, c *domain.Customer) error
	getByIDFn func(ctx context.Context, businessID, id uuid.UUID) (*domain.Customer, error)
	searchFn  func(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]domain.Customer, error)
}

func (m *mockCustomerRepo) Upsert(ctx context.Context, c *domain.Customer) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, c)
	}
	return nil
}

func (m *mockCustomerRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Customer, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, businessID, id)
	}
	return &domain.Customer{ID: id, BusinessID: businessID}, nil
}

func (m *mockCustomerRepo) Search(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]domain.Customer, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, businessID, query, limit)
	}
	return nil, nil
}

type mockOfferingRepo struct {
	createFn  func(ctx context.Context, o *domain.Offering) error
	getByIDFn func(ctx context.Context, businessID, id uuid.UUID) (*domain.Offering, error)
	listFn    func(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error)
	archiveFn func(ctx context.Context, businessID, id uuid.UUID) error
}

func (m *mockOfferingRepo) Create(ctx context.Context, o *domain.Offering) error {
	if m.createFn != nil {
		return m.createFn(ctx, o)
	}
	return nil
}

func (m *mockOfferingRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Offering, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, businessID, id)
	}
	return nil, domain.ErrOfferingNotFound
}

func (m *mockOfferingRepo) List(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error) {
	if m.listFn != nil {
		return m.listFn(ctx, businessID, includeArchived)
	}
	return nil, nil
}

func (m *mockOfferingRepo) Archive(ctx context.Context, businessID, id uuid.UUID) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, businessID, id)
	}
	return nil
}

type mockBookingRepo struct {
	createCheckedFn     func(ctx context.Context, b *domain.Booking) error
	rescheduleCheckedFn func(ctx context.Context, b *domain.Booking) error
	getByIDFn           func(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	listFn              func(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	updateStatusFn      func(ctx context.Context, businessID, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error)
}

func (m *mockBookingRepo) CreateChecked(ctx context.Context, b *domain.Booking) error {
	if m.createCheckedFn != nil {
		return m.createCheckedFn(ctx, b)
	}
	return nil
}

func (m *mockBookingRepo) RescheduleChecked(ctx context.Context, b *domain.Booking) error {
	if m.rescheduleCheckedFn != nil {
		return m.rescheduleCheckedFn(ctx, b)
	}
	return nil
}

func (m *mockBookingRepo) GetByID(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, businessID, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *mockBookingRepo) List(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	if m.listFn != nil {
		return m.listFn(ctx, businessID, from, to)
	}
	return nil, nil
}

func (m *mockBookingRepo) UpdateStatus(ctx context.Context, businessID, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, businessID, id, from, to)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockPackRepo struct {
	createPackFn         func(ctx context.Context, p *domain.Pack) error
	getPackFn            func(ctx context.Context, id uuid.UUID) (*domain.Pack, error)
	listPacksFn          func(ctx context.Context) ([]domain.Pack, error)
	findPackByVerticalFn func(ctx context.Context, vertical string) (*domain.Pack, error)
	getVersionFn         func(ctx context.Context, id uuid.UUID) (*domain.PackVersion, error)
	listVersionsFn       func(ctx context.Context, packID uuid.UUID) ([]domain.PackVersion, error)
	createVersionFn      func(ctx context.Context, v *domain.PackVersion, entry domain.AuditEntry) error
	saveVersionFn        func(ctx context.Context, v *domain.PackVersion, prevUpdatedAt time.Time, entry domain.AuditEntry) error
	listAutoAdvancingFn  func(ctx context.Context) ([]domain.PackVersion, error)
	getPinFn             func(ctx context.Context, businessID, packID uuid.UUID) (*domain.PackPin, error)
	listPinsFn           func(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error)
	upsertPinFn          func(ctx context.Context, pin *domain.PackPin, entry domain.AuditEntry) error
	deletePinFn          func(ctx context.Context, businessID, packID uuid.UUID, entry domain.AuditEntry) error
	loadSnapshotFn       func(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error)
	historyFn            func(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error)
}

func (m *mockPackRepo) CreatePack(ctx context.Context, p *domain.Pack) error {
	if m.createPackFn != nil {
		return m.createPackFn(ctx, p)
	}
	return nil
}

func (m *mockPackRepo) GetPack(ctx context.Context, id uuid.UUID) (*domain.Pack, error) {
	if m.getPackFn != nil {
		return m.getPackFn(ctx, id)
	}
	return nil, domain.ErrPackNotFound
}

func (m *mockPackRepo) ListPacks(ctx context.Context) ([]domain.Pack, error) {
	if m.listPacksFn != nil {
		return m.listPacksFn(ctx)
	}
	return nil, nil
}

func (m *mockPackRepo) FindPackByVertical(ctx context.Context, vertical string) (*domain.Pack, error) {
	if m.findPackByVerticalFn != nil {
		return m.findPackByVerticalFn(ctx, vertical)
	}
	return nil, domain.ErrPackNotFound
}

func (m *mockPackRepo) GetVersion(ctx context.Context, id uuid.UUID) (*domain.PackVersion, error) {
	if m.getVersionFn != nil {
		return m.getVersionFn(ctx, id)
	}
	return nil, domain.ErrVersionNotFound
}

func (m *mockPackRepo) ListVersions(ctx context.Context, packID uuid.UUID) ([]domain.PackVersion, error) {
	if m.listVersionsFn != nil {
		return m.listVersionsFn(ctx, packID)
	}
	return nil, nil
}

func (m *mockPackRepo) CreateVersion(ctx context.Context, v *domain.PackVersion, entry domain.AuditEntry) error {
	if m.createVersionFn != nil {
		return m.createVersionFn(ctx, v, entry)
	}
	return nil
}

func (m *mockPackRepo) SaveVersion(ctx context.Context, v *domain.PackVersion, prevUpdatedAt time.Time, entry domain.AuditEntry) error {
	if m.saveVersionFn != nil {
		return m.saveVersionFn(ctx, v, prevUpdatedAt, entry)
	}
	return nil
}

func (m *mockPackRepo) ListAutoAdvancing(ctx context.Context) ([]domain.PackVersion, error) {
	if m.listAutoAdvancingFn != nil {
		return m.listAutoAdvancingFn(ctx)
	}
	return nil, nil
}

func (m *mockPackRepo) GetPin(ctx context.Context, businessID, packID uuid.UUID) (*domain.PackPin, error) {
	if m.getPinFn != nil {
		return m.getPinFn(ctx, businessID, packID)
	}
	return nil, domain.ErrPinNotFound
}

func (m *mockPackRepo) ListPins(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error) {
	if m.listPinsFn != nil {
		return m.listPinsFn(ctx, businessID)
	}
	return nil, nil
}

func (m *mockPackRepo) UpsertPin(ctx context.Context, pin *domain.PackPin, entry domain.AuditEntry) error {
	if m.upsertPinFn != nil {
		return m.upsertPinFn(ctx, pin, entry)
	}
	return nil
}

func (m *mockPackRepo) DeletePin(ctx context.Context, businessID, packID uuid.UUID, entry domain.AuditEntry) error {
	if m.deletePinFn != nil {
		return m.deletePinFn(ctx, businessID, packID, entry)
	}
	return nil
}

func (m *mockPackRepo) LoadSnapshot(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error) {
	if m.loadSnapshotFn != nil {
		return m.loadSnapshotFn(ctx, packID)
	}
	return nil, domain.ErrPackNotFound
}

func (m *mockPackRepo) History(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, packID, limit)
	}
	return nil, nil
}

type mockSupportRepo struct {
	createFn       func(ctx context.Context, c *domain.SupportCase) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.SupportCase, error)
	listFn         func(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error)
	updateStatusFn func(ctx context.Context, id uuid.UUID, from, to domain.CaseStatus) (*domain.SupportCase, error)
	appendNoteFn   func(ctx context.Context, id uuid.UUID, note domain.CaseNote) (*domain.SupportCase, error)
}

func (m *mockSupportRepo) Create(ctx context.Context, c *domain.SupportCase) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockSupportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportCase, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrSupportCaseNotFound
}

func (m *mockSupportRepo) List(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockSupportRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.CaseStatus) (*domain.SupportCase, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, from, to)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSupportRepo) AppendNote(ctx context.Context, id uuid.UUID, note domain.CaseNote) (*domain.SupportCase, error) {
	if m.appendNoteFn != nil {
		return m.appendNoteFn(ctx, id, note)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockSettingsRepo struct {
	listFn   func(ctx context.Context) ([]domain.PlatformSetting, error)
	getFn    func(ctx context.Context, key string) (*domain.PlatformSetting, error)
	upsertFn func(ctx context.Context, s *domain.PlatformSetting) error
}

func (m *mockSettingsRepo) List(ctx context.Context) ([]domain.PlatformSetting, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockSettingsRepo) Get(ctx context.Context, key string) (*domain.PlatformSetting, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, domain.ErrSettingNotFound
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, s *domain.PlatformSetting) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, s)
	}
	return nil
}

type mockSnapshotSource struct {
	getSnapshotFn func(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error)
}

func (m *mockSnapshotSource) GetSnapshot(ctx context.Context, packID uuid.UUID) (*domain.PackSnapshot, error) {
	if m.getSnapshotFn != nil {
		return m.getSnapshotFn(ctx, packID)
	}
	return nil, domain.ErrPackNotFound
}

type mockInvalidator struct {
	mu                sync.Mutex
	invalidated       []uuid.UUID
	invalidatePackErr error
}

func (m *mockInvalidator) InvalidatePack(_ context.Context, packID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, packID)
	return m.invalidatePackErr
}

func (m *mockInvalidator) calls() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.invalidated...)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []domain.AuditAction
	advanced    int
	resolved    []domain.ResolutionSource
	attempts    []string
}

func (o *recordingObserver) RolloutTransition(action domain.AuditAction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, action)
}

func (o *recordingObserver) AutoAdvanced() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.advanced++
}

func (o *recordingObserver) Resolved(source domain.ResolutionSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved = append(o.resolved, source)
}

func (o *recordingObserver) BookingAttempt(source domain.BookingSource, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, string(source)+":"+result)
}

type mockGuard struct {
	isDebouncedFn func(ctx context.Context, businessID uuid.UUID, fingerprint string) (bool, error)
	releaseFn     func(ctx context.Context, businessID uuid.UUID, fingerprint string) error
}

func (m *mockGuard) Release(ctx context.Context, businessID uuid.UUID, fingerprint string) error {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, businessID, fingerprint)
	}
	return nil
}

func (m *mockGuard) IsDebounced(ctx context.Context, businessID uuid.UUID, fingerprint string) (bool, error) {
	if m.isDebouncedFn != nil {
		return m.isDebouncedFn(ctx, businessID, fingerprint)
	}
	return false, nil
}

// --- Test harness ---

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testDeps struct {
	businesses  *mockBusinessRepo
	staff       *mockStaffRepo
	customers   *mockCustomerRepo
	offerings   *mockOfferingRepo
	bookings    *mockBookingRepo
	packs       *mockPackRepo
	support     *mockSupportRepo
	settings    *mockSettingsRepo
	snapshots   *mockSnapshotSource
	invalidator *mockInvalidator
	guard       *mockGuard
	observer    *recordingObserver
	clock       *clockwork.FakeClock
}

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		businesses:  &mockBusinessRepo{},
		staff:       &mockStaffRepo{},
		customers:   &mockCustomerRepo{},
		offerings:   &mockOfferingRepo{},
		bookings:    &mockBookingRepo{},
		packs:       &mockPackRepo{},
		support:     &mockSupportRepo{},
		settings:    &mockSettingsRepo{},
		snapshots:   &mockSnapshotSource{},
		invalidator: &mockInvalidator{},
		guard:       &mockGuard{},
		observer:    &recordingObserver{},
		clock:       clockwork.NewFakeClockAt(testNow),
	}
	svc := NewService(Deps{
		Businesses:  d.businesses,
		Staff:       d.staff,
		Customers:   d.customers,
		Offerings:   d.offerings,
		Bookings:    d.bookings,
		Packs:       d.packs,
		Support:     d.support,
		Settings:    d.settings,
		Snapshots:   d.snapshots,
		Invalidator: d.invalidator,
		Sealer:      reversingSealer{},
		Guard:       d.guard,
		Observer:    d.observer,
		Clock:       d.clock,
	})
	return svc, d
}

// reversingSealer makes sealed values distinguishable from plain ones in assertions.
type reversingSealer struct{}

func (reversingSealer) Seal(key, plaintext string) (string, error) {
	return "sealed:" + key + ":" + reverse(plaintext), nil
}

func (reversingSealer) Open(key, ciphertext string) (string, error) {
	prefix := "sealed:" + key + ":"
	if len(ciphertext) < len(prefix) || ciphertext[:len(prefix)] != prefix {
		return "", fmt.Errorf("not sealed for %s", key)
	}
	return reverse(ciphertext[len(prefix):]), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func testBusiness() *domain.Business {
	return &domain.Business{
		ID:          uuid.New(),
		Slug:        "smile-dental",
		Name:        "Smile Dental",
		Vertical:    "clinic",
		Timezone:    "Europe/Berlin",
		OpenMinute:  9 * 60,
		CloseMinute: 17 * 60,
	}
}

// packStore is a tiny in-memory pack repository for lifecycle tests.
type packStore struct {
	mu       sync.Mutex
	versions map[uuid.UUID]domain.PackVersion
	audit    []domain.AuditEntry
}

func newPackStore(versions ...domain.PackVersion) *packStore {
	ps := &packStore{versions: make(map[uuid.UUID]domain.PackVersion)}
	for _, v := range versions {
		ps.versions[v.ID] = v
	}
	return ps
}

func (ps *packStore) wire(m *mockPackRepo) {
	m.getVersionFn = func(_ context.Context, id uuid.UUID) (*domain.PackVersion, error) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		v, ok := ps.versions[id]
		if !ok {
			return nil, domain.ErrVersionNotFound
		}
		return &v, nil
	}
	m.saveVersionFn = func(_ context.Context, v *domain.PackVersion, prev time.Time, entry domain.AuditEntry) error {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		cur, ok := ps.versions[v.ID]
		if !ok {
			return domain.ErrVersionNotFound
		}
		if !cur.UpdatedAt.Equal(prev) {
			return domain.ErrVersionConflict
		}
		ps.versions[v.ID] = *v
		ps.audit = append(ps.audit, entry)
		return nil
	}
	m.listVersionsFn = func(_ context.Context, packID uuid.UUID) ([]domain.PackVersion, error) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		var out []domain.PackVersion
		for _, v := range ps.versions {
			if v.PackID == packID {
				out = append(out, v)
			}
		}
		slices.SortFunc(out, func(a, b domain.PackVersion) int { return b.Version - a.Version })
		return out, nil
	}
	m.listAutoAdvancingFn = func(context.Context) ([]domain.PackVersion, error) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		var out []domain.PackVersion
		for _, v := range ps.versions {
			if v.Status == domain.StatusRollingOut && v.AutoAdvanceEvery > 0 {
				out = append(out, v)
			}
		}
		return out, nil
	}
}

func (ps *packStore) get(id uuid.UUID) domain.PackVersion {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.versions[id]
}

func (ps *packStore) entries() []domain.AuditEntry {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]domain.AuditEntry(nil), ps.audit...)
}
