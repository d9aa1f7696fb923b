package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/config"
)

var errNotMocked = errors.New("not implemented")

// --- Mock implementation ---

type mockAppService struct {
	portalFn         func(ctx context.Context, slug string) (*app.PortalView, error)
	availabilityFn   func(ctx context.Context, slug string, offeringID uuid.UUID, day time.Time) ([]time.Time, error)
	bookFromPortalFn func(ctx context.Context, slug string, in app.PortalBookingInput) (*domain.Booking, error)
	setupFn          func(ctx context.Context, in app.SetupInput) (*app.SetupResult, error)
	authenticateFn   func(ctx context.Context, email, password string) (*domain.Staff, error)
	currentStaffFn   func(ctx context.Context, id uuid.UUID) (*domain.Staff, error)

	getBusinessFn     func(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	updateHoursFn     func(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error)
	todayBoundsFn     func(ctx context.Context, businessID uuid.UUID) (time.Time, time.Time, error)
	listBookingsFn    func(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	createBookingFn   func(ctx context.Context, businessID uuid.UUID, in app.CreateBookingInput) (*domain.Booking, error)
	cancelBookingFn   func(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	completeBookingFn func(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	markNoShowFn      func(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	rescheduleFn      func(ctx context.Context, businessID, id uuid.UUID, startsAt time.Time, staffID *uuid.UUID) (*domain.Booking, error)
	searchCustomersFn func(ctx context.Context, businessID uuid.UUID, query string) ([]domain.Customer, error)
	saveCustomerFn    func(ctx context.Context, businessID uuid.UUID, in app.CustomerInput) (*domain.Customer, error)
	listStaffFn       func(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error)
	createStaffFn     func(ctx context.Context, businessID uuid.UUID, in app.CreateStaffInput) (*domain.Staff, error)
	deactivateStaffFn func(ctx context.Context, businessID, id, actor uuid.UUID) error
	listOfferingsFn   func(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error)
	createOfferingFn  func(ctx context.Context, businessID uuid.UUID, in app.OfferingInput) (*domain.Offering, error)
	archiveOfferingFn func(ctx context.Context, businessID, id uuid.UUID) error
	resolveForBizFn   func(ctx context.Context, businessID uuid.UUID) (*domain.Resolution, error)
	openCaseFn        func(ctx context.Context, businessID, openedBy uuid.UUID, in app.OpenCaseInput) (*domain.SupportCase, error)
	listCasesFn       func(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error)

	listBusinessesFn func(ctx context.Context) ([]domain.Business, error)
	listPacksFn      func(ctx context.Context) ([]domain.Pack, error)
	createPackFn     func(ctx context.Context, in app.CreatePackInput) (*domain.Pack, error)
	getPackFn        func(ctx context.Context, packID uuid.UUID) (*app.PackDetail, error)
	historyFn        func(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error)
	createDraftFn    func(ctx context.Context, packID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error)
	updateDraftFn    func(ctx context.Context, versionID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error)
	publishFn        func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	startRolloutFn   func(ctx context.Context, versionID uuid.UUID, stages []int, every time.Duration, actor *uuid.UUID) (*domain.PackVersion, error)
	advanceFn        func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	setPercentFn     func(ctx context.Context, versionID uuid.UUID, percent int, actor *uuid.UUID) (*domain.PackVersion, error)
	pauseFn          func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error)
	resumeFn         func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	completeFn       func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	rollbackFn       func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error)
	listPinsFn       func(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error)
	pinFn            func(ctx context.Context, businessID, versionID uuid.UUID, reason string, actor *uuid.UUID) (*domain.PackPin, error)
	unpinFn          func(ctx context.Context, businessID, packID uuid.UUID, actor *uuid.UUID) error
	resolveFn        func(ctx context.Context, businessID, packID uuid.UUID) (*domain.Resolution, error)
	caseStatusFn     func(ctx context.Context, id uuid.UUID, to domain.CaseStatus) (*domain.SupportCase, error)
	caseNoteFn       func(ctx context.Context, id, author uuid.UUID, body string) (*domain.SupportCase, error)
	listSettingsFn   func(ctx context.Context) ([]domain.PlatformSetting, error)
	putSettingFn     func(ctx context.Context, key, value string, secret bool, actor uuid.UUID) (*domain.PlatformSetting, error)
}

func (m *mockAppService) Portal(ctx context.Context, slug string) (*app.PortalView, error) {
	if m.portalFn != nil {
		return m.portalFn(ctx, slug)
	}
	return nil, domain.ErrBusinessNotFound
}

func (m *mockAppService) Availability(ctx context.Context, slug string, offeringID uuid.UUID, day time.Time) ([]time.Time, error) {
	if m.availabilityFn != nil {
		return m.availabilityFn(ctx, slug, offeringID, day)
	}
	return nil, errNotMocked
}

func (m *mockAppService) BookFromPortal(ctx context.Context, slug string, in app.PortalBookingInput) (*domain.Booking, error) {
	if m.bookFromPortalFn != nil {
		return m.bookFromPortalFn(ctx, slug, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Setup(ctx context.Context, in app.SetupInput) (*app.SetupResult, error) {
	if m.setupFn != nil {
		return m.setupFn(ctx, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Authenticate(ctx context.Context, email, password string) (*domain.Staff, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return nil, domain.ErrInvalidCredentials
}

func (m *mockAppService) CurrentStaff(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	if m.currentStaffFn != nil {
		return m.currentStaffFn(ctx, id)
	}
	return nil, domain.ErrStaffNotFound
}

func (m *mockAppService) GetBusiness(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	if m.getBusinessFn != nil {
		return m.getBusinessFn(ctx, id)
	}
	return nil, domain.ErrBusinessNotFound
}

func (m *mockAppService) UpdateBusinessHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error) {
	if m.updateHoursFn != nil {
		return m.updateHoursFn(ctx, id, openMinute, closeMinute)
	}
	return nil, errNotMocked
}

func (m *mockAppService) TodayBounds(ctx context.Context, businessID uuid.UUID) (time.Time, time.Time, error) {
	if m.todayBoundsFn != nil {
		return m.todayBoundsFn(ctx, businessID)
	}
	return time.Time{}, time.Time{}, errNotMocked
}

func (m *mockAppService) ListBookings(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	if m.listBookingsFn != nil {
		return m.listBookingsFn(ctx, businessID, from, to)
	}
	return nil, nil
}

func (m *mockAppService) CreateBooking(ctx context.Context, businessID uuid.UUID, in app.CreateBookingInput) (*domain.Booking, error) {
	if m.createBookingFn != nil {
		return m.createBookingFn(ctx, businessID, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) CancelBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	if m.cancelBookingFn != nil {
		return m.cancelBookingFn(ctx, businessID, id)
	}
	return nil, errNotMocked
}

func (m *mockAppService) CompleteBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	if m.completeBookingFn != nil {
		return m.completeBookingFn(ctx, businessID, id)
	}
	return nil, errNotMocked
}

func (m *mockAppService) MarkNoShow(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error) {
	if m.markNoShowFn != nil {
		return m.markNoShowFn(ctx, businessID, id)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Reschedule(ctx context.Context, businessID, id uuid.UUID, startsAt time.Time, staffID *uuid.UUID) (*domain.Booking, error) {
	if m.rescheduleFn != nil {
		return m.rescheduleFn(ctx, businessID, id, startsAt, staffID)
	}
	return nil, errNotMocked
}

func (m *mockAppService) SearchCustomers(ctx context.Context, businessID uuid.UUID, query string) ([]domain.Customer, error) {
	if m.searchCustomersFn != nil {
		return m.searchCustomersFn(ctx, businessID, query)
	}
	return nil, nil
}

func (m *mockAppService) SaveCustomer(ctx context.Context, businessID uuid.UUID, in app.CustomerInput) (*domain.Customer, error) {
	if m.saveCustomerFn != nil {
		return m.saveCustomerFn(ctx, businessID, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ListStaff(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error) {
	if m.listStaffFn != nil {
		return m.listStaffFn(ctx, businessID)
	}
	return nil, nil
}

func (m *mockAppService) CreateStaff(ctx context.Context, businessID uuid.UUID, in app.CreateStaffInput) (*domain.Staff, error) {
	if m.createStaffFn != nil {
		return m.createStaffFn(ctx, businessID, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) DeactivateStaff(ctx context.Context, businessID, id, actor uuid.UUID) error {
	if m.deactivateStaffFn != nil {
		return m.deactivateStaffFn(ctx, businessID, id, actor)
	}
	return errNotMocked
}

func (m *mockAppService) ListOfferings(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error) {
	if m.listOfferingsFn != nil {
		return m.listOfferingsFn(ctx, businessID, includeArchived)
	}
	return nil, nil
}

func (m *mockAppService) CreateOffering(ctx context.Context, businessID uuid.UUID, in app.OfferingInput) (*domain.Offering, error) {
	if m.createOfferingFn != nil {
		return m.createOfferingFn(ctx, businessID, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ArchiveOffering(ctx context.Context, businessID, id uuid.UUID) error {
	if m.archiveOfferingFn != nil {
		return m.archiveOfferingFn(ctx, businessID, id)
	}
	return errNotMocked
}

func (m *mockAppService) ResolveForBusiness(ctx context.Context, businessID uuid.UUID) (*domain.Resolution, error) {
	if m.resolveForBizFn != nil {
		return m.resolveForBizFn(ctx, businessID)
	}
	return nil, domain.ErrNoPackVersion
}

func (m *mockAppService) OpenCase(ctx context.Context, businessID, openedBy uuid.UUID, in app.OpenCaseInput) (*domain.SupportCase, error) {
	if m.openCaseFn != nil {
		return m.openCaseFn(ctx, businessID, openedBy, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ListCases(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error) {
	if m.listCasesFn != nil {
		return m.listCasesFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockAppService) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	if m.listBusinessesFn != nil {
		return m.listBusinessesFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) ListPacks(ctx context.Context) ([]domain.Pack, error) {
	if m.listPacksFn != nil {
		return m.listPacksFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) CreatePack(ctx context.Context, in app.CreatePackInput) (*domain.Pack, error) {
	if m.createPackFn != nil {
		return m.createPackFn(ctx, in)
	}
	return nil, errNotMocked
}

func (m *mockAppService) GetPack(ctx context.Context, packID uuid.UUID) (*app.PackDetail, error) {
	if m.getPackFn != nil {
		return m.getPackFn(ctx, packID)
	}
	return nil, domain.ErrPackNotFound
}

func (m *mockAppService) RolloutHistory(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, packID, limit)
	}
	return nil, nil
}

func (m *mockAppService) CreateDraft(ctx context.Context, packID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.createDraftFn != nil {
		return m.createDraftFn(ctx, packID, content, notes, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) UpdateDraft(ctx context.Context, versionID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.updateDraftFn != nil {
		return m.updateDraftFn(ctx, versionID, content, notes, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Publish(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, versionID, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) StartRollout(ctx context.Context, versionID uuid.UUID, stages []int, every time.Duration, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.startRolloutFn != nil {
		return m.startRolloutFn(ctx, versionID, stages, every, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) AdvanceRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.advanceFn != nil {
		return m.advanceFn(ctx, versionID, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) SetRolloutPercent(ctx context.Context, versionID uuid.UUID, percent int, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.setPercentFn != nil {
		return m.setPercentFn(ctx, versionID, percent, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) PauseRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error) {
	if m.pauseFn != nil {
		return m.pauseFn(ctx, versionID, actor, reason)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ResumeRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.resumeFn != nil {
		return m.resumeFn(ctx, versionID, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) CompleteRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, versionID, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Rollback(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error) {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx, versionID, actor, reason)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ListPins(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error) {
	if m.listPinsFn != nil {
		return m.listPinsFn(ctx, businessID)
	}
	return nil, nil
}

func (m *mockAppService) Pin(ctx context.Context, businessID, versionID uuid.UUID, reason string, actor *uuid.UUID) (*domain.PackPin, error) {
	if m.pinFn != nil {
		return m.pinFn(ctx, businessID, versionID, reason, actor)
	}
	return nil, errNotMocked
}

func (m *mockAppService) Unpin(ctx context.Context, businessID, packID uuid.UUID, actor *uuid.UUID) error {
	if m.unpinFn != nil {
		return m.unpinFn(ctx, businessID, packID, actor)
	}
	return errNotMocked
}

func (m *mockAppService) Resolve(ctx context.Context, businessID, packID uuid.UUID) (*domain.Resolution, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, businessID, packID)
	}
	return nil, domain.ErrNoPackVersion
}

func (m *mockAppService) UpdateCaseStatus(ctx context.Context, id uuid.UUID, to domain.CaseStatus) (*domain.SupportCase, error) {
	if m.caseStatusFn != nil {
		return m.caseStatusFn(ctx, id, to)
	}
	return nil, errNotMocked
}

func (m *mockAppService) AddCaseNote(ctx context.Context, id, author uuid.UUID, body string) (*domain.SupportCase, error) {
	if m.caseNoteFn != nil {
		return m.caseNoteFn(ctx, id, author, body)
	}
	return nil, errNotMocked
}

func (m *mockAppService) ListSettings(ctx context.Context) ([]domain.PlatformSetting, error) {
	if m.listSettingsFn != nil {
		return m.listSettingsFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) PutSetting(ctx context.Context, key, value string, secret bool, actor uuid.UUID) (*domain.PlatformSetting, error) {
	if m.putSettingFn != nil {
		return m.putSettingFn(ctx, key, value, secret, actor)
	}
	return nil, errNotMocked
}

// --- Test helpers ---

const testCSRFToken = "test-csrf-token"

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "development",
		Port:            "0",
		SessionSecret:   "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:   time.Hour,
		PortalRateLimit: 1000,
		PortalRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Options)) *Server {
	t.Helper()
	return newTestServerWithConfig(t, testConfig(), app, opts...)
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config, app appService, opts ...func(*Options)) *Server {
	t.Helper()

	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	srv, err := NewServer(cfg, app, o)
	require.NoError(t, err)
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Options) {
	return func(o *Options) {
		o.HealthChecks = checks
	}
}

func withMetricsHandler(h http.Handler) func(*Options) {
	return func(o *Options) {
		o.MetricsHandler = h
	}
}

func ownerStaff() *domain.Staff {
	bizID := uuid.New()
	return &domain.Staff{ID: uuid.New(), BusinessID: &bizID, Email: "owner@smile.test", Name: "Olga Owner", Role: domain.RoleOwner, Active: true}
}

func staffWithRole(role domain.Role) *domain.Staff {
	st := ownerStaff()
	st.Role = role
	return st
}

func superAdmin() *domain.Staff {
	return &domain.Staff{ID: uuid.New(), Email: "ops@booking-os.test", Name: "Platform Ops", Role: domain.RoleSuperAdmin, Active: true}
}

// signIn makes mock resolve st as the session owner and returns its session cookies.
func signIn(t *testing.T, srv *Server, mock *mockAppService, st *domain.Staff) []*http.Cookie {
	t.Helper()

	mock.currentStaffFn = func(_ context.Context, id uuid.UUID) (*domain.Staff, error) {
		if id == st.ID {
			return st, nil
		}
		return nil, domain.ErrStaffNotFound
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := srv.sessionStore.New(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyStaff] = st.ID.String()
	require.NoError(t, session.Save(req, rec))
	return rec.Result().Cookies()
}

// doJSON sends body as JSON with cookies and a matching CSRF cookie/header pair.
func doJSON(t *testing.T, srv *Server, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// newRawRequest builds a request that carries cookies but no CSRF header.
func newRawRequest(method, path string, cookies []*http.Cookie) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req, httptest.NewRecorder()
}
