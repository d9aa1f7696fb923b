package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/metrics"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/config"
)

// portalService backs the public booking page and the setup wizard.
type portalService interface {
	Portal(ctx context.Context, slug string) (*app.PortalView, error)
	Availability(ctx context.Context, slug string, offeringID uuid.UUID, day time.Time) ([]time.Time, error)
	BookFromPortal(ctx context.Context, slug string, in app.PortalBookingInput) (*domain.Booking, error)
	Setup(ctx context.Context, in app.SetupInput) (*app.SetupResult, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Staff, error)
	CurrentStaff(ctx context.Context, id uuid.UUID) (*domain.Staff, error)
}

// staffService backs the dashboard of a single business.
type staffService interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	UpdateBusinessHours(ctx context.Context, id uuid.UUID, openMinute, closeMinute int) (*domain.Business, error)
	TodayBounds(ctx context.Context, businessID uuid.UUID) (time.Time, time.Time, error)

	ListBookings(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, businessID uuid.UUID, in app.CreateBookingInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	MarkNoShow(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)
	Reschedule(ctx context.Context, businessID, id uuid.UUID, startsAt time.Time, staffID *uuid.UUID) (*domain.Booking, error)

	SearchCustomers(ctx context.Context, businessID uuid.UUID, query string) ([]domain.Customer, error)
	SaveCustomer(ctx context.Context, businessID uuid.UUID, in app.CustomerInput) (*domain.Customer, error)
	ListStaff(ctx context.Context, businessID uuid.UUID) ([]domain.Staff, error)
	CreateStaff(ctx context.Context, businessID uuid.UUID, in app.CreateStaffInput) (*domain.Staff, error)
	DeactivateStaff(ctx context.Context, businessID, id, actor uuid.UUID) error
	ListOfferings(ctx context.Context, businessID uuid.UUID, includeArchived bool) ([]domain.Offering, error)
	CreateOffering(ctx context.Context, businessID uuid.UUID, in app.OfferingInput) (*domain.Offering, error)
	ArchiveOffering(ctx context.Context, businessID, id uuid.UUID) error

	ResolveForBusiness(ctx context.Context, businessID uuid.UUID) (*domain.Resolution, error)
	OpenCase(ctx context.Context, businessID, openedBy uuid.UUID, in app.OpenCaseInput) (*domain.SupportCase, error)
	ListCases(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error)
}

// consoleService backs the platform operator console.
type consoleService interface {
	ListBusinesses(ctx context.Context) ([]domain.Business, error)

	ListPacks(ctx context.Context) ([]domain.Pack, error)
	CreatePack(ctx context.Context, in app.CreatePackInput) (*domain.Pack, error)
	GetPack(ctx context.Context, packID uuid.UUID) (*app.PackDetail, error)
	RolloutHistory(ctx context.Context, packID uuid.UUID, limit int) ([]domain.AuditEntry, error)
	CreateDraft(ctx context.Context, packID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error)
	UpdateDraft(ctx context.Context, versionID uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error)
	Publish(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	StartRollout(ctx context.Context, versionID uuid.UUID, stages []int, every time.Duration, actor *uuid.UUID) (*domain.PackVersion, error)
	AdvanceRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	SetRolloutPercent(ctx context.Context, versionID uuid.UUID, percent int, actor *uuid.UUID) (*domain.PackVersion, error)
	PauseRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error)
	ResumeRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	CompleteRollout(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)
	Rollback(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID, reason string) (*domain.PackVersion, error)

	ListPins(ctx context.Context, businessID uuid.UUID) ([]domain.PackPin, error)
	Pin(ctx context.Context, businessID, versionID uuid.UUID, reason string, actor *uuid.UUID) (*domain.PackPin, error)
	Unpin(ctx context.Context, businessID, packID uuid.UUID, actor *uuid.UUID) error
	Resolve(ctx context.Context, businessID, packID uuid.UUID) (*domain.Resolution, error)

	UpdateCaseStatus(ctx context.Context, id uuid.UUID, to domain.CaseStatus) (*domain.SupportCase, error)
	AddCaseNote(ctx context.Context, id, author uuid.UUID, body string) (*domain.SupportCase, error)
	ListSettings(ctx context.Context) ([]domain.PlatformSetting, error)
	PutSetting(ctx context.Context, key, value string, secret bool, actor uuid.UUID) (*domain.PlatformSetting, error)
}

type appService interface {
	portalService
	staffService
	consoleService
}

// Options carries the optional parts of the server. Zero values disable them.
type Options struct {
	HealthChecks   []HealthCheck
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	authorizer   *Authorizer
	sessionStore *sessions.CookieStore

	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	healthChecks   []HealthCheck
	startTime      time.Time
}

func NewServer(cfg *config.Config, app appService, opts Options) (*Server, error) {
	authorizer, err := NewAuthorizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = httpErrorHandler

	srv := &Server{
		echo:           e,
		config:         cfg,
		app:            app,
		authorizer:     authorizer,
		sessionStore:   setupSessionStore(cfg),
		metricsHandler: opts.MetricsHandler,
		httpMetrics:    opts.HTTPMetrics,
		healthChecks:   opts.HealthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName     = "booking-os-session"
	sessionKeyStaff = "staff_id"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
