package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

func (s *Server) registerPortalRoutes(bookingLimiter, setupLimiter echo.MiddlewareFunc) {
	s.echo.GET("/portal/:slug", s.handlePortal)
	s.echo.GET("/portal/:slug/availability", s.handleAvailability)
	s.echo.POST("/portal/:slug/bookings", s.handlePortalBooking, bookingLimiter)
	s.echo.POST("/api/setup", s.handleSetup, setupLimiter)
}

func (s *Server) handlePortal(c echo.Context) error {
	view, err := s.app.Portal(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, view)
}

func (s *Server) handleAvailability(c echo.Context) error {
	offeringID, err := parseUUID(c.QueryParam("offering"), "offering")
	if err != nil {
		return err
	}
	day, err := time.Parse(time.DateOnly, c.QueryParam("date"))
	if err != nil {
		return apperrors.ValidationError("date must be YYYY-MM-DD").WithField("date", c.QueryParam("date"))
	}

	slots, err := s.app.Availability(c.Request().Context(), c.Param("slug"), offeringID, day)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]any{"date": c.QueryParam("date"), "slots": slots})
}

type portalBookingRequest struct {
	OfferingID uuid.UUID         `json:"service_id" validate:"required"`
	StartsAt   time.Time         `json:"starts_at" validate:"required"`
	Name       string            `json:"name" validate:"required,max=200"`
	Email      string            `json:"email" validate:"required,email"`
	Phone      string            `json:"phone" validate:"max=50"`
	Intake     map[string]string `json:"intake"`
}

func (s *Server) handlePortalBooking(c echo.Context) error {
	var req portalBookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	b, err := s.app.BookFromPortal(c.Request().Context(), c.Param("slug"), app.PortalBookingInput{
		OfferingID: req.OfferingID,
		StartsAt:   req.StartsAt,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Intake:     req.Intake,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, b)
}

type setupRequest struct {
	BusinessName  string `json:"business_name" validate:"required,max=200"`
	Slug          string `json:"slug" validate:"required"`
	Vertical      string `json:"vertical" validate:"required"`
	Timezone      string `json:"timezone" validate:"required"`
	OpenMinute    int    `json:"open_minute" validate:"min=0,max=1440"`
	CloseMinute   int    `json:"close_minute" validate:"min=1,max=1440"`
	OwnerName     string `json:"owner_name" validate:"required,max=200"`
	OwnerEmail    string `json:"owner_email" validate:"required,email"`
	OwnerPassword string `json:"owner_password" validate:"required,min=8,max=72"`
}

// handleSetup onboards a business and logs its owner in.
func (s *Server) handleSetup(c echo.Context) error {
	var req setupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := s.app.Setup(c.Request().Context(), app.SetupInput{
		Business: app.CreateBusinessInput{
			Slug:        req.Slug,
			Name:        req.BusinessName,
			Vertical:    req.Vertical,
			Timezone:    req.Timezone,
			OpenMinute:  req.OpenMinute,
			CloseMinute: req.CloseMinute,
		},
		OwnerName:     req.OwnerName,
		OwnerEmail:    req.OwnerEmail,
		OwnerPassword: req.OwnerPassword,
	})
	if err != nil {
		return err
	}

	if err := s.startSession(c, res.Owner); err != nil {
		return err
	}

	slog.InfoContext(c.Request().Context(), "Setup completed", "business_id", res.Business.ID, "slug", res.Business.Slug)
	return writeJSON(c, http.StatusCreated, res)
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid UUID format").WithField(field, raw)
	}
	return id, nil
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	return parseUUID(c.Param(name), name)
}
