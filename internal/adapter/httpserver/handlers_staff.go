package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

func (s *Server) registerStaffRoutes(csrfMiddleware echo.MiddlewareFunc) {
	api := s.echo.Group("/api", s.requireAuth, csrfMiddleware, requireBusiness, s.authorize)

	api.GET("/business", s.handleGetBusiness)
	api.PUT("/business/hours", s.handleUpdateHours)

	api.GET("/bookings", s.handleListBookings)
	api.POST("/bookings", s.handleCreateBooking)
	api.POST("/bookings/:id/cancel", s.bookingStatusHandler(s.app.CancelBooking))
	api.POST("/bookings/:id/complete", s.bookingStatusHandler(s.app.CompleteBooking))
	api.POST("/bookings/:id/no-show", s.bookingStatusHandler(s.app.MarkNoShow))
	api.POST("/bookings/:id/reschedule", s.handleReschedule)

	api.GET("/customers", s.handleSearchCustomers)
	api.POST("/customers", s.handleSaveCustomer)

	api.GET("/staff", s.handleListStaff)
	api.POST("/staff", s.handleCreateStaff)
	api.POST("/staff/:id/deactivate", s.handleDeactivateStaff)

	api.GET("/offerings", s.handleListOfferings)
	api.POST("/offerings", s.handleCreateOffering)
	api.POST("/offerings/:id/archive", s.handleArchiveOffering)

	api.GET("/pack", s.handleBusinessPack)

	api.GET("/support-cases", s.handleListOwnCases)
	api.POST("/support-cases", s.handleOpenCase)
}

func (s *Server) handleGetBusiness(c echo.Context) error {
	b, err := s.app.GetBusiness(c.Request().Context(), businessID(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, b)
}

type hoursRequest struct {
	OpenMinute  int `json:"open_minute" validate:"min=0,max=1440"`
	CloseMinute int `json:"close_minute" validate:"min=1,max=1440"`
}

func (s *Server) handleUpdateHours(c echo.Context) error {
	var req hoursRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := s.app.UpdateBusinessHours(c.Request().Context(), businessID(c), req.OpenMinute, req.CloseMinute)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, b)
}

// handleListBookings lists ?from=&to= (RFC 3339), or the business's current day when both are absent.
func (s *Server) handleListBookings(c echo.Context) error {
	ctx := c.Request().Context()
	fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to")

	var from, to time.Time
	var err error
	if fromRaw == "" && toRaw == "" {
		from, to, err = s.app.TodayBounds(ctx, businessID(c))
		if err != nil {
			return err
		}
	} else {
		if from, err = time.Parse(time.RFC3339, fromRaw); err != nil {
			return apperrors.ValidationError("from must be an RFC 3339 timestamp").WithField("from", fromRaw)
		}
		if to, err = time.Parse(time.RFC3339, toRaw); err != nil {
			return apperrors.ValidationError("to must be an RFC 3339 timestamp").WithField("to", toRaw)
		}
	}

	bookings, err := s.app.ListBookings(ctx, businessID(c), from, to)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, bookings)
}

type createBookingRequest struct {
	CustomerID uuid.UUID         `json:"customer_id" validate:"required"`
	StaffID    uuid.UUID         `json:"staff_id" validate:"required"`
	OfferingID uuid.UUID         `json:"service_id" validate:"required"`
	StartsAt   time.Time         `json:"starts_at" validate:"required"`
	Intake     map[string]string `json:"intake"`
}

func (s *Server) handleCreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := s.app.CreateBooking(c.Request().Context(), businessID(c), app.CreateBookingInput{
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		OfferingID: req.OfferingID,
		StartsAt:   req.StartsAt,
		Intake:     req.Intake,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, b)
}

type bookingStatusFunc func(ctx context.Context, businessID, id uuid.UUID) (*domain.Booking, error)

func (s *Server) bookingStatusHandler(change bookingStatusFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramUUID(c, "id")
		if err != nil {
			return err
		}
		b, err := change(c.Request().Context(), businessID(c), id)
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, b)
	}
}

type rescheduleRequest struct {
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	StaffID  *uuid.UUID `json:"staff_id"`
}

func (s *Server) handleReschedule(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := s.app.Reschedule(c.Request().Context(), businessID(c), id, req.StartsAt, req.StaffID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, b)
}

func (s *Server) handleSearchCustomers(c echo.Context) error {
	customers, err := s.app.SearchCustomers(c.Request().Context(), businessID(c), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, customers)
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=50"`
	Notes string `json:"notes" validate:"max=2000"`
}

func (s *Server) handleSaveCustomer(c echo.Context) error {
	var req customerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	customer, err := s.app.SaveCustomer(c.Request().Context(), businessID(c), app.CustomerInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Notes: req.Notes,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, customer)
}

func (s *Server) handleListStaff(c echo.Context) error {
	staff, err := s.app.ListStaff(c.Request().Context(), businessID(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, staff)
}

type createStaffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role" validate:"required,oneof=owner admin agent"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (s *Server) handleCreateStaff(c echo.Context) error {
	var req createStaffRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	st, err := s.app.CreateStaff(c.Request().Context(), businessID(c), app.CreateStaffInput{
		Email:    req.Email,
		Name:     req.Name,
		Role:     domain.Role(req.Role),
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, st)
}

func (s *Server) handleDeactivateStaff(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.app.DeactivateStaff(c.Request().Context(), businessID(c), id, currentStaff(c).ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListOfferings(c echo.Context) error {
	offerings, err := s.app.ListOfferings(c.Request().Context(), businessID(c), c.QueryParam("archived") == "true")
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, offerings)
}

type offeringRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=5,max=720"`
	PriceCents      int    `json:"price_cents" validate:"min=0"`
}

func (s *Server) handleCreateOffering(c echo.Context) error {
	var req offeringRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	o, err := s.app.CreateOffering(c.Request().Context(), businessID(c), app.OfferingInput{
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, o)
}

func (s *Server) handleArchiveOffering(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.app.ArchiveOffering(c.Request().Context(), businessID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleBusinessPack shows which pack version the logged-in business currently runs on.
func (s *Server) handleBusinessPack(c echo.Context) error {
	res, err := s.app.ResolveForBusiness(c.Request().Context(), businessID(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, res)
}

func (s *Server) handleListOwnCases(c echo.Context) error {
	id := businessID(c)
	cases, err := s.app.ListCases(c.Request().Context(), domain.CaseFilter{
		BusinessID: &id,
		Status:     domain.CaseStatus(c.QueryParam("status")),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, cases)
}

type openCaseRequest struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Body     string `json:"body" validate:"max=10000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

func (s *Server) handleOpenCase(c echo.Context) error {
	var req openCaseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, err := s.app.OpenCase(c.Request().Context(), businessID(c), currentStaff(c).ID, app.OpenCaseInput{
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: domain.CasePriority(req.Priority),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, sc)
}
