package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

const ctxKeyStaff = "staff"

func (s *Server) registerAuthRoutes(csrfMiddleware, loginLimiter echo.MiddlewareFunc) {
	s.echo.POST("/auth/login", s.handleLogin, loginLimiter)
	s.echo.POST("/auth/logout", s.handleLogout, s.requireAuth, csrfMiddleware)
	s.echo.GET("/api/me", s.handleMe, s.requireAuth, csrfMiddleware)
}

// requireAuth loads the logged-in staff member from the session cookie.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("login required")
		}

		idStr, ok := session.Values[sessionKeyStaff].(string)
		if !ok {
			return apperrors.UnauthorizedError("login required")
		}
		staffID, err := uuid.Parse(idStr)
		if err != nil {
			return apperrors.UnauthorizedError("login required")
		}

		// deactivated or deleted logins lose their session
		st, err := s.app.CurrentStaff(c.Request().Context(), staffID)
		if errors.Is(err, domain.ErrStaffNotFound) {
			slog.WarnContext(c.Request().Context(), "Session references unknown staff member, invalidating", "staff_id", staffID)
			session.Options.MaxAge = -1
			_ = session.Save(c.Request(), c.Response().Writer)
			return apperrors.UnauthorizedError("login required")
		}
		if err != nil {
			return apperrors.InternalError("failed to load session", err)
		}

		c.Set(ctxKeyStaff, st)
		return next(c)
	}
}

func currentStaff(c echo.Context) *domain.Staff {
	st, _ := c.Get(ctxKeyStaff).(*domain.Staff)
	return st
}

// requireBusiness rejects logins that do not belong to a business, i.e. super admins.
func requireBusiness(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := currentStaff(c)
		if st == nil || st.BusinessID == nil {
			return apperrors.ForbiddenError("this endpoint needs a business login")
		}
		return next(c)
	}
}

func businessID(c echo.Context) uuid.UUID {
	if st := currentStaff(c); st != nil && st.BusinessID != nil {
		return *st.BusinessID
	}
	return uuid.Nil
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	st, err := s.app.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	if err := s.startSession(c, st); err != nil {
		return err
	}

	slog.InfoContext(c.Request().Context(), "Staff member logged in", "staff_id", st.ID, "role", st.Role)
	return writeJSON(c, http.StatusOK, map[string]any{"staff": st})
}

// startSession replaces any pre-login session with a fresh one for st.
func (s *Server) startSession(c echo.Context, st *domain.Staff) error {
	if old, err := s.sessionStore.Get(c.Request(), sessionName); err == nil && !old.IsNew {
		old.Options.MaxAge = -1
		if err := old.Save(c.Request(), c.Response().Writer); err != nil {
			return apperrors.InternalError("failed to invalidate old session", err)
		}
	}

	session, err := s.sessionStore.New(c.Request(), sessionName)
	if err != nil && session == nil {
		return apperrors.InternalError("failed to create session", err)
	}
	session.Values[sessionKeyStaff] = st.ID.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	st := currentStaff(c)

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to get session during logout", "error", err)
	}
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	slog.InfoContext(c.Request().Context(), "Staff member logged out", "staff_id", st.ID)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMe(c echo.Context) error {
	st := currentStaff(c)
	resp := map[string]any{
		"staff":      st,
		"csrf_token": c.Get(middleware.DefaultCSRFConfig.ContextKey),
	}
	if st.BusinessID != nil {
		b, err := s.app.GetBusiness(c.Request().Context(), *st.BusinessID)
		if err != nil {
			return err
		}
		resp["business"] = b
	}
	return writeJSON(c, http.StatusOK, resp)
}
