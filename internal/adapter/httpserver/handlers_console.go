package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

func (s *Server) registerConsoleRoutes(csrfMiddleware echo.MiddlewareFunc) {
	console := s.echo.Group("/api/console", s.requireAuth, csrfMiddleware, s.authorize)

	console.GET("/businesses", s.handleListBusinesses)
	console.GET("/businesses/:id/pins", s.handleListPins)
	console.PUT("/businesses/:id/pins", s.handlePin)
	console.DELETE("/businesses/:id/pins/:packID", s.handleUnpin)
	console.GET("/businesses/:id/packs/:packID/resolve", s.handleResolve)

	console.GET("/packs", s.handleListPacks)
	console.POST("/packs", s.handleCreatePack)
	console.GET("/packs/:id", s.handleGetPack)
	console.POST("/packs/:id/versions", s.handleCreateDraft)
	console.GET("/packs/:id/history", s.handleRolloutHistory)

	console.PUT("/versions/:id", s.handleUpdateDraft)
	console.POST("/versions/:id/publish", s.versionHandler(s.app.Publish))
	console.POST("/versions/:id/rollout", s.handleStartRollout)
	console.POST("/versions/:id/advance", s.versionHandler(s.app.AdvanceRollout))
	console.POST("/versions/:id/percent", s.handleSetPercent)
	console.POST("/versions/:id/pause", s.handlePause)
	console.POST("/versions/:id/resume", s.versionHandler(s.app.ResumeRollout))
	console.POST("/versions/:id/complete", s.versionHandler(s.app.CompleteRollout))
	console.POST("/versions/:id/rollback", s.handleRollback)

	console.GET("/support-cases", s.handleListAllCases)
	console.POST("/support-cases/:id/status", s.handleCaseStatus)
	console.POST("/support-cases/:id/notes", s.handleCaseNote)

	console.GET("/settings", s.handleListSettings)
	console.PUT("/settings/:key", s.handlePutSetting)
}

func actor(c echo.Context) *uuid.UUID {
	if st := currentStaff(c); st != nil {
		id := st.ID
		return &id
	}
	return nil
}

func (s *Server) handleListBusinesses(c echo.Context) error {
	businesses, err := s.app.ListBusinesses(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, businesses)
}

// --- Packs ---

func (s *Server) handleListPacks(c echo.Context) error {
	packs, err := s.app.ListPacks(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, packs)
}

type createPackRequest struct {
	Slug        string `json:"slug" validate:"required"`
	Name        string `json:"name" validate:"required,max=200"`
	Vertical    string `json:"vertical" validate:"required"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleCreatePack(c echo.Context) error {
	var req createPackRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := s.app.CreatePack(c.Request().Context(), app.CreatePackInput{
		Slug:        req.Slug,
		Name:        req.Name,
		Vertical:    req.Vertical,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, p)
}

func (s *Server) handleGetPack(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.app.GetPack(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, detail)
}

func (s *Server) handleRolloutHistory(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return apperrors.ValidationError("limit must be a number").WithField("limit", raw)
		}
	}
	entries, err := s.app.RolloutHistory(c.Request().Context(), id, limit)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, entries)
}

type draftRequest struct {
	Content domain.PackContent `json:"content"`
	Notes   string             `json:"notes" validate:"max=2000"`
}

func (s *Server) handleCreateDraft(c echo.Context) error {
	packID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req draftRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.CreateDraft(c.Request().Context(), packID, req.Content, req.Notes, actor(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, v)
}

func (s *Server) handleUpdateDraft(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req draftRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.UpdateDraft(c.Request().Context(), id, req.Content, req.Notes, actor(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, v)
}

// --- Rollout lifecycle ---

type versionFunc func(ctx context.Context, versionID uuid.UUID, actor *uuid.UUID) (*domain.PackVersion, error)

func (s *Server) versionHandler(change versionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramUUID(c, "id")
		if err != nil {
			return err
		}
		v, err := change(c.Request().Context(), id, actor(c))
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, v)
	}
}

type startRolloutRequest struct {
	Stages           []int           `json:"stages" validate:"omitempty,dive,min=1,max=100"`
	AutoAdvanceEvery domain.Duration `json:"auto_advance_every"`
}

func (s *Server) handleStartRollout(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req startRolloutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.StartRollout(c.Request().Context(), id, req.Stages, time.Duration(req.AutoAdvanceEvery), actor(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, v)
}

type percentRequest struct {
	Percent int `json:"percent" validate:"min=1,max=100"`
}

func (s *Server) handleSetPercent(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req percentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.SetRolloutPercent(c.Request().Context(), id, req.Percent, actor(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, v)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *Server) handlePause(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.PauseRollout(c.Request().Context(), id, actor(c), req.Reason)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleRollback(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := s.app.Rollback(c.Request().Context(), id, actor(c), req.Reason)
	if err != nil {
		return err
	}
	slog.WarnContext(c.Request().Context(), "Pack version rolled back from console", "version_id", id, "reason", req.Reason)
	return writeJSON(c, http.StatusOK, v)
}

// --- Pins ---

func (s *Server) handleListPins(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	pins, err := s.app.ListPins(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, pins)
}

type pinRequest struct {
	VersionID uuid.UUID `json:"version_id" validate:"required"`
	Reason    string    `json:"reason" validate:"max=500"`
}

func (s *Server) handlePin(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req pinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	pin, err := s.app.Pin(c.Request().Context(), id, req.VersionID, req.Reason, actor(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, pin)
}

func (s *Server) handleUnpin(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	packID, err := paramUUID(c, "packID")
	if err != nil {
		return err
	}
	if err := s.app.Unpin(c.Request().Context(), id, packID, actor(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResolve(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	packID, err := paramUUID(c, "packID")
	if err != nil {
		return err
	}
	res, err := s.app.Resolve(c.Request().Context(), id, packID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, res)
}

// --- Support ---

func (s *Server) handleListAllCases(c echo.Context) error {
	filter := domain.CaseFilter{Status: domain.CaseStatus(c.QueryParam("status"))}
	if raw := c.QueryParam("business"); raw != "" {
		id, err := parseUUID(raw, "business")
		if err != nil {
			return err
		}
		filter.BusinessID = &id
	}
	cases, err := s.app.ListCases(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, cases)
}

type caseStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

func (s *Server) handleCaseStatus(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req caseStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, err := s.app.UpdateCaseStatus(c.Request().Context(), id, domain.CaseStatus(req.Status))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, sc)
}

type caseNoteRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

func (s *Server) handleCaseNote(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req caseNoteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, err := s.app.AddCaseNote(c.Request().Context(), id, currentStaff(c).ID, req.Body)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, sc)
}

// --- Settings ---

func (s *Server) handleListSettings(c echo.Context) error {
	settings, err := s.app.ListSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, settings)
}

type settingRequest struct {
	Value  string `json:"value" validate:"max=10000"`
	Secret bool   `json:"secret"`
}

func (s *Server) handlePutSetting(c echo.Context) error {
	var req settingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	setting, err := s.app.PutSetting(c.Request().Context(), c.Param("key"), req.Value, req.Secret, currentStaff(c).ID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, setting)
}
