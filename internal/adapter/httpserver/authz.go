package httpserver

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/labstack/echo/v4"

	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Authorizer decides which staff roles may call which API routes.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policyLines(embeddedPolicy)))
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// policyLines drops comments and blank lines, which the string adapter does not accept.
func policyLines(policy string) string {
	var kept []string
	for line := range strings.Lines(policy) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	allowed, err := a.enforcer.Enforce(role, path, method)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// authorize must run after requireAuth.
func (s *Server) authorize(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := currentStaff(c)
		if st == nil {
			return apperrors.UnauthorizedError("login required")
		}

		path := c.Request().URL.Path
		allowed, err := s.authorizer.Allowed(string(st.Role), path, c.Request().Method)
		if err != nil {
			return apperrors.InternalError("authorization failed", err)
		}
		if !allowed {
			slog.InfoContext(c.Request().Context(), "Request forbidden", "staff_id", st.ID, "role", st.Role, "path", path)
			return apperrors.ForbiddenError("your role may not do this").WithField("role", string(st.Role))
		}
		return next(c)
	}
}
