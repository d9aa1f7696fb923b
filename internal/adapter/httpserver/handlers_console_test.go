package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

func TestConsole_RequiresSuperAdmin(t *testing.T) {
	tests := []struct {
		name       string
		staff      *domain.Staff
		wantStatus int
	}{
		{"owner", ownerStaff(), http.StatusForbidden},
		{"agent", staffWithRole(domain.RoleAgent), http.StatusForbidden},
		{"super admin", superAdmin(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockAppService{}
			srv := newTestServer(t, mock)
			cookies := signIn(t, srv, mock, tt.staff)

			rec := doJSON(t, srv, http.MethodGet, "/api/console/packs", nil, cookies)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		srv := newTestServer(t, &mockAppService{})
		rec := doJSON(t, srv, http.MethodGet, "/api/console/packs", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestConsole_CreatePackAndDraft(t *testing.T) {
	admin := superAdmin()
	packID := uuid.New()
	mock := &mockAppService{
		createPackFn: func(_ context.Context, in app.CreatePackInput) (*domain.Pack, error) {
			if in.Slug == "clinic-default" {
				return nil, domain.ErrPackExists
			}
			return &domain.Pack{ID: packID, Slug: in.Slug, Vertical: in.Vertical}, nil
		},
		createDraftFn: func(_ context.Context, id uuid.UUID, content domain.PackContent, notes string, actor *uuid.UUID) (*domain.PackVersion, error) {
			assert.Equal(t, packID, id)
			require.NotNil(t, actor)
			assert.Equal(t, admin.ID, *actor)
			assert.Equal(t, "Patient", content.Labels["customer"])
			require.Len(t, content.IntakeFields, 1)
			assert.Equal(t, domain.FieldBoolean, content.IntakeFields[0].Type)
			return &domain.PackVersion{ID: uuid.New(), PackID: id, Version: 1, Status: domain.StatusDraft, Content: content, Notes: notes}, nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)

	rec := doJSON(t, srv, http.MethodPost, "/api/console/packs", map[string]string{"slug": "clinic-v2", "name": "Clinic", "vertical": "clinic"}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/console/packs", map[string]string{"slug": "clinic-default", "name": "Clinic", "vertical": "clinic"}, cookies)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/console/packs/"+packID.String()+"/versions", map[string]any{
		"notes": "first cut",
		"content": map[string]any{
			"labels":        map[string]string{"customer": "Patient"},
			"intake_fields": []map[string]any{{"key": "insured", "label": "Insured?", "type": "boolean", "required": true}},
		},
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)
}

func TestConsole_RolloutLifecycle(t *testing.T) {
	admin := superAdmin()
	versionID := uuid.New()
	var calls []string
	version := func(status domain.RolloutStatus, percent int) *domain.PackVersion {
		return &domain.PackVersion{ID: versionID, Status: status, RolloutPercent: percent}
	}
	mock := &mockAppService{
		publishFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "publish")
			return version(domain.StatusPublished, 0), nil
		},
		startRolloutFn: func(_ context.Context, _ uuid.UUID, stages []int, every time.Duration, _ *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "rollout")
			assert.Equal(t, []int{5, 50, 100}, stages)
			assert.Equal(t, 6*time.Hour, every)
			return version(domain.StatusRollingOut, 5), nil
		},
		advanceFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "advance")
			return version(domain.StatusRollingOut, 50), nil
		},
		setPercentFn: func(_ context.Context, _ uuid.UUID, percent int, _ *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "percent")
			assert.Equal(t, 75, percent)
			return version(domain.StatusRollingOut, 75), nil
		},
		pauseFn: func(_ context.Context, _ uuid.UUID, _ *uuid.UUID, reason string) (*domain.PackVersion, error) {
			calls = append(calls, "pause")
			assert.Equal(t, "support spike", reason)
			return version(domain.StatusPaused, 75), nil
		},
		resumeFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "resume")
			return version(domain.StatusRollingOut, 75), nil
		},
		completeFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			calls = append(calls, "complete")
			return version(domain.StatusCompleted, 100), nil
		},
		rollbackFn: func(_ context.Context, _ uuid.UUID, _ *uuid.UUID, reason string) (*domain.PackVersion, error) {
			calls = append(calls, "rollback")
			return version(domain.StatusRolledBack, 100), nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)
	base := "/api/console/versions/" + versionID.String()

	steps := []struct {
		action string
		body   any
		want   string
	}{
		{"publish", nil, `"status":"published"`},
		{"rollout", map[string]any{"stages": []int{5, 50, 100}, "auto_advance_every": "6h"}, `"rollout_percent":5`},
		{"advance", nil, `"rollout_percent":50`},
		{"percent", map[string]int{"percent": 75}, `"rollout_percent":75`},
		{"pause", map[string]string{"reason": "support spike"}, `"status":"paused"`},
		{"resume", nil, `"status":"rolling_out"`},
		{"complete", nil, `"status":"completed"`},
		{"rollback", map[string]string{"reason": "bad labels"}, `"status":"rolled_back"`},
	}
	for _, step := range steps {
		rec := doJSON(t, srv, http.MethodPost, base+"/"+step.action, step.body, cookies)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", step.action, rec.Body.String())
		assert.Contains(t, rec.Body.String(), step.want, step.action)
	}
	assert.Equal(t, []string{"publish", "rollout", "advance", "percent", "pause", "resume", "complete", "rollback"}, calls)
}

func TestConsole_RolloutErrors(t *testing.T) {
	admin := superAdmin()
	mock := &mockAppService{
		publishFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			return nil, domain.ErrInvalidTransition
		},
		advanceFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			return nil, domain.ErrVersionConflict
		},
		completeFn: func(context.Context, uuid.UUID, *uuid.UUID) (*domain.PackVersion, error) {
			return nil, domain.ErrVersionNotFound
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)
	base := "/api/console/versions/" + uuid.NewString()

	tests := []struct {
		path       string
		body       any
		wantStatus int
	}{
		{base + "/publish", nil, http.StatusConflict},
		{base + "/advance", nil, http.StatusConflict},
		{base + "/complete", nil, http.StatusNotFound},
		{base + "/percent", map[string]int{"percent": 150}, http.StatusBadRequest},
		{base + "/rollout", map[string]any{"auto_advance_every": "soon"}, http.StatusBadRequest},
		{"/api/console/versions/nope/publish", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doJSON(t, srv, http.MethodPost, tt.path, tt.body, cookies)
		assert.Equal(t, tt.wantStatus, rec.Code, "%s: %s", tt.path, rec.Body.String())
	}
}

func TestConsole_Pins(t *testing.T) {
	admin := superAdmin()
	businessID, packID, versionID := uuid.New(), uuid.New(), uuid.New()
	var unpinned bool
	mock := &mockAppService{
		pinFn: func(_ context.Context, biz, version uuid.UUID, reason string, actor *uuid.UUID) (*domain.PackPin, error) {
			assert.Equal(t, businessID, biz)
			assert.Equal(t, versionID, version)
			return &domain.PackPin{BusinessID: biz, PackID: packID, VersionID: version, Reason: reason, PinnedBy: actor}, nil
		},
		listPinsFn: func(_ context.Context, biz uuid.UUID) ([]domain.PackPin, error) {
			return []domain.PackPin{{BusinessID: biz, PackID: packID, VersionID: versionID}}, nil
		},
		unpinFn: func(_ context.Context, biz, pack uuid.UUID, _ *uuid.UUID) error {
			assert.Equal(t, packID, pack)
			unpinned = true
			return nil
		},
		resolveFn: func(_ context.Context, biz, pack uuid.UUID) (*domain.Resolution, error) {
			return &domain.Resolution{Version: domain.PackVersion{ID: versionID}, Source: domain.SourcePin}, nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)
	base := "/api/console/businesses/" + businessID.String()

	rec := doJSON(t, srv, http.MethodPut, base+"/pins", map[string]any{"version_id": versionID, "reason": "beta tester"}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "beta tester")

	rec = doJSON(t, srv, http.MethodGet, base+"/pins", nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, base+"/packs/"+packID.String()+"/resolve", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"pin"`)

	rec = doJSON(t, srv, http.MethodDelete, base+"/pins/"+packID.String(), nil, cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, unpinned)

	rec = doJSON(t, srv, http.MethodPut, base+"/pins", map[string]any{"reason": "missing version"}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsole_History(t *testing.T) {
	admin := superAdmin()
	var gotLimit int
	mock := &mockAppService{
		historyFn: func(_ context.Context, _ uuid.UUID, limit int) ([]domain.AuditEntry, error) {
			gotLimit = limit
			return []domain.AuditEntry{{Action: domain.AuditAdvanced, Percent: 50}}, nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)
	path := "/api/console/packs/" + uuid.NewString() + "/history"

	rec := doJSON(t, srv, http.MethodGet, path+"?limit=20", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, gotLimit)
	assert.Contains(t, rec.Body.String(), `"action":"rollout_advanced"`)

	rec = doJSON(t, srv, http.MethodGet, path+"?limit=many", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsole_SupportCases(t *testing.T) {
	admin := superAdmin()
	caseID := uuid.New()
	mock := &mockAppService{
		listCasesFn: func(_ context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error) {
			assert.Nil(t, filter.BusinessID)
			return nil, nil
		},
		caseStatusFn: func(_ context.Context, id uuid.UUID, to domain.CaseStatus) (*domain.SupportCase, error) {
			if to == domain.CaseOpen {
				return nil, domain.ErrInvalidTransition
			}
			return &domain.SupportCase{ID: id, Status: to}, nil
		},
		caseNoteFn: func(_ context.Context, id, author uuid.UUID, body string) (*domain.SupportCase, error) {
			assert.Equal(t, admin.ID, author)
			return &domain.SupportCase{ID: id, Notes: []domain.CaseNote{{Author: author, Body: body}}}, nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)

	rec := doJSON(t, srv, http.MethodGet, "/api/console/support-cases", nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/console/support-cases/"+caseID.String()+"/status", map[string]string{"status": "in_progress"}, cookies)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/console/support-cases/"+caseID.String()+"/status", map[string]string{"status": "open"}, cookies)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/console/support-cases/"+caseID.String()+"/status", map[string]string{"status": "wontfix"}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/console/support-cases/"+caseID.String()+"/notes", map[string]string{"body": "Called the owner"}, cookies)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestConsole_Settings(t *testing.T) {
	admin := superAdmin()
	mock := &mockAppService{
		listSettingsFn: func(context.Context) ([]domain.PlatformSetting, error) {
			return []domain.PlatformSetting{{Key: "smtp.password", Value: domain.MaskedValue, Secret: true}}, nil
		},
		putSettingFn: func(_ context.Context, key, value string, secret bool, actor uuid.UUID) (*domain.PlatformSetting, error) {
			assert.Equal(t, "smtp.password", key)
			assert.True(t, secret)
			assert.Equal(t, admin.ID, actor)
			return &domain.PlatformSetting{Key: key, Value: domain.MaskedValue, Secret: secret, UpdatedBy: &actor}, nil
		},
	}
	srv := newTestServer(t, mock)
	cookies := signIn(t, srv, mock, admin)

	rec := doJSON(t, srv, http.MethodPut, "/api/console/settings/smtp.password", map[string]any{"value": "hunter2", "secret": true}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = doJSON(t, srv, http.MethodGet, "/api/console/settings", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.MaskedValue)
}
