package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

type OpenCaseInput struct {
	Subject  string
	Body     string
	Priority domain.CasePriority
}

func (s *Service) OpenCase(ctx context.Context, businessID, openedBy uuid.UUID, in OpenCaseInput) (*domain.SupportCase, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, priority)
	}

	c := &domain.SupportCase{
		ID:         uuid.New(),
		BusinessID: businessID,
		OpenedBy:   openedBy,
		Subject:    subject,
		Body:       in.Body,
		Status:     domain.CaseOpen,
		Priority:   priority,
	}
	if err := s.support.Create(ctx, c); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Support case opened", "case_id", c.ID, "business_id", businessID, "priority", priority)
	return c, nil
}

func (s *Service) ListCases(ctx context.Context, filter domain.CaseFilter) ([]domain.SupportCase, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	return s.support.List(ctx, filter)
}

func (s *Service) UpdateCaseStatus(ctx context.Context, id uuid.UUID, to domain.CaseStatus) (*domain.SupportCase, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, to)
	}
	c, err := s.support.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.Status, to)
	}

	updated, err := s.support.UpdateStatus(ctx, id, c.Status, to)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Support case status changed", "case_id", id, "from", c.Status, "to", to)
	return updated, nil
}

func (s *Service) AddCaseNote(ctx context.Context, id, author uuid.UUID, body string) (*domain.SupportCase, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", domain.ErrInvalidInput)
	}
	return s.support.AppendNote(ctx, id, domain.CaseNote{Author: author, Body: body, At: s.clock.Now()})
}
