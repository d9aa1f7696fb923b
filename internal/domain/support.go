package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
	CaseClosed     CaseStatus = "closed"
)

var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseOpen:       {CaseInProgress, CaseResolved, CaseClosed},
	CaseInProgress: {CaseResolved, CaseClosed},
	CaseResolved:   {CaseClosed, CaseOpen},
}

func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CaseResolved, CaseClosed:
		return true
	}
	return false
}

func (s CaseStatus) CanTransitionTo(to CaseStatus) bool {
	for _, allowed := range caseTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type CasePriority string

const (
	PriorityLow    CasePriority = "low"
	PriorityNormal CasePriority = "normal"
	PriorityHigh   CasePriority = "high"
	PriorityUrgent CasePriority = "urgent"
)

func (p CasePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type CaseNote struct {
	Author uuid.UUID `json:"author"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

type SupportCase struct {
	ID         uuid.UUID    `json:"id"`
	BusinessID uuid.UUID    `json:"business_id"`
	OpenedBy   uuid.UUID    `json:"opened_by"`
	Subject    string       `json:"subject"`
	Body       string       `json:"body"`
	Status     CaseStatus   `json:"status"`
	Priority   CasePriority `json:"priority"`
	Notes      []CaseNote   `json:"notes"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// CaseFilter narrows a case listing. Zero values match everything.
type CaseFilter struct {
	BusinessID *uuid.UUID
	Status     CaseStatus
}

type SupportCaseRepository interface {
	Create(ctx context.Context, c *SupportCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*SupportCase, error)
	List(ctx context.Context, filter CaseFilter) ([]SupportCase, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to CaseStatus) (*SupportCase, error)
	AppendNote(ctx context.Context, id uuid.UUID, note CaseNote) (*SupportCase, error)
}
