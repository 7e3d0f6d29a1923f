// Package changerequest models the approval ticket that gates publishing a
// sandbox chart.
package changerequest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool { return s != StatusPending }

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

var (
	ErrNotFound        = errors.New("approval request not found")
	ErrAlreadyPending  = errors.New("chart already has a pending approval request")
	ErrNotPending      = errors.New("approval request is not pending")
	ErrInvalidDecision = errors.New("invalid approval decision")
)

type ChangeRequest struct {
	ID              uuid.UUID  `json:"id"`
	ChartID         uuid.UUID  `json:"chart_id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ApproverID      *uuid.UUID `json:"approver_id,omitempty"`
	Status          Status     `json:"status"`
	RequestNotes    string     `json:"request_notes"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func New(chartID, requester uuid.UUID, notes string, now time.Time) *ChangeRequest {
	return &ChangeRequest{
		ID:           uuid.New(),
		ChartID:      chartID,
		RequesterID:  requester,
		Status:       StatusPending,
		RequestNotes: notes,
		CreatedAt:    now,
	}
}

// Resolve applies the approver's decision to a pending request.
func (cr *ChangeRequest) Resolve(approver uuid.UUID, decision Decision, notes string, now time.Time) error {
	if cr.Status != StatusPending {
		return fmt.Errorf("%w: %s", ErrNotPending, cr.Status)
	}
	switch decision {
	case DecisionApprove:
		cr.Status = StatusApproved
	case DecisionReject:
		cr.Status = StatusRejected
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	cr.stamp(approver, notes, now)
	return nil
}

// Cancel withdraws a pending request.
func (cr *ChangeRequest) Cancel(actor uuid.UUID, notes string, now time.Time) error {
	if cr.Status != StatusPending {
		return fmt.Errorf("%w: %s", ErrNotPending, cr.Status)
	}
	cr.Status = StatusCancelled
	cr.stamp(actor, notes, now)
	return nil
}

func (cr *ChangeRequest) stamp(actor uuid.UUID, notes string, now time.Time) {
	cr.ApproverID = &actor
	cr.ResolutionNotes = notes
	resolved := now
	cr.ResolvedAt = &resolved
}
