package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicAssignmentEndedV1 = "org.assignment.ended.v1"
	TopicChartApprovedV1   = "org.chart.approved.v1"
	TopicChartRejectedV1   = "org.chart.rejected.v1"
	TopicChartCancelledV1  = "org.chart.cancelled.v1"
	EventVersionV1         = 1
)

// AssignmentEndedV1 is published after an assignment end date is committed.
type AssignmentEndedV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	RequestID    string    `json:"request_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	PositionID   string    `json:"position_id"`
	EmployeeID   uuid.UUID `json:"employee_id"`
	EndDate      time.Time `json:"end_date"`
	Notes        string    `json:"notes,omitempty"`
}

func (AssignmentEndedV1) Topic() string { return TopicAssignmentEndedV1 }

// ChartDecisionV1 is published after an approval request is resolved or
// cancelled.
type ChartDecisionV1 struct {
	EventID         uuid.UUID  `json:"event_id"`
	EventVersion    int        `json:"event_version"`
	RequestID       string     `json:"request_id,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
	TopicName       string     `json:"topic"`
	TicketID        uuid.UUID  `json:"ticket_id"`
	ChartID         uuid.UUID  `json:"chart_id"`
	Department      string     `json:"department"`
	Version         string     `json:"version"`
	ActorID         uuid.UUID  `json:"actor_id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ArchivedChartID *uuid.UUID `json:"archived_chart_id,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

func (e ChartDecisionV1) Topic() string { return e.TopicName }
