package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/events"
	"github.com/iota-uz/orgchart/pkg/composables"
)

// ApprovalService gates publishing behind a ticket. It never edits chart
// data itself.
type ApprovalService struct {
	Requests changerequest.Repository
	Charts   *ChartService
	Tx       Transactor
	Notifier Notifier
	Clock    Clock
}

func NewApprovalService(requests changerequest.Repository, charts *ChartService, tx Transactor, notifier Notifier) *ApprovalService {
	return &ApprovalService{
		Requests: requests,
		Charts:   charts,
		Tx:       tx,
		Notifier: notifier,
	}
}

// RequestApproval opens a ticket for a sandbox and freezes it in
// pending_approval.
func (s *ApprovalService) RequestApproval(ctx context.Context, sandboxID, requester uuid.UUID, notes string) (_ *changerequest.ChangeRequest, err error) {
	ctx, end := startSpan(ctx, "RequestApproval", attribute.String("chart.id", sandboxID.String()))
	defer func() { end(err) }()

	if requester == uuid.Nil {
		return nil, mapServiceError(ctx, "RequestApproval", invalidInput("requester is required"))
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		sb, err := s.Charts.Charts.LockForUpdate(txCtx, sandboxID)
		if err != nil {
			return nil, err
		}
		if !sb.IsSandbox {
			return nil, chart.ErrNotSandbox
		}
		pending, err := s.Requests.GetPendingByChart(txCtx, sb.ID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return nil, fmt.Errorf("%w: ticket %s", changerequest.ErrAlreadyPending, pending.ID)
		}
		now := s.Clock.now()
		if err := sb.SubmitForApproval(now); err != nil {
			return nil, err
		}
		if err := s.Charts.Charts.Update(txCtx, sb); err != nil {
			return nil, err
		}
		cr := changerequest.New(sb.ID, requester, strings.TrimSpace(notes), now)
		if err := s.Requests.Create(txCtx, cr); err != nil {
			return nil, err
		}
		return cr, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "RequestApproval", err)
	}
	recordTransition(string(chart.StatusPendingApproval))
	logWithFields(ctx, logrus.InfoLevel, "org approval requested", logrus.Fields{"ticket_id": out.ID, "chart_id": out.ChartID})
	return out, nil
}

type ResolveResult struct {
	Ticket   *changerequest.ChangeRequest `json:"ticket"`
	Chart    *chart.Chart                 `json:"chart"`
	Archived []*chart.Chart               `json:"archived"`
}

// Resolve approves or rejects a pending ticket. Approval publishes the
// sandbox and archives what it replaces in one transaction; rejection hands
// the sandbox back for editing.
func (s *ApprovalService) Resolve(ctx context.Context, ticketID, approver uuid.UUID, decision, notes string) (_ *ResolveResult, err error) {
	ctx, end := startSpan(ctx, "ResolveApproval",
		attribute.String("ticket.id", ticketID.String()),
		attribute.String("decision", decision),
	)
	defer func() { end(err) }()

	d, err := changerequest.ParseDecision(strings.ToLower(strings.TrimSpace(decision)))
	if err != nil {
		return nil, mapServiceError(ctx, "ResolveApproval", err)
	}
	if approver == uuid.Nil {
		return nil, mapServiceError(ctx, "ResolveApproval", invalidInput("approver is required"))
	}
	notes = strings.TrimSpace(notes)

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*ResolveResult, error) {
		cr, err := s.Requests.LockForUpdate(txCtx, ticketID)
		if err != nil {
			return nil, err
		}
		if cr.Status != changerequest.StatusPending {
			return nil, fmt.Errorf("%w: %s", changerequest.ErrNotPending, cr.Status)
		}
		sb, err := s.Charts.Charts.LockForUpdate(txCtx, cr.ChartID)
		if err != nil {
			return nil, err
		}
		now := s.Clock.now()
		res := &ResolveResult{Ticket: cr, Chart: sb}
		switch d {
		case changerequest.DecisionApprove:
			published, err := s.Charts.publishAndArchive(txCtx, sb, approver, notes)
			if err != nil {
				return nil, err
			}
			res.Archived = published.Archived
		case changerequest.DecisionReject:
			if err := sb.ReturnToSandbox(now); err != nil {
				return nil, err
			}
			if err := s.Charts.Charts.Update(txCtx, sb); err != nil {
				return nil, err
			}
		}
		if err := cr.Resolve(approver, d, notes, now); err != nil {
			return nil, err
		}
		if err := s.Requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "ResolveApproval", err)
	}

	topic := events.TopicChartRejectedV1
	if d == changerequest.DecisionApprove {
		topic = events.TopicChartApprovedV1
		recordTransition(string(chart.StatusActive))
		departments := []string{out.Chart.Department}
		for _, a := range out.Archived {
			recordTransition(string(chart.StatusArchived))
			departments = append(departments, a.Department)
		}
		s.Charts.invalidateActive(ctx, "publish", departments...)
	} else {
		recordTransition(string(chart.StatusSandbox))
	}
	logWithFields(ctx, logrus.InfoLevel, "org approval resolved", logrus.Fields{
		"ticket_id": out.Ticket.ID,
		"chart_id":  out.Chart.ID,
		"decision":  string(d),
		"version":   out.Chart.Version,
	})
	notify(ctx, s.Notifier, s.decisionEvent(ctx, topic, out.Ticket, out.Chart, approver, out.Archived))
	return out, nil
}

// Cancel withdraws a pending ticket and reopens its sandbox.
func (s *ApprovalService) Cancel(ctx context.Context, ticketID, actor uuid.UUID, notes string) (_ *ResolveResult, err error) {
	ctx, end := startSpan(ctx, "CancelApproval", attribute.String("ticket.id", ticketID.String()))
	defer func() { end(err) }()

	if actor == uuid.Nil {
		return nil, mapServiceError(ctx, "CancelApproval", invalidInput("actor is required"))
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*ResolveResult, error) {
		cr, err := s.Requests.LockForUpdate(txCtx, ticketID)
		if err != nil {
			return nil, err
		}
		now := s.Clock.now()
		if err := cr.Cancel(actor, strings.TrimSpace(notes), now); err != nil {
			return nil, err
		}
		sb, err := s.Charts.Charts.LockForUpdate(txCtx, cr.ChartID)
		if err != nil {
			return nil, err
		}
		if err := sb.ReturnToSandbox(now); err != nil {
			return nil, err
		}
		if err := s.Charts.Charts.Update(txCtx, sb); err != nil {
			return nil, err
		}
		if err := s.Requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		return &ResolveResult{Ticket: cr, Chart: sb}, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CancelApproval", err)
	}
	recordTransition(string(chart.StatusSandbox))
	logWithFields(ctx, logrus.InfoLevel, "org approval cancelled", logrus.Fields{"ticket_id": out.Ticket.ID, "chart_id": out.Chart.ID})
	notify(ctx, s.Notifier, s.decisionEvent(ctx, events.TopicChartCancelledV1, out.Ticket, out.Chart, actor, nil))
	return out, nil
}

func (s *ApprovalService) decisionEvent(ctx context.Context, topic string, cr *changerequest.ChangeRequest, c *chart.Chart, actor uuid.UUID, archived []*chart.Chart) *events.ChartDecisionV1 {
	reqID, _ := composables.UseRequestID(ctx)
	e := &events.ChartDecisionV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		RequestID:    reqID,
		OccurredAt:   s.Clock.now(),
		TopicName:    topic,
		TicketID:     cr.ID,
		ChartID:      c.ID,
		Department:   c.Department,
		Version:      c.Version,
		ActorID:      actor,
		RequesterID:  cr.RequesterID,
		Notes:        cr.ResolutionNotes,
	}
	if len(archived) > 0 {
		id := archived[0].ID
		e.ArchivedChartID = &id
	}
	return e
}

func (s *ApprovalService) Get(ctx context.Context, ticketID uuid.UUID) (*changerequest.ChangeRequest, error) {
	cr, err := s.Requests.Get(ctx, ticketID)
	if err != nil {
		return nil, mapServiceError(ctx, "GetApproval", err)
	}
	return cr, nil
}

func (s *ApprovalService) ListPending(ctx context.Context) ([]*changerequest.ChangeRequest, error) {
	out, err := s.Requests.List(ctx, changerequest.StatusPending, 0)
	if err != nil {
		return nil, mapServiceError(ctx, "ListPendingApprovals", err)
	}
	return out, nil
}

// ListRecent returns the newest tickets of any status.
func (s *ApprovalService) ListRecent(ctx context.Context, limit int) ([]*changerequest.ChangeRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := s.Requests.List(ctx, "", limit)
	if err != nil {
		return nil, mapServiceError(ctx, "ListRecentApprovals", err)
	}
	return out, nil
}
