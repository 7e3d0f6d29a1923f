package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/org/domain/events"
	"github.com/iota-uz/orgchart/modules/org/services"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/eventbus"
)

// DecisionEventsHandler reacts to committed org notifications on the
// in-process bus.
type DecisionEventsHandler struct {
	cache services.ActiveChartCache
}

func RegisterEventHandlers(bus eventbus.EventBus, cache services.ActiveChartCache) *DecisionEventsHandler {
	h := &DecisionEventsHandler{cache: cache}
	bus.Subscribe(h.onChartDecisionV1)
	bus.Subscribe(h.onAssignmentEndedV1)
	return h
}

// onChartDecisionV1 drops the department's cached active chart once more, so
// a shared cache never outlives a publish made by another instance.
func (h *DecisionEventsHandler) onChartDecisionV1(ctx context.Context, ev *events.ChartDecisionV1) error {
	if h == nil || ev == nil {
		return nil
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"topic":      ev.Topic(),
		"ticket_id":  ev.TicketID,
		"chart_id":   ev.ChartID,
		"department": ev.Department,
		"version":    ev.Version,
		"actor_id":   ev.ActorID,
	}).Info("org chart decision")
	if ev.Topic() != events.TopicChartApprovedV1 || h.cache == nil {
		return nil
	}
	return h.cache.Invalidate(ctx, ev.Department)
}

func (h *DecisionEventsHandler) onAssignmentEndedV1(ctx context.Context, ev *events.AssignmentEndedV1) error {
	if h == nil || ev == nil {
		return nil
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"topic":         ev.Topic(),
		"assignment_id": ev.AssignmentID,
		"position_id":   ev.PositionID,
		"employee_id":   ev.EmployeeID,
		"end_date":      ev.EndDate.Format("2006-01-02"),
	}).Info("org assignment ended")
	return nil
}
