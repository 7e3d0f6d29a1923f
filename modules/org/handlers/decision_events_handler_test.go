package handlers

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/events"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/cache"
	"github.com/iota-uz/orgchart/modules/org/services"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/eventbus"
)

func cachedChart(t *testing.T, department string) *chart.Chart {
	t.Helper()
	c, err := chart.New(department+" v1", department, "", chart.Data{
		Positions: []chart.PositionNode{{ID: "CEO", Title: "Director", Department: department, Level: 1}},
	}, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, c.Activate(time.Now()))
	return c
}

func TestDecisionEventsHandler_ApprovalInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	activeCache := cache.NewMemoryChartCache(time.Hour)
	require.NoError(t, activeCache.Set(ctx, cachedChart(t, "Finance")))
	require.NoError(t, activeCache.Set(ctx, cachedChart(t, "Ops")))

	bus := eventbus.NewEventPublisher(logrus.New())
	RegisterEventHandlers(bus, activeCache)
	notifier := services.NewBusNotifier(bus)

	require.NoError(t, notifier.Notify(ctx, &events.ChartDecisionV1{
		TopicName:  events.TopicChartRejectedV1,
		Department: "Finance",
	}))
	require.Equal(t, 2, activeCache.Len())

	require.NoError(t, notifier.Notify(ctx, &events.ChartDecisionV1{
		TopicName:  events.TopicChartApprovedV1,
		Department: "Finance",
		Version:    "2.0",
	}))
	require.Equal(t, 1, activeCache.Len())
	_, ok, err := activeCache.Get(ctx, "Ops")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDecisionEventsHandler_LogsAssignmentEnd(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	ctx := composables.WithLogger(context.Background(), logrus.NewEntry(log))

	bus := eventbus.NewEventPublisher(log)
	RegisterEventHandlers(bus, nil)

	err := services.NewBusNotifier(bus).Notify(ctx, &events.AssignmentEndedV1{
		AssignmentID: uuid.New(),
		PositionID:   "CFO",
		EndDate:      time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "org assignment ended")
	require.Contains(t, buf.String(), "2024-02-29")
}
