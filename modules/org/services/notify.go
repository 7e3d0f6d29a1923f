package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/pkg/eventbus"
)

// Event is a notification delivered after a transaction commits.
type Event interface {
	Topic() string
}

// Notifier is the fire-and-forget collaborator told about assignment ends
// and approval decisions.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// BusNotifier publishes events on the in-process bus. Subscribers take
// (context.Context, *events.X) and may return an error.
type BusNotifier struct {
	Bus eventbus.EventBus
}

func NewBusNotifier(bus eventbus.EventBus) *BusNotifier {
	return &BusNotifier{Bus: bus}
}

func (n *BusNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Bus == nil {
		return nil
	}
	err := n.Bus.PublishE(ctx, event)
	if errors.Is(err, eventbus.ErrNoSubscribers) {
		return nil
	}
	return err
}

// notify delivers events once their transaction has committed. Failures are
// logged and counted, never returned.
func notify(ctx context.Context, n Notifier, evts ...Event) {
	if n == nil {
		return
	}
	for _, e := range evts {
		if err := n.Notify(ctx, e); err != nil {
			recordNotifyFailure(e.Topic())
			logWithFields(ctx, logrus.WarnLevel, "org notification failed", logrus.Fields{
				"topic": e.Topic(),
				"error": err.Error(),
			})
		}
	}
}
