package eventbus

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type chartEvent struct {
	ChartID string
}

type otherEvent struct{}

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestPublish_NoMatchingSubscribersLogsWarning(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	bus.Subscribe(func(ctx context.Context, e *chartEvent) {
		t.Error("should not be called")
	})

	bus.Publish(context.Background(), &otherEvent{})

	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublish_DeliversToMatchingHandler(t *testing.T) {
	log, _ := bufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)

	var got string
	bus.Subscribe(func(ctx context.Context, e *chartEvent) {
		got = e.ChartID
	})
	bus.Publish(context.Background(), &chartEvent{ChartID: "c-1"})

	require.Equal(t, "c-1", got)
}

func TestPublish_RecoversPanicAndContinues(t *testing.T) {
	log, buf := bufferedLogger(logrus.ErrorLevel)
	bus := NewEventPublisher(log)

	calls := 0
	bus.Subscribe(func(e *chartEvent) { calls++ })
	bus.Subscribe(func(e *chartEvent) { panic("boom") })
	bus.Subscribe(func(e *chartEvent) { calls++ })

	require.NotPanics(t, func() { bus.Publish(&chartEvent{}) })
	require.Equal(t, 2, calls)
	require.Contains(t, buf.String(), "panicked")
	require.Contains(t, buf.String(), "boom")
}

func TestPublish_LogsHandlerError(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	bus.Subscribe(func(e *chartEvent) error { return errors.New("smtp down") })

	bus.Publish(&chartEvent{})

	require.Contains(t, buf.String(), "smtp down")
}

func TestPublishE(t *testing.T) {
	bus := NewEventPublisher(nil)
	require.ErrorIs(t, bus.PublishE(&chartEvent{}), ErrNoSubscribers)

	failure := errors.New("handler failed")
	bus.Subscribe(func(e *chartEvent) error { return failure })
	bus.Subscribe(func(e *chartEvent) (int, error) { return 0, nil })
	bus.Subscribe(func(e *chartEvent) { panic("boom") })

	err := bus.PublishE(&chartEvent{})
	require.ErrorIs(t, err, failure)
	require.ErrorIs(t, err, ErrInvalidHandlerReturn)
	require.ErrorContains(t, err, "panicked")
}

func TestSubscribeUnsubscribeClear(t *testing.T) {
	bus := NewEventPublisher(nil)
	h1 := func(e *chartEvent) {}
	h2 := func(e *otherEvent) {}
	bus.Subscribe(h1)
	bus.Subscribe(h2)
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Unsubscribe(h1)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
	require.Panics(t, func() { bus.Subscribe("not a func") })
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *chartEvent) {}, []any{&chartEvent{}}))
	require.False(t, MatchSignature(func(e *chartEvent) {}, []any{&otherEvent{}}))
	require.False(t, MatchSignature(func(e *chartEvent) {}, []any{}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *chartEvent) {}, []any{nil}))
	require.False(t, MatchSignature(func(n int) {}, []any{nil}))
	require.False(t, MatchSignature("x", []any{}))
}
