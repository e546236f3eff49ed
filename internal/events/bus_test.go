package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitDispatchesToNotifiers(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &captureNotifier{}
	second := &captureNotifier{}
	bus := events.Bus{
		Notifiers: []events.Notifier{first, nil, second},
		Now:       func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentCompleted, "ORDER_1", map[string]any{"amount": "100.00"})
	require.NoError(t, err)
	require.Equal(t, events.TopicPaymentCompleted, ev.Topic)
	require.Equal(t, "ORDER_1", ev.AggregateID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"amount":"100.00"}`, string(ev.Payload))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, ev.ID, second.events[0].ID)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("hook down")}
	after := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, after}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentFailed, "ORDER_2", nil)
	require.ErrorContains(t, err, "hook down")
	require.Len(t, after.events, 1, "later notifiers still run")
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), "  ", "ORDER_3", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicPaymentUnknown, "ORDER_3", "{not json")
	require.Error(t, err)
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	notifier := events.LogNotifier{Logger: zerolog.New(&buf)}
	bus := events.Bus{Notifiers: []events.Notifier{notifier}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentPending, "ORDER_4", json.RawMessage(`{"status":"PENDING"}`))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "payment_event", line["message"])
	require.Equal(t, "warn", line["level"])
	require.Equal(t, events.TopicPaymentPending, line["topic"])
	require.Equal(t, "ORDER_4", line["aggregate_id"])
	require.Equal(t, map[string]any{"status": "PENDING"}, line["payload"])
}
