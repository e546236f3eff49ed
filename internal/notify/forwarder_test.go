package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/events"
	"github.com/fills-ai/payments-api/internal/notify"
)

func sampleEvent(topic string) events.Event {
	return events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: "ORDER_1_0001",
		Payload:     json.RawMessage(`{"orderId":"ORDER_1_0001","amount":"499.99"}`),
		OccurredAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestForwarderSignsAndPosts(t *testing.T) {
	type recorded struct {
		req  *http.Request
		body []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{req: r, body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	fixed := time.Unix(1740823200, 0)
	fwd := &notify.Forwarder{URL: srv.URL, Secret: "secret", Client: srv.Client(), Now: func() time.Time { return fixed }}
	event := sampleEvent(events.TopicPaymentCompleted)
	require.NoError(t, fwd.Notify(context.Background(), event))

	record := <-received
	req := record.req
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, event.ID.String(), req.Header.Get("X-Event-ID"))
	require.Equal(t, events.TopicPaymentCompleted, req.Header.Get("X-Event-Topic"))
	ts, err := strconv.ParseInt(req.Header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, fixed.Unix(), ts)
	require.True(t, notify.VerifySignature("secret", ts, event.ID.String(), record.body, req.Header.Get("X-Signature")))
	require.False(t, notify.VerifySignature("other", ts, event.ID.String(), record.body, req.Header.Get("X-Signature")))

	var body map[string]any
	require.NoError(t, json.Unmarshal(record.body, &body))
	require.Equal(t, "ORDER_1_0001", body["orderId"])
	require.Equal(t, events.TopicPaymentCompleted, body["topic"])
	require.Equal(t, "499.99", body["data"].(map[string]any)["amount"])
}

func TestForwarderTopicFilter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	fwd := &notify.Forwarder{URL: srv.URL, Topics: []string{events.TopicPaymentCompleted}, Client: srv.Client()}
	require.NoError(t, fwd.Notify(context.Background(), sampleEvent(events.TopicPaymentFailed)))
	require.Zero(t, hits.Load())
	require.NoError(t, fwd.Notify(context.Background(), sampleEvent(events.TopicPaymentCompleted)))
	require.Equal(t, int32(1), hits.Load())
}

func TestForwarderReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	fwd := &notify.Forwarder{URL: srv.URL, Client: srv.Client()}
	err := fwd.Notify(context.Background(), sampleEvent(events.TopicPaymentFailed))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=502")
}

func TestForwarderDisabledWithoutURL(t *testing.T) {
	var fwd *notify.Forwarder
	require.NoError(t, fwd.Notify(context.Background(), sampleEvent(events.TopicPaymentCompleted)))
	require.NoError(t, (&notify.Forwarder{}).Notify(context.Background(), sampleEvent(events.TopicPaymentCompleted)))
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, notify.ValidateURL("https://hooks.example.com/payments"))
	require.NoError(t, notify.ValidateURL("http://localhost:9000/hook"))
	require.Error(t, notify.ValidateURL("http://hooks.example.com/payments"))
	require.Error(t, notify.ValidateURL("ftp://hooks.example.com"))
	require.Error(t, notify.ValidateURL("https://"))
}

func TestForwarderFeedsBus(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-Event-Topic")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	bus := &events.Bus{Notifiers: []events.Notifier{&notify.Forwarder{URL: srv.URL, Client: srv.Client()}}}
	_, err := bus.Emit(context.Background(), events.TopicPaymentPending, "ORDER_2", map[string]string{"status": "PENDING"})
	require.NoError(t, err)
	require.Equal(t, events.TopicPaymentPending, <-received)
}
