package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fills-ai/payments-api/internal/events"
	"github.com/fills-ai/payments-api/internal/obs"
)

// Forwarder pushes payment events to a downstream endpoint as signed JSON. It
// makes a single attempt per event; a failed delivery is reported to the bus
// and is not retried.
type Forwarder struct {
	URL    string
	Secret string
	// Topics restricts forwarding; empty forwards every topic.
	Topics []string
	Client *http.Client
	Now    func() time.Time
}

type forwardedEvent struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"orderId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notify implements events.Notifier.
func (f *Forwarder) Notify(ctx context.Context, event events.Event) error {
	if f == nil || strings.TrimSpace(f.URL) == "" {
		return nil
	}
	if len(f.Topics) > 0 && !slices.Contains(f.Topics, event.Topic) {
		return nil
	}
	status, err := f.deliver(ctx, event)
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	if obs.PaymentEventForwardTotal != nil {
		obs.PaymentEventForwardTotal.WithLabelValues(event.Topic, result).Inc()
	}
	if err != nil {
		return fmt.Errorf("forward %s (status=%d): %w", event.Topic, status, err)
	}
	return nil
}

func (f *Forwarder) deliver(ctx context.Context, event events.Event) (int, error) {
	ctx, span := otel.Tracer("notify.Forwarder").Start(ctx, "Forwarder.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID.String()),
		attribute.String("event.topic", event.Topic),
	)

	if err := ValidateURL(f.URL); err != nil {
		span.RecordError(err)
		return 0, err
	}
	data := event.Payload
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	body, err := json.Marshal(forwardedEvent{
		EventID:     event.ID.String(),
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		Data:        data,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	ts := f.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "payments-api-events/1.0")
	req.Header.Set("X-Event-ID", event.ID.String())
	req.Header.Set("X-Event-Topic", event.Topic)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if f.Secret != "" {
		req.Header.Set("X-Signature", ComputeSignature(f.Secret, ts, event.ID.String(), body))
	}

	resp, err := f.client().Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (f *Forwarder) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return HTTPClient(5 * time.Second)
}

func (f *Forwarder) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// ValidateURL accepts https endpoints, and plain http only for loopback hosts.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("forward url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("forward url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http forwarding only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the signature sent in X-Signature: hex
// HMAC-SHA256 over "<ts>.<eventID>.<body>" keyed with the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by ComputeSignature in constant time.
func VerifySignature(secret string, ts int64, eventID string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, ts, eventID, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// HTTPClient returns an instrumented client for event forwarding.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
