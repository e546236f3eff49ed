package payment

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/events"
	"github.com/fills-ai/payments-api/internal/obs"
)

// Gateway event names delivered to the webhook.
const (
	EventOrderCompleted = "checkout.order.completed"
	EventOrderFailed    = "checkout.order.failed"
	EventPaymentSuccess = "PAYMENT_SUCCESS"
	EventPaymentFailed  = "PAYMENT_FAILED"
	EventPaymentDecline = "PAYMENT_DECLINED"
	EventPaymentPending = "PAYMENT_PENDING"

	webhookVersion = "1.0.0"
)

// Outcome is the classification of a webhook event.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
	OutcomeUnknown   Outcome = "unknown"
)

// Topic maps the outcome to the event bus topic.
func (o Outcome) Topic() string {
	switch o {
	case OutcomeCompleted:
		return events.TopicPaymentCompleted
	case OutcomeFailed:
		return events.TopicPaymentFailed
	case OutcomePending:
		return events.TopicPaymentPending
	default:
		return events.TopicPaymentUnknown
	}
}

// Classify maps a gateway event name to an outcome.
func Classify(event string) Outcome {
	switch event {
	case EventOrderCompleted, EventPaymentSuccess:
		return OutcomeCompleted
	case EventOrderFailed, EventPaymentFailed, EventPaymentDecline:
		return OutcomeFailed
	case EventPaymentPending:
		return OutcomePending
	default:
		return OutcomeUnknown
	}
}

// SupportedEvents lists the event names the webhook recognises.
func SupportedEvents() []string {
	return []string{
		EventOrderCompleted,
		EventOrderFailed,
		EventPaymentSuccess,
		EventPaymentFailed,
		EventPaymentDecline,
		EventPaymentPending,
	}
}

// WebhookEvent is an inbound callback. Older gateway versions send type and
// payload instead of event and data.
type WebhookEvent struct {
	Event string
	Data  map[string]any
}

// UnmarshalJSON accepts both field spellings.
func (e *WebhookEvent) UnmarshalJSON(b []byte) error {
	var raw struct {
		Event   string         `json:"event"`
		Type    string         `json:"type"`
		Data    map[string]any `json:"data"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Event = strings.TrimSpace(raw.Event)
	if e.Event == "" {
		e.Event = strings.TrimSpace(raw.Type)
	}
	e.Data = raw.Data
	if e.Data == nil {
		e.Data = raw.Payload
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return nil
}

// WebhookDetails are the fields pulled out of a callback for logging and hooks.
type WebhookDetails struct {
	Event         string  `json:"event"`
	Outcome       Outcome `json:"outcome"`
	OrderID       string  `json:"orderId"`
	TransactionID string  `json:"transactionId"`
	Amount        string  `json:"amount"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"paymentMethod"`
}

// ExtractDetails normalises the several payload shapes the gateway uses.
func ExtractDetails(ev WebhookEvent) WebhookDetails {
	data := ev.Data
	amount := "N/A"
	if paise, ok := firstNumber(data, "amount"); ok && paise != 0 {
		amount = fmt.Sprintf("%.2f", paise/100)
	}
	return WebhookDetails{
		Event:         ev.Event,
		Outcome:       Classify(ev.Event),
		OrderID:       stringOrDefault(firstString(data, "merchantOrderId", "orderId", "order_id"), "UNKNOWN"),
		TransactionID: stringOrDefault(firstString(data, "transactionId", "transaction_id", "id", "paymentDetails.0.transactionId"), "N/A"),
		Amount:        amount,
		Status:        stringOrDefault(firstString(data, "status", "state"), ev.Event),
		PaymentMethod: stringOrDefault(firstString(data, "paymentMethod", "payment_method", "paymentDetails.0.paymentMode"), "PhonePe"),
	}
}

// WebhookAck acknowledges a processed callback.
type WebhookAck struct {
	Success       bool   `json:"success"`
	Received      bool   `json:"received"`
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Event         string `json:"event"`
	ProcessedAt   string `json:"processedAt"`
}

// WebhookDescriptor is returned by GET on the webhook path.
type WebhookDescriptor struct {
	Message    string   `json:"message"`
	Status     string   `json:"status"`
	Configured bool     `json:"configured"`
	Events     []string `json:"events"`
	Timestamp  string   `json:"timestamp"`
	Version    string   `json:"version"`
}

// Webhook receives gateway callbacks authenticated with HTTP Basic credentials.
type Webhook struct {
	Credentials WebhookCredentialSource
	Bus         *events.Bus
	Now         func() time.Time
}

// Receive handles POST /api/phonepe/webhook.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	creds := h.credentials()
	if !creds.Configured() {
		recordWebhook("none", "unconfigured")
		logger.Error().Msg("phonepe_webhook_unconfigured")
		common.WriteError(w, common.NewAppError(common.KindConfiguration, "webhook credentials not configured", http.StatusInternalServerError, nil))
		return
	}
	if !validBasicAuth(r.Header.Get("Authorization"), creds.Username, creds.Password) {
		recordWebhook("none", "unauthorized")
		logger.Warn().Str("client_ip", common.ClientIP(r)).Msg("phonepe_webhook_unauthorized")
		common.WriteError(w, common.AuthenticationError("Unauthorized"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		recordWebhook("none", "invalid_body")
		common.WriteError(w, common.ValidationError("unable to read payload"))
		return
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		recordWebhook("none", "invalid_body")
		common.WriteError(w, common.ValidationError("invalid webhook payload"))
		return
	}

	details := ExtractDetails(ev)
	logger.Info().
		Str("event", details.Event).
		Str("outcome", string(details.Outcome)).
		Str("order_id", details.OrderID).
		Str("transaction_id", details.TransactionID).
		Str("amount", details.Amount).
		Str("status", details.Status).
		Str("payment_method", details.PaymentMethod).
		Msg("phonepe_webhook_received")

	result := "ok"
	if h.Bus != nil {
		if _, err := h.Bus.Emit(ctx, details.Outcome.Topic(), details.OrderID, details); err != nil {
			result = "notifier_error"
			logger.Error().Err(err).Str("order_id", details.OrderID).Msg("phonepe_webhook_notify_failed")
		}
	}
	recordWebhook(string(details.Outcome), result)

	common.JSON(w, http.StatusOK, WebhookAck{
		Success:       true,
		Received:      true,
		OrderID:       details.OrderID,
		TransactionID: details.TransactionID,
		Event:         details.Event,
		ProcessedAt:   h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Describe handles GET /api/phonepe/webhook.
func (h *Webhook) Describe(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, WebhookDescriptor{
		Message:    "PhonePe Webhook Endpoint",
		Status:     "active",
		Configured: h.credentials().Configured(),
		Events:     SupportedEvents(),
		Timestamp:  h.now().UTC().Format(time.RFC3339Nano),
		Version:    webhookVersion,
	})
}

func (h *Webhook) credentials() config.WebhookCredentials {
	if h == nil || h.Credentials == nil {
		return config.WebhookCredentials{}
	}
	return h.Credentials.Webhook()
}

func (h *Webhook) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// validBasicAuth compares the whole header against the expected Basic value in
// constant time.
func validBasicAuth(header, username, password string) bool {
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}

func recordWebhook(outcome, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(outcome, result).Inc()
	}
}
