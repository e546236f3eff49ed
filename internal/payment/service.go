package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/obs"
)

const (
	msgInvalidAmount   = "Invalid amount. Amount must be a positive number."
	msgRedirectMissing = "Redirect URL is required."
	msgRedirectInvalid = "Redirect URL must be a valid URL."
	msgInitiated       = "Payment initiated successfully"
)

// InitiateRequest is the checkout request accepted from the website. Amount is
// in rupees and may carry paise as a fraction.
type InitiateRequest struct {
	Amount      *float64 `json:"amount" validate:"required,gt=0"`
	RedirectURL string   `json:"redirectUrl" validate:"required,url"`
	Message     string   `json:"message,omitempty" validate:"omitempty,max=256"`
}

// InitiateResult is returned to the caller once the gateway accepted the checkout.
type InitiateResult struct {
	Success         bool   `json:"success"`
	CheckoutURL     string `json:"checkoutUrl"`
	MerchantOrderID string `json:"merchantOrderId"`
	UpstreamOrderID string `json:"upstreamOrderId,omitempty"`
	Amount          int64  `json:"amount"`
	Message         string `json:"message"`
}

// StatusResult wraps the gateway's order status body verbatim.
type StatusResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Service coordinates checkout initiation and status lookups.
type Service struct {
	Resolver    ConfigResolver
	Provider    Provider
	OrderPrefix string
	Now         func() time.Time

	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(resolver ConfigResolver, provider Provider, orderPrefix string) *Service {
	return &Service{
		Resolver:    resolver,
		Provider:    provider,
		OrderPrefix: orderPrefix,
		Now:         time.Now,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Initiate validates the request, creates a checkout with the gateway and
// returns the hosted checkout URL. Validation failures never reach the gateway.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (result InitiateResult, err error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Initiate")
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := resultLabel(err)
		span.SetAttributes(
			attribute.String("payment.initiate.result", outcome),
			attribute.Float64("payment.initiate.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if result.MerchantOrderID != "" {
			span.SetAttributes(attribute.String("payment.merchant_order_id", result.MerchantOrderID))
		}
		if obs.PaymentInitiateTotal != nil {
			obs.PaymentInitiateTotal.WithLabelValues(outcome).Inc()
		}
	}()

	paise, err := s.validateInitiate(req)
	if err != nil {
		return InitiateResult{}, err
	}
	if s.Resolver == nil || s.Provider == nil {
		return InitiateResult{}, common.InternalError(errors.New("payment service not configured"))
	}
	cfg, err := s.Resolver.Gateway()
	if err != nil {
		return InitiateResult{}, common.ConfigurationError(err)
	}

	orderID := NewMerchantOrderID(s.OrderPrefix, s.now())
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Payment for order " + orderID
	}
	payload := BuildPayload(PayloadParams{
		MerchantOrderID: orderID,
		Amount:          paise,
		RedirectURL:     strings.TrimSpace(req.RedirectURL),
		Message:         message,
	})

	logger := zerolog.Ctx(ctx).With().Str("merchant_order_id", orderID).Logger()
	logger.Info().Int64("amount_paise", paise).Msg("phonepe_initiate")

	resp, err := s.Provider.Pay(ctx, cfg, payload)
	if err != nil {
		return InitiateResult{}, err
	}
	body, err := decodeObject(resp)
	if err != nil {
		logger.Error().Int("upstream_status", resp.StatusCode).Msg("phonepe_initiate_unparsable")
		return InitiateResult{}, err
	}
	if err := upstreamFailure(resp, body, "Failed to initiate payment"); err != nil {
		logger.Warn().Int("upstream_status", resp.StatusCode).Str("code", err.Code).Msg("phonepe_initiate_rejected")
		return InitiateResult{}, err
	}

	checkoutURL := firstString(body, "redirectUrl", "data.instrumentResponse.redirectInfo.url", "data.redirectUrl")
	if checkoutURL == "" {
		return InitiateResult{}, common.ResponseShapeError("checkout URL missing", body)
	}
	return InitiateResult{
		Success:         true,
		CheckoutURL:     checkoutURL,
		MerchantOrderID: orderID,
		UpstreamOrderID: firstString(body, "orderId", "data.orderId", "data.transactionId"),
		Amount:          paise,
		Message:         msgInitiated,
	}, nil
}

// Status returns the gateway's view of a merchant order.
func (s *Service) Status(ctx context.Context, merchantOrderID string) (result StatusResult, err error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Status")
	defer span.End()
	defer func() {
		outcome := resultLabel(err)
		span.SetAttributes(attribute.String("payment.status.result", outcome))
		if obs.PaymentStatusTotal != nil {
			obs.PaymentStatusTotal.WithLabelValues(outcome).Inc()
		}
	}()

	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return StatusResult{}, common.ValidationError("Order ID is required")
	}
	span.SetAttributes(attribute.String("payment.merchant_order_id", merchantOrderID))
	if s.Resolver == nil || s.Provider == nil {
		return StatusResult{}, common.InternalError(errors.New("payment service not configured"))
	}
	cfg, err := s.Resolver.Gateway()
	if err != nil {
		return StatusResult{}, common.ConfigurationError(err)
	}

	resp, err := s.Provider.OrderStatus(ctx, cfg, merchantOrderID)
	if err != nil {
		return StatusResult{}, err
	}
	// Any JSON document is relayed; only error replies are inspected for fields.
	if !json.Valid(resp.Body) {
		return StatusResult{}, invalidUpstreamResponse(resp)
	}
	if !resp.OK() {
		var details any
		_ = json.Unmarshal(resp.Body, &details)
		body, _ := details.(map[string]any)
		return StatusResult{}, common.UpstreamAPIError(stringOrDefault(firstString(body, "message"), "Failed to fetch payment status"), resp.StatusCode, nil).
			WithCode(firstString(body, "errorCode", "code")).
			WithDetails(details)
	}
	return StatusResult{Success: true, Data: json.RawMessage(resp.Body)}, nil
}

func (s *Service) validateInitiate(req InitiateRequest) (int64, error) {
	v := s.validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	if err := v.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return 0, validationMessage(fieldErrs[0])
		}
		return 0, common.ValidationError(err.Error())
	}
	paise := RupeesToPaise(*req.Amount)
	if !ValidateAmount(float64(paise)) {
		return 0, common.ValidationError(msgInvalidAmount)
	}
	return paise, nil
}

func validationMessage(fe validator.FieldError) *common.AppError {
	switch fe.Field() {
	case "Amount":
		return common.ValidationError(msgInvalidAmount)
	case "RedirectURL":
		if fe.Tag() == "required" {
			return common.ValidationError(msgRedirectMissing)
		}
		return common.ValidationError(msgRedirectInvalid)
	case "Message":
		return common.ValidationError("Message must be at most 256 characters.")
	default:
		return common.ValidationError(fe.Error())
	}
}

// decodeObject parses a gateway reply that must be a JSON object.
func decodeObject(resp UpstreamResponse) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil || body == nil {
		return nil, invalidUpstreamResponse(resp)
	}
	return body, nil
}

func invalidUpstreamResponse(resp UpstreamResponse) *common.AppError {
	return common.ResponseShapeError("invalid upstream response", map[string]any{
		"raw":            string(resp.Body),
		"upstreamStatus": resp.StatusCode,
	})
}

// upstreamFailure reports the gateway rejecting a call. Besides non-2xx
// statuses the gateway signals failure with success:false, an errorCode, or a
// code without success:true.
func upstreamFailure(resp UpstreamResponse, body map[string]any, fallback string) *common.AppError {
	success, hasSuccess := body["success"].(bool)
	_, hasErrorCode := body["errorCode"]
	_, hasCode := body["code"]

	failed := !resp.OK() ||
		(hasSuccess && !success) ||
		hasErrorCode ||
		(hasCode && !(hasSuccess && success))
	if !failed {
		return nil
	}
	status := resp.StatusCode
	if resp.OK() {
		status = http.StatusBadRequest
	}
	return common.UpstreamAPIError(stringOrDefault(firstString(body, "message"), fallback), status, nil).
		WithCode(firstString(body, "errorCode", "code")).
		WithDetails(body)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(common.KindOf(err)))
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
