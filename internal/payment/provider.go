package payment

import (
	"context"

	"github.com/fills-ai/payments-api/internal/config"
)

// UpstreamResponse is a raw gateway reply. Interpretation is left to the caller
// because the gateway reports failures both through status codes and body fields.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the gateway answered with a 2xx status.
func (r UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Provider abstracts the payment gateway operations used by the service.
type Provider interface {
	Pay(ctx context.Context, cfg config.Gateway, payload PaymentPayload) (UpstreamResponse, error)
	OrderStatus(ctx context.Context, cfg config.Gateway, merchantOrderID string) (UpstreamResponse, error)
}

// ConfigResolver resolves gateway credentials for a single request.
type ConfigResolver interface {
	Gateway() (config.Gateway, error)
}

// WebhookCredentialSource supplies the Basic-Auth pair expected on callbacks.
type WebhookCredentialSource interface {
	Webhook() config.WebhookCredentials
}
