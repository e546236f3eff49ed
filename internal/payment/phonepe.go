package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/obs"
	"github.com/fills-ai/payments-api/internal/resilience"
)

const (
	payPath         = "/checkout/v2/pay"
	orderStatusPath = "/checkout/v2/order/%s/status"

	maxUpstreamBody = 1 << 20
)

// PhonePe implements Provider against the PhonePe PG checkout v2 API.
type PhonePe struct {
	Tokens *TokenProvider
	Client *http.Client
}

// NewPhonePe wires a provider whose token exchange shares the same client.
func NewPhonePe(client *http.Client) *PhonePe {
	return &PhonePe{Tokens: NewTokenProvider(client), Client: client}
}

// Pay creates a hosted checkout for payload.
func (p *PhonePe) Pay(ctx context.Context, cfg config.Gateway, payload PaymentPayload) (UpstreamResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return UpstreamResponse{}, common.InternalError(fmt.Errorf("encode payment payload: %w", err))
	}
	return p.call(ctx, cfg, "pay", http.MethodPost, cfg.APIBaseURL+payPath, body)
}

// OrderStatus fetches the current state of a merchant order.
func (p *PhonePe) OrderStatus(ctx context.Context, cfg config.Gateway, merchantOrderID string) (UpstreamResponse, error) {
	endpoint := cfg.APIBaseURL + fmt.Sprintf(orderStatusPath, url.PathEscape(merchantOrderID))
	return p.call(ctx, cfg, "order_status", http.MethodGet, endpoint, nil)
}

func (p *PhonePe) call(ctx context.Context, cfg config.Gateway, name, method, endpoint string, body []byte) (UpstreamResponse, error) {
	if p == nil || p.Tokens == nil {
		return UpstreamResponse{}, common.InternalError(errors.New("payment provider not configured"))
	}
	tok, err := p.Tokens.AccessToken(ctx, cfg)
	if err != nil {
		return UpstreamResponse{}, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return UpstreamResponse{}, common.InternalError(fmt.Errorf("build %s request: %w", name, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", tok.AuthorizationHeader())

	start := time.Now()
	resp, err := p.client().Do(req)
	if err != nil {
		obs.ObserveUpstream(name, 0, time.Since(start))
		return UpstreamResponse{}, transportError(common.KindUpstreamAPI, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	obs.ObserveUpstream(name, resp.StatusCode, time.Since(start))
	if err != nil {
		return UpstreamResponse{}, transportError(common.KindUpstreamAPI, "read gateway response", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// the cached token was rejected; the next request fetches a fresh one
		p.Tokens.Invalidate()
		zerolog.Ctx(ctx).Warn().Str("endpoint", name).Msg("phonepe_token_rejected")
	}
	return UpstreamResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (p *PhonePe) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

// transportError classifies a failed round trip: an open breaker is 503, a
// timeout 504, anything else 500.
func transportError(kind common.Kind, message string, err error) *common.AppError {
	status := http.StatusInternalServerError
	var netErr net.Error
	switch {
	case errors.Is(err, resilience.ErrOpenCircuit):
		status = http.StatusServiceUnavailable
		message = "payment gateway temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		status = http.StatusGatewayTimeout
	}
	return common.NewAppError(kind, message, status, err)
}
