package resilience

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport guards an upstream behind a Breaker. Transport failures and 5xx
// responses count against the breaker; anything else counts as success.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	if !t.Breaker.Allow(ctx) {
		BreakerRejectedTotal.WithLabelValues(t.Breaker.cfg.Target).Inc()
		return nil, ErrOpenCircuit
	}
	resp, err := base.RoundTrip(req)
	t.Breaker.Report(ctx, err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}

// NewHTTPClient returns a traced client bounded by timeout. A nil breaker
// disables circuit breaking.
func NewHTTPClient(timeout time.Duration, breaker *Breaker) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var rt http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if breaker != nil {
		rt = &Transport{Base: rt, Breaker: breaker}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(rt),
	}
}
