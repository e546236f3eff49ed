package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness; the server flips it off when draining.
func SetReady(v bool) {
	ready.Store(v)
}

// Probe checks a single dependency.
type Probe func(ctx context.Context) error

// RedisProbe pings the rate-limit store.
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// GatewayProbe verifies the gateway credentials resolve. No network call is made.
func GatewayProbe(resolver interface {
	Gateway() (config.Gateway, error)
}) Probe {
	return func(context.Context) error {
		_, err := resolver.Gateway()
		return err
	}
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := h.Probes[name](ctx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
