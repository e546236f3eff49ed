package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("fills", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Route("/health", func(h chi.Router) {
		h.Use(obs.RoutePatternMiddleware, obs.HTTPObs{Metrics: metrics}.Middleware)
		h.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsResolveChiPattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("fills", nil, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/phonepe/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/phonepe/status?merchantOrderId=ORDER_1", nil))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/phonepe/status", "200")))
}

func TestRequestLoggerInjectsScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var sawScoped bool
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/phonepe/initiate", func(w http.ResponseWriter, req *http.Request) {
		zerolog.Ctx(req.Context()).Info().Msg("inside")
		sawScoped = true
		w.WriteHeader(http.StatusBadGateway)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/phonepe/initiate", nil))
	require.True(t, sawScoped)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))
	require.NotEmpty(t, inner["request_id"])
	require.Equal(t, inner["request_id"], access["request_id"])
	require.Equal(t, "http_request", access["message"])
	require.Equal(t, "error", access["level"])
	require.Equal(t, float64(http.StatusBadGateway), access["status"])
	require.Equal(t, "/api/phonepe/initiate", access["route"])
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	recorder := obs.NewStatusRecorder(rr)
	_, _ = recorder.Write([]byte("ok"))
	recorder.WriteHeader(http.StatusInternalServerError)

	require.Equal(t, http.StatusOK, recorder.Status())
	require.Equal(t, int64(2), recorder.BytesWritten())
}
