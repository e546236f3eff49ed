package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/resilience"
)

func TestHTTPClientOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "transport-open",
		MinRequests: 2,
		OpenFor:     time.Hour,
	})
	client := resilience.NewHTTPClient(time.Second, breaker)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		_ = resp.Body.Close()
	}
	require.Equal(t, resilience.Open, breaker.State())

	_, err := client.Get(srv.URL)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerRejectedTotal.WithLabelValues("transport-open")))
}

func TestHTTPClientClientErrorsCountAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "transport-4xx", MinRequests: 1})
	client := resilience.NewHTTPClient(time.Second, breaker)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestHTTPClientWithoutBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := resilience.NewHTTPClient(0, nil)
	require.Equal(t, 30*time.Second, client.Timeout)
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
}
