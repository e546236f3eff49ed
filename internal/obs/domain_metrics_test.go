package obs_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("fills", registry)
	obs.MustRegisterDomainMetrics("fills", registry)

	require.NotNil(t, obs.PaymentInitiateTotal)
	require.NotNil(t, obs.TokenRequestsTotal)

	obs.ObserveUpstream("status", 200, 15*time.Millisecond)
	obs.ObserveUpstream("status", 0, time.Millisecond)
	require.Equal(t, 2, testutil.CollectAndCount(obs.UpstreamDuration))
}

func TestParseBucketsCSVSkipsInvalid(t *testing.T) {
	require.Equal(t, []float64{5, 12.5}, obs.ParseBucketsCSV("5, abc, -1, 12.5,"))
	require.Nil(t, obs.ParseBucketsCSV("  "))
	require.Equal(t, []float64{10, 50, 250}, obs.ParseBucketsCSV("250,10,50,10"))
}
