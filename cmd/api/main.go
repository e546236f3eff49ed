package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/events"
	"github.com/fills-ai/payments-api/internal/health"
	"github.com/fills-ai/payments-api/internal/notify"
	"github.com/fills-ai/payments-api/internal/obs"
	"github.com/fills-ai/payments-api/internal/payment"
	"github.com/fills-ai/payments-api/internal/ratelimit"
	"github.com/fills-ai/payments-api/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	zerolog.DefaultContextLogger = &logger

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "payments-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	resolver := config.NewEnvResolver()
	if _, err := resolver.Gateway(); err != nil {
		// credentials are read per request, so a late fix needs no restart
		logger.Warn().Err(err).Msg("payment gateway not configured")
	}

	probes := map[string]health.Probe{"gateway": health.GatewayProbe(resolver)}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter("payments")
	if cfg.RedisURL != "" {
		redisClient, err := newRedis(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		limiter = ratelimit.RedisLimiter{Client: redisClient, Prefix: "payments:rl:"}
		probes["redis"] = health.RedisProbe(redisClient)
	}

	var breaker *resilience.Breaker
	if cfg.BreakerEnabled {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Target:       "phonepe",
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
		}).WithLogger(logger)
	}
	provider := payment.NewPhonePe(resilience.NewHTTPClient(cfg.UpstreamTimeout, breaker))
	paymentSvc := payment.NewService(resolver, provider, cfg.OrderPrefix)

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if cfg.EventsForwardURL != "" {
		if err := notify.ValidateURL(cfg.EventsForwardURL); err != nil {
			logger.Fatal().Err(err).Msg("invalid PAYMENT_EVENTS_FORWARD_URL")
		}
		bus.Notifiers = append(bus.Notifiers, &notify.Forwarder{
			URL:    cfg.EventsForwardURL,
			Secret: cfg.EventsForwardSecret,
			Topics: cfg.EventsForwardTopics,
			Client: notify.HTTPClient(cfg.EventsForwardTimeout),
		})
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	handler := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		metrics:  httpMetrics,
		tracing:  tracingEnabled,
		limiter:  limiter,
		payments: &payment.Handler{Svc: paymentSvc},
		webhook:  &payment.Webhook{Credentials: resolver, Bus: bus},
		health:   health.Handler{Probes: probes, Timeout: 500 * time.Millisecond},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	logger.Info().Msg("shutdown requested")
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func newRedis(cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
