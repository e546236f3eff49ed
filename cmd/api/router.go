package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/health"
	"github.com/fills-ai/payments-api/internal/obs"
	"github.com/fills-ai/payments-api/internal/payment"
	"github.com/fills-ai/payments-api/internal/ratelimit"
	"github.com/fills-ai/payments-api/internal/security"
)

// routerDeps carries everything the HTTP surface needs. Nil collaborators
// disable the matching feature.
type routerDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *obs.HTTPMetrics
	tracing  bool
	limiter  ratelimit.Limiter
	payments *payment.Handler
	webhook  *payment.Webhook
	health   health.Handler
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(common.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.metrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production", HSTSMaxAge: 31536000}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", obs.MetricsHandler(nil))
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	r.Get("/health/live", d.health.Live)
	r.Get("/health/ready", d.health.Ready)

	r.Route("/api/phonepe", func(p chi.Router) {
		p.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		initiate := p.With()
		if d.limiter != nil && cfg.InitiateRateMax > 0 {
			limit := ratelimit.Handler{
				Limiter: d.limiter,
				Config: ratelimit.Config{
					Key:    ratelimit.ClientKey("initiate"),
					Window: cfg.InitiateRateWindow,
					Max:    cfg.InitiateRateMax,
				},
				OnError: func(err error) {
					d.logger.Warn().Err(err).Msg("rate limiter unavailable")
				},
			}
			initiate = p.With(limit.Middleware)
		}
		initiate.Post("/initiate", d.payments.Initiate)
		p.Get("/status", d.payments.Status)
		p.Get("/webhook", d.webhook.Describe)
		p.Post("/webhook", d.webhook.Receive)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

// protectPprof gates the profiler behind basic auth; without a user it is
// left open, which is only expected in local development.
func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
