package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/engineroom-pricing/internal/common"
	"github.com/noah-isme/engineroom-pricing/internal/config"
	"github.com/noah-isme/engineroom-pricing/internal/health"
	"github.com/noah-isme/engineroom-pricing/internal/lock"
	"github.com/noah-isme/engineroom-pricing/internal/notify"
	"github.com/noah-isme/engineroom-pricing/internal/obs"
	"github.com/noah-isme/engineroom-pricing/internal/pricing"
	"github.com/noah-isme/engineroom-pricing/internal/quote"
	"github.com/noah-isme/engineroom-pricing/internal/ratelimit"
	"github.com/noah-isme/engineroom-pricing/internal/resilience"
	"github.com/noah-isme/engineroom-pricing/internal/security"
	"github.com/noah-isme/engineroom-pricing/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "engineroom")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "engineroom-pricing",
			ServiceVersion: envOrDefault("APP_VERSION", "dev"),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  sampling,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		redisClient *redis.Client
		store       session.Store
		limiter     ratelimit.Limiter
		guard       quote.SubmitGuard
	)
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		store = session.NewRedisStore(redisClient, cfg.SessionTTL, "quote:current:")
		limiter = ratelimit.SlidingRedis{Client: redisClient, Prefix: "ratelimit:submit:"}
		guard = lock.Locker{R: redisClient, Prefix: "lock:"}
	} else {
		logger.Warn().Msg("REDIS_URL not set, keeping sessions and rate limits in memory")
		store = session.NewMemoryStore(cfg.SessionTTL)
		limiter = ratelimit.NewMemory()
		guard = &lock.Local{}
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("quote-webhook").
		WithLogger(logger)
	var submitter notify.Submitter
	if cfg.WebhookConfigured() {
		submitter = &notify.Webhook{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
			HTTP: &resilience.HTTPClient{
				Client:  notify.NewHTTPClient(0, cfg.WebhookAllowInsecureTLS),
				Breaker: breaker,
				Timeout: cfg.WebhookTimeout,
			},
		}
	} else {
		logger.Warn().Msg("WEBHOOK_URL not set, quote submission disabled")
	}

	var csrf *security.CSRF
	if cfg.CSRFEnabled {
		csrf = &security.CSRF{Secure: cfg.SessionCookieSecure}
	}

	quoteHandler := quote.NewHandler(quote.HandlerConfig{
		Engine:    pricing.NewEngine(),
		Store:     store,
		Cookies:   session.Cookies{Name: cfg.SessionCookieName, Secure: cfg.SessionCookieSecure, TTL: cfg.SessionTTL},
		Submitter: submitter,
		Guard:     guard,
		GuardTTL:  cfg.WebhookTimeout + 5*time.Second,
		CSRF:      csrf,
		Logger:    logger,

		MinClients: cfg.MinClients,
		MaxClients: cfg.MaxClients,
		ClearAfter: cfg.StatusClearAfter,
	})

	submitLimit := ratelimit.Handler{
		Limiter:    limiter,
		Rate:       ratelimit.Rate{Max: cfg.SubmitRateLimitMax, Window: cfg.SubmitRateLimitWindow},
		Key:        ratelimit.ByClientIP,
		ClearAfter: cfg.StatusClearAfter,
		OnError:    func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: "idem:submit:"}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.SecurityHeadersEnabled,
		EnableHSTS:            cfg.AppEnv == "production",
		ContentSecurityPolicy: security.DefaultContentSecurityPolicy,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Status-Text", "X-Status-Type", "X-Status-Clear-After-Ms", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Deps:    readinessDeps(store, breaker, cfg.WebhookConfigured()),
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Group(func(app chi.Router) {
		app.Use(security.BodyLimit{Max: cfg.BodyLimitBytes, ClearAfter: cfg.StatusClearAfter}.Middleware)
		if csrf != nil {
			app.Use(csrf.Middleware)
		}
		quoteHandler.Register(app, submitLimit.Middleware, idem.Middleware)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("webhook", cfg.WebhookConfigured()).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func connectRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func readinessDeps(store session.Store, breaker *resilience.Breaker, webhook bool) []health.Dependency {
	deps := []health.Dependency{{Name: "sessions", Check: store.Ping}}
	if webhook {
		deps = append(deps, health.Dependency{Name: "webhook", Check: func(context.Context) error {
			if breaker.State() == resilience.Open {
				return resilience.ErrOpenCircuit
			}
			return nil
		}})
	}
	return deps
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

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
