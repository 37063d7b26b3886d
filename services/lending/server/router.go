package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/observability"
)

const requestIDHeader = "X-Request-ID"

// RouterConfig carries the middleware shared by every route.
type RouterConfig struct {
	Auth      *Authenticator
	RateLimit *RateLimiter
	// Journal, when set, is served at GET /v1/events.
	Journal *Journal
	// Tracing wraps the router in otelhttp.
	Tracing bool
}

// Handler builds the HTTP API of the service.
func (s *Service) Handler(cfg RouterConfig) http.Handler {
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{Disabled: true}, s.logger)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observeRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(ScopeRead))
			r.Use(cfg.RateLimit.Middleware)
			r.Get("/status", s.status)
			r.Get("/reserves", s.reserves)
			r.Get("/reserves/{asset}", s.reserve)
			r.Get("/accounts/{user}", s.accountData)
			r.Get("/accounts/{user}/positions", s.positions)
			if cfg.Journal != nil {
				r.Get("/events", cfg.Journal.handler)
			}
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(ScopeWrite))
			r.Use(cfg.RateLimit.Middleware)
			r.Post("/supply", s.supply)
			r.Post("/withdraw", s.withdraw)
			r.Post("/borrow", s.borrow)
			r.Post("/repay", s.repay)
			r.Post("/collateral", s.setCollateral)
			r.Post("/unique/supply", s.supplyUnique)
			r.Post("/unique/withdraw", s.withdrawUnique)
			r.Post("/unique/collateral", s.setUniqueCollateral)
			r.Post("/liquidations", s.liquidate)
			r.Post("/liquidations/unique", s.liquidateUnique)
			r.Post("/auctions/start", s.startAuction)
			r.Post("/auctions/end", s.endAuction)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware(ScopeAdmin))
			r.Use(cfg.RateLimit.Middleware)
			r.Post("/reserves", s.initReserve)
			r.Delete("/reserves/{asset}", s.dropReserve)
			r.Put("/reserves/{asset}/collateral", s.configureCollateral)
			r.Put("/reserves/{asset}/{field}", s.setReserveField)
			r.Post("/treasury/mint", s.mintToTreasury)
			r.Put("/prices/{asset}", s.setPrice(false))
			r.Put("/floor-prices/{asset}", s.setPrice(true))
			r.Put("/pause", s.setModulePause)
		})
	})

	if cfg.Tracing {
		return otelhttp.NewHandler(r, "lendingd")
	}
	return r
}

// requestID echoes the caller supplied request id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observeRequests records every request against its route pattern.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe("lending", r.Method+" "+route, recorder.status, time.Since(start))
	})
}
