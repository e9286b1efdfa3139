package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/brokerops/portalvault/internal/vault/store"
	"github.com/brokerops/portalvault/pkg/httpx"
	"github.com/brokerops/portalvault/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	AcquireService *service.AcquireService
	TokenService   *service.TokenService

	// AcquireWait bounds how long the acquire handler holds the request open
	// waiting on the future.
	AcquireWait time.Duration
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		AcquireWait:  2 * time.Minute,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTokens()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTokens() {
	// POST /v1/tokens - strict rate limit keyed by IP + account so one caller
	// hammering one account cannot exhaust the shared per-address budget.
	// Over-limit requests are rejected here, before a worker slot is touched.
	acquireHandler := &AcquireHandler{
		AcquireService: r.AcquireService,
		Wait:           r.AcquireWait,
	}
	r.Mux.Handle("POST /v1/tokens",
		httpx.Chain(acquireHandler,
			httpx.RateLimitByIPAndFormField(httpx.AcquireLimit, "account_id"),
		),
	)

	// Read endpoints - lenient rate limit by IP.
	statusHandler := &StatusHandler{TokenService: r.TokenService}
	r.Mux.Handle("GET /v1/tokens/status",
		httpx.Chain(statusHandler,
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)

	historyHandler := &HistoryHandler{TokenService: r.TokenService}
	r.Mux.Handle("GET /v1/tokens/history",
		httpx.Chain(historyHandler,
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - read-class limits (monitoring systems poll).
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.TokenService),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
}
