package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/handlers"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
)

func NewRouter(cfg config.ServerConfig, mw *middleware.Middleware, deps *handlers.Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewLoggerMiddleware(deps.Log).LoggerMiddleware)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(chimiddleware.Recoverer)

	hh := handlers.NewHealthHandlers(deps)
	ph := handlers.NewPlaidHandlers(deps)
	ah := handlers.NewAccountHandlers(deps)
	th := handlers.NewTransactionHandlers(deps)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/plaid", func(r chi.Router) {
		r.Use(mw.SupabaseAuth)
		r.Post("/create-link-token", ph.CreateLinkToken)
		r.Post("/exchange-token", ph.ExchangeToken)
		r.Mount("/accounts", ah.AccountRoutes())
		r.Mount("/transactions", th.TransactionRoutes())
	})

	return r
}
