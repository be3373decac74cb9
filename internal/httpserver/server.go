// Package httpserver wires the lead form routes and middleware stack.
package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/form"
	custommw "finitefield.org/leadscore/internal/httpserver/middleware"
	"finitefield.org/leadscore/internal/httpserver/ui"
	"finitefield.org/leadscore/internal/i18n"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/session"
	"finitefield.org/leadscore/public"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 60 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Config holds runtime options for the HTTP server.
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	Logger  *zap.Logger
	Forms   *form.Registry
	Tokens  *session.Manager
	Scorer  form.Scorer
	Catalog *i18n.Bundle
	Metrics *observability.Metrics

	CSRFCookieName   string
	CSRFCookieSecure bool
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	if cfg.Forms == nil || cfg.Tokens == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("httpserver: forms, tokens and catalog are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLogger(logger))
	router.Use(observability.RequestLogger())
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(durationOr(cfg.RequestTimeout, defaultRequestTimeout)))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("embed static: %w", err)
	}
	router.Handle(public.StaticPrefix+"*", http.StripPrefix(public.StaticPrefix, http.FileServer(http.FS(staticContent))))

	handlers := ui.NewHandlers(ui.Dependencies{
		Forms:    cfg.Forms,
		Tokens:   cfg.Tokens,
		Scorer:   cfg.Scorer,
		Catalog:  cfg.Catalog,
		Observer: metrics,
	})

	mountLeadRoutes(router, handlers, routeOptions{
		Forms:   cfg.Forms,
		Tokens:  cfg.Tokens,
		Catalog: cfg.Catalog,
		CSRF: custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			Secure:     cfg.CSRFCookieSecure,
		},
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout: durationOr(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  durationOr(cfg.IdleTimeout, defaultIdleTimeout),
	}, nil
}

type routeOptions struct {
	Forms   *form.Registry
	Tokens  *session.Manager
	Catalog *i18n.Bundle
	CSRF    custommw.CSRFConfig
}

func mountLeadRoutes(router chi.Router, h *ui.Handlers, opts routeOptions) {
	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Locale(opts.Catalog))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get("/", h.Index)

		r.Route("/lead", func(r chi.Router) {
			r.Use(custommw.FormSession(opts.Forms, opts.Tokens))
			r.Post("/fields", h.UpdateFields)
			r.Post("/score", h.Score)
			r.Post("/reset", h.Reset)
		})
	})
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
