package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quiz-publisher/internal/domain"
)

// Runner executes and lists quiz runs.
type Runner interface {
	Run(ctx context.Context, req domain.RunRequest) (domain.RunReport, error)
	Topics(ctx context.Context) ([]string, error)
}

// EventSource hands out run event subscriptions.
type EventSource interface {
	Subscribe() (<-chan domain.RunEvent, func())
}

type routerOptions struct {
	logger *slog.Logger
}

type Option func(*routerOptions)

func WithLogger(logger *slog.Logger) Option {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// NewRouter mounts the run API, the event stream, health and metrics endpoints.
func NewRouter(runner Runner, events EventSource, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	o := routerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	runs := NewRunsHandler(runner, o.logger)
	ws := NewWSHandler(events, o.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/topics", runs.Topics)
	r.Post("/runs", runs.Create)
	r.Get("/ws", ws.ServeWS)
	return r
}
