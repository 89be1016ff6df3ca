package server

import (
	"net/http"

	"github.com/cloo-solutions/knowtext/internal/api/handlers"
	"github.com/cloo-solutions/knowtext/internal/api/middleware"
	"github.com/cloo-solutions/knowtext/internal/logger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	Logger               *logger.Logger
	MaxBodyBytes         int64
	HealthHandler        *handlers.HealthHandler
	KnowledgeTextHandler *handlers.KnowledgeTextHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes == 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	health := cfg.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", health.Health)

	kt := cfg.KnowledgeTextHandler
	r.Route("/knowledge-texts", func(r chi.Router) {
		r.Post("/", kt.Create)
		r.Get("/", kt.List)
		r.Get("/{id}", kt.Get)
		r.Patch("/{id}", kt.Update)
		r.Delete("/{id}", kt.Delete)
		r.Post("/{id}/restore", kt.Restore)
	})

	r.Route("/tenants/{tenantId}", func(r chi.Router) {
		r.Get("/tree", kt.Tree)
		r.Post("/exports", kt.Export)
	})

	return r
}
