package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/knowtext/internal/api"
	"github.com/cloo-solutions/knowtext/internal/domain"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			api.JSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "database unavailable", Code: domain.ErrCodeUnavailable})
			return
		}
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
