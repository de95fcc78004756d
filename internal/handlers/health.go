package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type healthHandlers struct {
	ResponseHandler response.ResponseHandler
	DB              pinger
}

func NewHealthHandlers(deps *Deps) *healthHandlers {
	return &healthHandlers{
		ResponseHandler: deps.ResponseHandler,
		DB:              deps.DB,
	}
}

// Health reports liveness and whether the database answers a ping.
func (h *healthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		logger.FromContext(r.Context()).Error("database ping failed", "error", err)
		h.ResponseHandler.WriteJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}
