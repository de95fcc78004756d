package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
	"github.com/GregMSThompson/moneyloop/internal/response"
)

type accountService interface {
	Overview(ctx context.Context, uid string) (*dto.AccountsOverview, error)
	SyncBalances(ctx context.Context, uid string) (*dto.BalanceSyncResult, error)
}

type accountHandlers struct {
	ResponseHandler response.ResponseHandler
	AccountSvc      accountService
}

func NewAccountHandlers(deps *Deps) *accountHandlers {
	return &accountHandlers{
		ResponseHandler: deps.ResponseHandler,
		AccountSvc:      deps.AccountSvc,
	}
}

func (h *accountHandlers) AccountRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAccounts)
	r.Post("/", h.SyncAccounts)
	return r
}

func (h *accountHandlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	overview, err := h.AccountSvc.Overview(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to fetch accounts")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, overview)
}

func (h *accountHandlers) SyncAccounts(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	res, err := h.AccountSvc.SyncBalances(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to sync accounts")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, res)
}
