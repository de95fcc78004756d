package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/internal/services"
	"github.com/GregMSThompson/moneyloop/internal/validation"
)

type transactionService interface {
	List(ctx context.Context, uid string, q dto.TransactionQuery) (*dto.TransactionPage, error)
	SyncTransactions(ctx context.Context, uid string, req dto.SyncTransactionsRequest) (*dto.TransactionSyncResult, error)
}

type transactionHandlers struct {
	ResponseHandler response.ResponseHandler
	TransactionSvc  transactionService
}

func NewTransactionHandlers(deps *Deps) *transactionHandlers {
	return &transactionHandlers{
		ResponseHandler: deps.ResponseHandler,
		TransactionSvc:  deps.TransactionSvc,
	}
}

func (h *transactionHandlers) TransactionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTransactions)
	r.Post("/", h.SyncTransactions)
	return r
}

func (h *transactionHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseTransactionQuery(r.URL.Query())
	if err == nil {
		err = validation.Struct(q)
	}
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to fetch transactions")
		return
	}

	uid := middleware.UID(r.Context())
	page, err := h.TransactionSvc.List(r.Context(), uid, q)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to fetch transactions")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, page)
}

func (h *transactionHandlers) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	var body dto.SyncTransactionsRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to sync transactions")
		return
	}

	uid := middleware.UID(r.Context())
	res, err := h.TransactionSvc.SyncTransactions(r.Context(), uid, body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to sync transactions")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, res)
}

func parseTransactionQuery(v url.Values) (dto.TransactionQuery, error) {
	q := dto.TransactionQuery{
		Page:      services.DefaultPage,
		Limit:     services.DefaultLimit,
		Category:  v.Get("category"),
		Search:    v.Get("search"),
		StartDate: v.Get("start_date"),
		EndDate:   v.Get("end_date"),
	}
	var err error
	if q.Page, err = intParam(v, "page", q.Page); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(v, "limit", q.Limit); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(v url.Values, name string, def int) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewValidationError(name + " must be an integer")
	}
	return n, nil
}
