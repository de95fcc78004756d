package handlers

import (
	"context"
	"net/http"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
	"github.com/GregMSThompson/moneyloop/internal/response"
)

type plaidService interface {
	CreateLinkToken(ctx context.Context, uid string) (string, error)
	ExchangePublicToken(ctx context.Context, uid string, req dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error)
}

type plaidHandlers struct {
	ResponseHandler response.ResponseHandler
	PlaidSvc        plaidService
}

func NewPlaidHandlers(deps *Deps) *plaidHandlers {
	return &plaidHandlers{
		ResponseHandler: deps.ResponseHandler,
		PlaidSvc:        deps.PlaidSvc,
	}
}

func (h *plaidHandlers) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	linkToken, err := h.PlaidSvc.CreateLinkToken(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to create link token")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, dto.LinkTokenResponse{LinkToken: linkToken})
}

func (h *plaidHandlers) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var body dto.ExchangeTokenRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to exchange token")
		return
	}

	uid := middleware.UID(r.Context())
	res, err := h.PlaidSvc.ExchangePublicToken(r.Context(), uid, body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err, "Failed to exchange token")
		return
	}

	h.ResponseHandler.WriteJSON(w, r, http.StatusOK, res)
}
