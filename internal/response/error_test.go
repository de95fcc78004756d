package response

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

func newTestHandler() *responseHandler {
	return New(slog.New(logger.NewTestHandler(slog.LevelInfo)))
}

func TestHandleErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unauthenticated", errs.NewUnauthenticatedError(), http.StatusUnauthorized, "Unauthorized"},
		{"validation", errs.NewValidationError("public_token is required"), http.StatusBadRequest, "public_token is required"},
		{"not found", errs.NewNotFoundError("institution not found"), http.StatusNotFound, "institution not found"},
		{"not configured", errs.NewProviderNotConfiguredError("Plaid"), http.StatusInternalServerError, "Plaid is not configured."},
		{"database", errs.NewDatabaseError("upsert", "failed to upsert institution", errors.New("pq: boom")), http.StatusInternalServerError, "Failed to exchange token"},
		{"external", errs.NewExternalServiceError("plaid", "INVALID_PUBLIC_TOKEN", "exchange failed", false, nil), http.StatusInternalServerError, "Failed to exchange token"},
		{"encryption", errs.NewEncryptionError("kms unavailable", nil), http.StatusInternalServerError, "Failed to exchange token"},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, "Failed to exchange token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/plaid/exchange-token", nil)

			h.HandleError(rr, req, tc.err, "Failed to exchange token")

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Error != tc.message {
				t.Fatalf("error = %q, want %q", body.Error, tc.message)
			}
		})
	}
}

func TestHandleErrorDoesNotLeakInternalText(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/plaid/accounts", nil)

	h.HandleError(rr, req, errs.NewDatabaseError("read", "failed to list accounts", errors.New("relation accounts does not exist")), "Failed to fetch accounts")

	if strings.Contains(rr.Body.String(), "relation") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestHandleErrorUnwrapsWrappedErrors(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/plaid/transactions", nil)

	wrapped := errors.Join(errors.New("context"), errs.NewValidationError("limit must be less than or equal to 500"))
	h.HandleError(rr, req, wrapped, "Failed to fetch transactions")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestWriteJSON(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/plaid/create-link-token", nil)

	h.WriteJSON(rr, req, http.StatusOK, map[string]string{"link_token": "link-sandbox-1"})

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"link_token":"link-sandbox-1"}` {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
