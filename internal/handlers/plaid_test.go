package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/middleware"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

const testUID = "3f6c1f0e-8a53-4b61-9a5b-0d2b0c1e7a11"

type fakePlaidSvc struct {
	linkToken string
	exchange  *dto.ExchangeTokenResponse
	err       error

	gotUID string
	gotReq dto.ExchangeTokenRequest
}

func (f *fakePlaidSvc) CreateLinkToken(ctx context.Context, uid string) (string, error) {
	f.gotUID = uid
	return f.linkToken, f.err
}

func (f *fakePlaidSvc) ExchangePublicToken(ctx context.Context, uid string, req dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error) {
	f.gotUID = uid
	f.gotReq = req
	return f.exchange, f.err
}

func testDeps() *Deps {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	return &Deps{Log: log, ResponseHandler: response.New(log)}
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithUID(context.Background(), testUID))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestCreateLinkTokenHandler(t *testing.T) {
	svc := &fakePlaidSvc{linkToken: "link-sandbox-abc"}
	deps := testDeps()
	deps.PlaidSvc = svc
	h := NewPlaidHandlers(deps)

	rr := httptest.NewRecorder()
	h.CreateLinkToken(rr, authedRequest(http.MethodPost, "/plaid/create-link-token", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if strings.TrimSpace(rr.Body.String()) != `{"link_token":"link-sandbox-abc"}` {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if svc.gotUID != testUID {
		t.Fatalf("uid = %q", svc.gotUID)
	}
}

func TestCreateLinkTokenNotConfigured(t *testing.T) {
	deps := testDeps()
	deps.PlaidSvc = &fakePlaidSvc{err: errs.NewProviderNotConfiguredError("Plaid")}
	h := NewPlaidHandlers(deps)

	rr := httptest.NewRecorder()
	h.CreateLinkToken(rr, authedRequest(http.MethodPost, "/plaid/create-link-token", ""))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr).Error; got != "Plaid is not configured." {
		t.Fatalf("error = %q", got)
	}
}

func TestCreateLinkTokenProviderFailure(t *testing.T) {
	deps := testDeps()
	deps.PlaidSvc = &fakePlaidSvc{err: errs.NewExternalServiceError("plaid", "INVALID_API_KEYS", "bad keys", false, nil)}
	h := NewPlaidHandlers(deps)

	rr := httptest.NewRecorder()
	h.CreateLinkToken(rr, authedRequest(http.MethodPost, "/plaid/create-link-token", ""))

	if got := decodeError(t, rr).Error; got != "Failed to create link token" {
		t.Fatalf("error = %q", got)
	}
}

func TestExchangeTokenHandler(t *testing.T) {
	svc := &fakePlaidSvc{exchange: &dto.ExchangeTokenResponse{
		Success:       true,
		Institution:   &models.Institution{ID: "inst-1", InstitutionName: "Chase", AccessToken: "enc:secret"},
		AccountsCount: 2,
	}}
	deps := testDeps()
	deps.PlaidSvc = svc
	h := NewPlaidHandlers(deps)

	body := `{"public_token":"public-sandbox-1","institution":{"name":"Chase","institution_id":"ins_3"}}`
	rr := httptest.NewRecorder()
	h.ExchangeToken(rr, authedRequest(http.MethodPost, "/plaid/exchange-token", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if svc.gotReq.PublicToken != "public-sandbox-1" || svc.gotReq.Institution == nil || svc.gotReq.Institution.InstitutionID != "ins_3" {
		t.Fatalf("request = %+v", svc.gotReq)
	}
	if strings.Contains(rr.Body.String(), "enc:secret") {
		t.Fatalf("credential leaked: %s", rr.Body.String())
	}

	var res struct {
		Success       bool `json:"success"`
		AccountsCount int  `json:"accounts_count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.AccountsCount != 2 {
		t.Fatalf("response = %+v", res)
	}
}

func TestExchangeTokenRequiresPublicToken(t *testing.T) {
	for _, body := range []string{"", `{}`, `{"public_token":""}`} {
		svc := &fakePlaidSvc{}
		deps := testDeps()
		deps.PlaidSvc = svc
		h := NewPlaidHandlers(deps)

		rr := httptest.NewRecorder()
		h.ExchangeToken(rr, authedRequest(http.MethodPost, "/plaid/exchange-token", body))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rr.Code)
		}
		if got := decodeError(t, rr).Error; got != "public_token is required" {
			t.Fatalf("body %q: error = %q", body, got)
		}
		if svc.gotUID != "" {
			t.Fatalf("service called for body %q", body)
		}
	}
}

func TestExchangeTokenMalformedJSON(t *testing.T) {
	deps := testDeps()
	deps.PlaidSvc = &fakePlaidSvc{}
	h := NewPlaidHandlers(deps)

	rr := httptest.NewRecorder()
	h.ExchangeToken(rr, authedRequest(http.MethodPost, "/plaid/exchange-token", `{"public_token":`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExchangeTokenFailureUsesFallbackMessage(t *testing.T) {
	deps := testDeps()
	deps.PlaidSvc = &fakePlaidSvc{err: errs.NewDatabaseError("institutions.upsert", "failed to save institution", errors.New("duplicate key"))}
	h := NewPlaidHandlers(deps)

	rr := httptest.NewRecorder()
	h.ExchangeToken(rr, authedRequest(http.MethodPost, "/plaid/exchange-token", `{"public_token":"public-sandbox-1"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr).Error; got != "Failed to exchange token" {
		t.Fatalf("error = %q", got)
	}
}
