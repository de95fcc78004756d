package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
)

type fakeTransactionSvc struct {
	page   *dto.TransactionPage
	sync   *dto.TransactionSyncResult
	err    error
	called bool

	gotQuery dto.TransactionQuery
	gotSync  dto.SyncTransactionsRequest
}

func (f *fakeTransactionSvc) List(ctx context.Context, uid string, q dto.TransactionQuery) (*dto.TransactionPage, error) {
	f.called = true
	f.gotQuery = q
	return f.page, f.err
}

func (f *fakeTransactionSvc) SyncTransactions(ctx context.Context, uid string, req dto.SyncTransactionsRequest) (*dto.TransactionSyncResult, error) {
	f.called = true
	f.gotSync = req
	return f.sync, f.err
}

func newTestTransactionHandler(svc *fakeTransactionSvc) *transactionHandlers {
	deps := testDeps()
	deps.TransactionSvc = svc
	return NewTransactionHandlers(deps)
}

func TestListTransactionsDefaults(t *testing.T) {
	svc := &fakeTransactionSvc{page: &dto.TransactionPage{Pagination: dto.Pagination{Page: 1, Limit: 50}}}
	h := newTestTransactionHandler(svc)

	rr := httptest.NewRecorder()
	h.ListTransactions(rr, authedRequest(http.MethodGet, "/plaid/transactions", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if svc.gotQuery.Page != 1 || svc.gotQuery.Limit != 50 {
		t.Fatalf("query = %+v", svc.gotQuery)
	}
}

func TestListTransactionsParsesFilters(t *testing.T) {
	svc := &fakeTransactionSvc{page: &dto.TransactionPage{}}
	h := newTestTransactionHandler(svc)

	target := "/plaid/transactions?page=3&limit=25&category=Travel&search=uber&start_date=2025-01-01&end_date=2025-01-31"
	rr := httptest.NewRecorder()
	h.ListTransactions(rr, authedRequest(http.MethodGet, target, ""))

	want := dto.TransactionQuery{Page: 3, Limit: 25, Category: "Travel", Search: "uber", StartDate: "2025-01-01", EndDate: "2025-01-31"}
	if svc.gotQuery != want {
		t.Fatalf("query = %+v, want %+v", svc.gotQuery, want)
	}
}

func TestListTransactionsRejectsBadQuery(t *testing.T) {
	cases := map[string]string{
		"limit over max": "/plaid/transactions?limit=501",
		"page zero":      "/plaid/transactions?page=0",
		"page not int":   "/plaid/transactions?page=abc",
		"bad start date": "/plaid/transactions?start_date=01-01-2025",
		"limit not int":  "/plaid/transactions?limit=ten",
		"negative limit": "/plaid/transactions?limit=-5",
		"page over max":  "/plaid/transactions?page=99999999999",
		"page overflows": "/plaid/transactions?page=99999999999999999999",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeTransactionSvc{}
			h := newTestTransactionHandler(svc)

			rr := httptest.NewRecorder()
			h.ListTransactions(rr, authedRequest(http.MethodGet, target, ""))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
			}
			if svc.called {
				t.Fatal("service must not be called")
			}
		})
	}
}

func TestSyncTransactionsHandler(t *testing.T) {
	svc := &fakeTransactionSvc{sync: &dto.TransactionSyncResult{Success: true, Added: 4, Modified: 1}}
	h := newTestTransactionHandler(svc)

	rr := httptest.NewRecorder()
	h.SyncTransactions(rr, authedRequest(http.MethodPost, "/plaid/transactions", `{"start_date":"2025-01-01","end_date":"2025-01-31"}`))

	if strings.TrimSpace(rr.Body.String()) != `{"success":true,"added":4,"modified":1}` {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if svc.gotSync.StartDate != "2025-01-01" || svc.gotSync.EndDate != "2025-01-31" {
		t.Fatalf("request = %+v", svc.gotSync)
	}
}

func TestSyncTransactionsAllowsEmptyBody(t *testing.T) {
	svc := &fakeTransactionSvc{sync: &dto.TransactionSyncResult{Success: true}}
	h := newTestTransactionHandler(svc)

	rr := httptest.NewRecorder()
	h.SyncTransactions(rr, authedRequest(http.MethodPost, "/plaid/transactions", ""))

	if rr.Code != http.StatusOK || !svc.called {
		t.Fatalf("status = %d called = %v", rr.Code, svc.called)
	}
}

func TestSyncTransactionsErrors(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"bad date", `{"start_date":"yesterday"}`, nil, http.StatusBadRequest, "start_date must be a date in the format YYYY-MM-DD"},
		{"window", `{"start_date":"2025-02-01","end_date":"2025-01-01"}`, errs.NewValidationError("start_date must not be after end_date"), http.StatusBadRequest, "start_date must not be after end_date"},
		{"not configured", "", errs.NewProviderNotConfiguredError("Plaid"), http.StatusInternalServerError, "Plaid is not configured."},
		{"unexpected", "", context.DeadlineExceeded, http.StatusInternalServerError, "Failed to sync transactions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestTransactionHandler(&fakeTransactionSvc{err: tc.err})

			rr := httptest.NewRecorder()
			h.SyncTransactions(rr, authedRequest(http.MethodPost, "/plaid/transactions", tc.body))

			if rr.Code != tc.status {
				t.Fatalf("status = %d", rr.Code)
			}
			if got := decodeError(t, rr).Error; got != tc.message {
				t.Fatalf("error = %q", got)
			}
		})
	}
}
