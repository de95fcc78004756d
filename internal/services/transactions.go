package services

import (
	"context"
	"fmt"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/metrics"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
)

type transactionAccountStore interface {
	accountWriter
	MapByInstitution(ctx context.Context, institutionID string) (map[string]string, error)
}

type transactionStore interface {
	Upsert(ctx context.Context, tx *models.Transaction) (inserted bool, err error)
	List(ctx context.Context, uid string, q dto.TransactionQuery) ([]models.Transaction, int, error)
}

type transactionService struct {
	plaid        plaidClient
	crypto       encrypter
	institutions institutionStore
	accounts     transactionAccountStore
	txs          transactionStore
	cache        invalidator
	pageSize     int
	syncDays     int
	clockNow     func() time.Time
}

func NewTransactionService(plaid plaidClient, crypto encrypter, institutions institutionStore, accounts transactionAccountStore, txs transactionStore, cache invalidator, pageSize, syncDays int) *transactionService {
	return &transactionService{
		plaid:        plaid,
		crypto:       crypto,
		institutions: institutions,
		accounts:     accounts,
		txs:          txs,
		cache:        cache,
		pageSize:     pageSize,
		syncDays:     syncDays,
		clockNow:     time.Now,
	}
}

// List returns one page of the user's stored transactions.
func (s *transactionService) List(ctx context.Context, uid string, q dto.TransactionQuery) (*dto.TransactionPage, error) {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	txs, total, err := s.txs.List(ctx, uid, q)
	if err != nil {
		return nil, err
	}
	return &dto.TransactionPage{
		Transactions: txs,
		Pagination: dto.Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: (total + q.Limit - 1) / q.Limit,
		},
	}, nil
}

// syncWindow resolves the requested date range. The default window ends today
// (UTC) and starts syncDays earlier.
func (s *transactionService) syncWindow(req dto.SyncTransactionsRequest) (string, string, error) {
	end := s.clockNow().UTC()
	if req.EndDate != "" {
		d, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			return "", "", errs.NewValidationError("end_date must be a date in the format YYYY-MM-DD")
		}
		end = d
	}
	start := end.AddDate(0, 0, -s.syncDays)
	if req.StartDate != "" {
		d, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			return "", "", errs.NewValidationError("start_date must be a date in the format YYYY-MM-DD")
		}
		start = d
	}
	if start.Format(time.DateOnly) > end.Format(time.DateOnly) {
		return "", "", errs.NewValidationError("start_date must not be after end_date")
	}
	return start.Format(time.DateOnly), end.Format(time.DateOnly), nil
}

// SyncTransactions pulls the window from every active institution and
// upserts what maps onto a known account. Institution failures are recorded
// on the institution and never fail the request.
func (s *transactionService) SyncTransactions(ctx context.Context, uid string, req dto.SyncTransactionsRequest) (*dto.TransactionSyncResult, error) {
	if !s.plaid.Configured() {
		return nil, errs.NewProviderNotConfiguredError("Plaid")
	}
	start, end, err := s.syncWindow(req)
	if err != nil {
		return nil, err
	}
	log, ctx := logger.With(ctx, "start_date", start, "end_date", end)

	institutions, err := s.institutions.ListActive(ctx, uid)
	if err != nil {
		return nil, err
	}
	defer s.cache.Invalidate(uid)

	result := &dto.TransactionSyncResult{Success: true}
	for _, inst := range institutions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		counts, err := s.syncInstitutionTransactions(ctx, uid, inst, start, end)
		metrics.RecordInstitutionSync("transactions", err)
		result.Added += counts.Inserted
		result.Modified += counts.Updated
		if err != nil {
			markInstitutionFailed(ctx, s.institutions, inst, "transactions", err)
		}
	}

	log.Info("transaction sync completed",
		"institutions", len(institutions),
		"added", result.Added,
		"modified", result.Modified,
	)
	return result, nil
}

func (s *transactionService) syncInstitutionTransactions(ctx context.Context, uid string, inst *models.Institution, start, end string) (dto.UpsertCounts, error) {
	var counts dto.UpsertCounts
	log, ctx := logger.With(ctx, "institution_id", inst.ID)

	token, err := s.crypto.Decrypt(ctx, inst.AccessToken)
	if err != nil {
		return counts, err
	}

	// Reconcile the account list first so transactions on accounts opened
	// since the last link are not dropped.
	now := s.clockNow().UTC()
	plaidAccounts, err := s.plaid.GetAccounts(ctx, token)
	if err != nil {
		return counts, err
	}
	acctCounts, err := s.accounts.Upsert(ctx, toAccountRows(uid, inst.ID, plaidAccounts, now))
	metrics.RecordUpserts("accounts", acctCounts.Inserted, acctCounts.Updated, acctCounts.Failed)
	if err != nil {
		log.Warn("account reconciliation failed", "error", err)
	}

	accountIDs, err := s.accounts.MapByInstitution(ctx, inst.ID)
	if err != nil {
		return counts, err
	}

	unmapped := 0
	for offset := 0; ; {
		page, err := s.plaid.GetTransactions(ctx, token, start, end, offset, s.pageSize)
		if err != nil {
			return counts, fmt.Errorf("transactions page at offset %d: %w", offset, err)
		}

		for _, pt := range page.Transactions {
			accountID, ok := accountIDs[pt.AccountID]
			if !ok {
				unmapped++
				continue
			}
			inserted, err := s.txs.Upsert(ctx, toTransactionRow(uid, accountID, pt))
			if err != nil {
				counts.Failed++
				log.Warn("transaction upsert failed", "plaid_transaction_id", pt.TransactionID, "error", err)
				continue
			}
			if inserted {
				counts.Inserted++
			} else {
				counts.Updated++
			}
		}

		offset += len(page.Transactions)
		if len(page.Transactions) == 0 || offset >= page.Total {
			break
		}
	}

	metrics.RecordUpserts("transactions", counts.Inserted, counts.Updated, counts.Failed)
	if unmapped > 0 {
		log.Warn("dropped transactions for unknown accounts", "count", unmapped)
	}
	if err := s.institutions.Touch(ctx, inst.ID, now); err != nil {
		log.Warn("failed to record institution sync time", "error", err)
	}
	return counts, nil
}
