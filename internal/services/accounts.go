package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/metrics"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

type accountStore interface {
	accountWriter
	ListVisible(ctx context.Context, uid string) ([]models.Account, error)
	Version(ctx context.Context, uid string) (string, error)
}

type overviewCache interface {
	invalidator
	Get(uid, version string) (*dto.AccountsOverview, bool)
	Set(uid, version string, v *dto.AccountsOverview)
}

type accountService struct {
	plaid        plaidClient
	crypto       encrypter
	institutions institutionStore
	accounts     accountStore
	cache        overviewCache
	clockNow     func() time.Time
}

func NewAccountService(plaid plaidClient, crypto encrypter, institutions institutionStore, accounts accountStore, cache overviewCache) *accountService {
	return &accountService{
		plaid:        plaid,
		crypto:       crypto,
		institutions: institutions,
		accounts:     accounts,
		cache:        cache,
		clockNow:     time.Now,
	}
}

// Overview returns the user's visible accounts and their net-worth totals.
// A cached overview is only reused while the store version is unchanged.
func (s *accountService) Overview(ctx context.Context, uid string) (*dto.AccountsOverview, error) {
	version, err := s.accounts.Version(ctx, uid)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(uid, version); ok {
		return cached, nil
	}

	accounts, err := s.accounts.ListVisible(ctx, uid)
	if err != nil {
		return nil, err
	}
	overview := &dto.AccountsOverview{Accounts: accounts, Totals: ComputeTotals(accounts)}
	// A write landing between Version and ListVisible leaves this entry tagged
	// with the older version, so the next read reloads it.
	s.cache.Set(uid, version, overview)
	return overview, nil
}

// ComputeTotals sums depository and investment balances as assets and the
// absolute credit and loan balances as liabilities. Missing balances count as
// zero; other account types are ignored.
func ComputeTotals(accounts []models.Account) dto.Totals {
	assets := decimal.Zero
	liabilities := decimal.Zero
	for _, a := range accounts {
		bal := decimal.Zero
		if a.CurrentBalance.Valid {
			bal = a.CurrentBalance.Decimal
		}
		switch a.Type {
		case models.AccountTypeDepository, models.AccountTypeInvestment:
			assets = assets.Add(bal)
		case models.AccountTypeCredit, models.AccountTypeLoan:
			liabilities = liabilities.Add(bal.Abs())
		}
	}
	return dto.Totals{
		Assets:      assets,
		Liabilities: liabilities,
		NetWorth:    assets.Sub(liabilities),
	}
}

// SyncBalances refreshes balances for every active institution, one at a
// time. A failing institution is marked as errored and skipped; it never
// fails the request.
func (s *accountService) SyncBalances(ctx context.Context, uid string) (*dto.BalanceSyncResult, error) {
	if !s.plaid.Configured() {
		return nil, errs.NewProviderNotConfiguredError("Plaid")
	}
	log := logger.FromContext(ctx)

	institutions, err := s.institutions.ListActive(ctx, uid)
	if err != nil {
		return nil, err
	}
	defer s.cache.Invalidate(uid)

	result := &dto.BalanceSyncResult{Success: true}
	for _, inst := range institutions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		written, err := s.syncInstitutionBalances(ctx, uid, inst)
		metrics.RecordInstitutionSync("balances", err)
		result.UpdatedAccounts += written
		if err != nil {
			markInstitutionFailed(ctx, s.institutions, inst, "balances", err)
		}
	}

	log.Info("balance sync completed",
		"institutions", len(institutions),
		"updated_accounts", result.UpdatedAccounts,
	)
	return result, nil
}

func (s *accountService) syncInstitutionBalances(ctx context.Context, uid string, inst *models.Institution) (int, error) {
	token, err := s.crypto.Decrypt(ctx, inst.AccessToken)
	if err != nil {
		return 0, err
	}
	plaidAccounts, err := s.plaid.GetBalances(ctx, token)
	if err != nil {
		return 0, err
	}

	now := s.clockNow().UTC()
	counts, err := s.accounts.Upsert(ctx, toAccountRows(uid, inst.ID, plaidAccounts, now))
	metrics.RecordUpserts("accounts", counts.Inserted, counts.Updated, counts.Failed)
	if err != nil {
		return 0, err
	}
	if err := s.institutions.Touch(ctx, inst.ID, now); err != nil {
		logger.FromContext(ctx).Warn("failed to record institution sync time", "institution_id", inst.ID, "error", err)
	}
	return counts.Written(), nil
}

// institutionAtFault reports whether a sync failure belongs to the linked
// item itself. Storage failures leave the institution eligible for the next sync.
func institutionAtFault(err error) bool {
	var extErr *errs.ExternalServiceError
	var encErr *errs.EncryptionError
	return errors.As(err, &extErr) || errors.As(err, &encErr)
}

func markInstitutionFailed(ctx context.Context, institutions institutionStore, inst *models.Institution, operation string, cause error) {
	log := logger.FromContext(ctx)
	if ctx.Err() != nil {
		// The caller went away; the institution itself is fine.
		log.Warn("institution sync interrupted", "operation", operation, "institution_id", inst.ID)
		return
	}
	log.Warn("institution sync failed",
		"operation", operation,
		"institution_id", inst.ID,
		"error", cause,
	)
	if !institutionAtFault(cause) {
		return
	}
	if err := institutions.SetStatus(ctx, inst.ID, models.InstitutionError); err != nil {
		log.Error("failed to mark institution as errored", "institution_id", inst.ID, "error", err)
	}
}
