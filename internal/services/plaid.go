package services

import (
	"context"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/metrics"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

const unknownInstitution = "Unknown Institution"

type plaidService struct {
	plaid        plaidClient
	crypto       encrypter
	institutions institutionStore
	accounts     accountWriter
	cache        invalidator
	clockNow     func() time.Time
}

func NewPlaidService(plaid plaidClient, crypto encrypter, institutions institutionStore, accounts accountWriter, cache invalidator) *plaidService {
	return &plaidService{
		plaid:        plaid,
		crypto:       crypto,
		institutions: institutions,
		accounts:     accounts,
		cache:        cache,
		clockNow:     time.Now,
	}
}

func (s *plaidService) CreateLinkToken(ctx context.Context, uid string) (string, error) {
	if !s.plaid.Configured() {
		return "", errs.NewProviderNotConfiguredError("Plaid")
	}
	return s.plaid.CreateLinkToken(ctx, uid)
}

// ExchangePublicToken trades a Link public token for a long-lived credential,
// registers the institution and imports its accounts. Only the exchange,
// encryption and institution write can fail the call; account import is best
// effort.
func (s *plaidService) ExchangePublicToken(ctx context.Context, uid string, req dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error) {
	if !s.plaid.Configured() {
		return nil, errs.NewProviderNotConfiguredError("Plaid")
	}

	itemID, accessToken, err := s.plaid.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, err
	}
	log, ctx := logger.With(ctx, "item_id", itemID)

	sealed, err := s.crypto.Encrypt(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	now := s.clockNow().UTC()
	inst := &models.Institution{
		UserID:          uid,
		PlaidItemID:     itemID,
		AccessToken:     sealed,
		InstitutionName: unknownInstitution,
		Status:          models.InstitutionActive,
		LastSyncedAt:    &now,
	}
	if req.Institution != nil {
		if req.Institution.Name != "" {
			inst.InstitutionName = req.Institution.Name
		}
		if req.Institution.InstitutionID != "" {
			id := req.Institution.InstitutionID
			inst.InstitutionID = &id
		}
	}

	saved, err := s.institutions.Upsert(ctx, inst)
	if err != nil {
		return nil, err
	}
	defer s.cache.Invalidate(uid)

	resp := &dto.ExchangeTokenResponse{Success: true, Institution: saved}

	plaidAccounts, err := s.plaid.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp.AccountsCount = len(plaidAccounts)

	counts, err := s.accounts.Upsert(ctx, toAccountRows(uid, saved.ID, plaidAccounts, now))
	metrics.RecordUpserts("accounts", counts.Inserted, counts.Updated, counts.Failed)
	if err != nil {
		log.Warn("account import failed", "institution_id", saved.ID, "error", err)
	}
	log.Info("institution linked",
		"institution_id", saved.ID,
		"institution_name", saved.InstitutionName,
		"accounts_inserted", counts.Inserted,
		"accounts_updated", counts.Updated,
		"accounts_failed", counts.Failed,
	)
	return resp, nil
}
