package services

import (
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/pkg/helpers"
)

const defaultCurrency = "USD"

func toAccountRows(uid, institutionID string, in []dto.PlaidAccount, now time.Time) []models.Account {
	out := make([]models.Account, 0, len(in))
	for _, a := range in {
		currency := a.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		out = append(out, models.Account{
			UserID:           uid,
			InstitutionID:    institutionID,
			PlaidAccountID:   a.AccountID,
			Name:             a.Name,
			OfficialName:     helpers.NilIfEmpty(a.OfficialName),
			Type:             a.Type,
			Subtype:          helpers.NilIfEmpty(a.Subtype),
			Mask:             helpers.NilIfEmpty(a.Mask),
			CurrentBalance:   a.CurrentBalance,
			AvailableBalance: a.AvailableBalance,
			Currency:         currency,
			LastSyncedAt:     &now,
		})
	}
	return out
}

// toTransactionRow maps a provider transaction onto a local account. The
// first category level becomes the category, the second the subcategory.
func toTransactionRow(uid, accountID string, t dto.PlaidTransaction) *models.Transaction {
	category := models.UncategorizedCategory
	if len(t.Category) > 0 && t.Category[0] != "" {
		category = t.Category[0]
	}
	var subcategory *string
	if len(t.Category) > 1 {
		subcategory = helpers.NilIfEmpty(t.Category[1])
	}
	return &models.Transaction{
		UserID:             uid,
		AccountID:          accountID,
		PlaidTransactionID: t.TransactionID,
		Date:               t.Date,
		Amount:             t.Amount,
		MerchantName:       helpers.NilIfEmpty(t.MerchantName),
		Name:               t.Name,
		Category:           category,
		CategoryID:         helpers.NilIfEmpty(t.CategoryID),
		Subcategory:        subcategory,
		Pending:            t.Pending,
	}
}
