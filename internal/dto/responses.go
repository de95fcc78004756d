package dto

import (
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/moneyloop/internal/models"
)

type LinkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

type ExchangeTokenResponse struct {
	Success       bool                `json:"success"`
	Institution   *models.Institution `json:"institution"`
	AccountsCount int                 `json:"accounts_count"`
}

type Totals struct {
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	NetWorth    decimal.Decimal `json:"net_worth"`
}

type AccountsOverview struct {
	Accounts []models.Account `json:"accounts"`
	Totals   Totals           `json:"totals"`
}

type BalanceSyncResult struct {
	Success         bool `json:"success"`
	UpdatedAccounts int  `json:"updated_accounts"`
}

type TransactionSyncResult struct {
	Success  bool `json:"success"`
	Added    int  `json:"added"`
	Modified int  `json:"modified"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// UpsertCounts reports what a batch of keyed upserts actually did.
type UpsertCounts struct {
	Inserted int
	Updated  int
	Failed   int
}

func (c UpsertCounts) Written() int { return c.Inserted + c.Updated }
