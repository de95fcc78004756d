package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeDepository = "depository"
	AccountTypeInvestment = "investment"
	AccountTypeCredit     = "credit"
	AccountTypeLoan       = "loan"
)

type Account struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	InstitutionID    string              `json:"institution_id"`
	PlaidAccountID   string              `json:"plaid_account_id"`
	Name             string              `json:"name"`
	OfficialName     *string             `json:"official_name"`
	Type             string              `json:"type"`
	Subtype          *string             `json:"subtype"`
	Mask             *string             `json:"mask"`
	CurrentBalance   decimal.NullDecimal `json:"current_balance"`
	AvailableBalance decimal.NullDecimal `json:"available_balance"`
	Currency         string              `json:"currency"`
	IsManual         bool                `json:"is_manual"`
	IsHidden         bool                `json:"is_hidden"`
	LastSyncedAt     *time.Time          `json:"last_synced_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	Institution *InstitutionSummary `json:"institution,omitempty"`
}
