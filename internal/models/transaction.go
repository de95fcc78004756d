package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const UncategorizedCategory = "Uncategorized"

type Transaction struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	AccountID          string          `json:"account_id"`
	PlaidTransactionID string          `json:"plaid_transaction_id"`
	Date               string          `json:"date"` // YYYY-MM-DD as Plaid returns
	Amount             decimal.Decimal `json:"amount"`
	MerchantName       *string         `json:"merchant_name"`
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	CategoryID         *string         `json:"category_id"`
	Subcategory        *string         `json:"subcategory"`
	Pending            bool            `json:"pending"`
	IsManual           bool            `json:"is_manual"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	Account *TransactionAccount `json:"account,omitempty"`
}

// TransactionAccount is the slice of the owning account embedded in list rows.
type TransactionAccount struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	InstitutionID string `json:"institution_id"`
}
