package dto

import (
	"github.com/shopspring/decimal"
)

type PlaidEnvironment string

const (
	PlaidSandbox     PlaidEnvironment = "sandbox"
	PlaidDevelopment PlaidEnvironment = "development"
	PlaidProduction  PlaidEnvironment = "production"
)

// PlaidAccount is one account as the adapter returns it, already detached
// from the SDK types.
type PlaidAccount struct {
	AccountID        string
	Name             string
	OfficialName     string
	Type             string
	Subtype          string
	Mask             string
	CurrentBalance   decimal.NullDecimal
	AvailableBalance decimal.NullDecimal
	Currency         string // empty when Plaid reports none
}

type PlaidTransaction struct {
	TransactionID string
	AccountID     string
	Date          string
	Amount        decimal.Decimal
	MerchantName  string
	Name          string
	Category      []string
	CategoryID    string
	Pending       bool
}

// PlaidTransactionsPage is one /transactions/get page plus the window total.
type PlaidTransactionsPage struct {
	Transactions []PlaidTransaction
	Total        int
}
