package plaidclient

import (
	"context"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
)

// Unconfigured stands in for the adapter when no Plaid credentials are set.
// Every call fails with ProviderNotConfiguredError.
type Unconfigured struct{}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) CreateLinkToken(context.Context, string) (string, error) {
	return "", notConfigured()
}

func (Unconfigured) ExchangePublicToken(context.Context, string) (string, string, error) {
	return "", "", notConfigured()
}

func (Unconfigured) GetAccounts(context.Context, string) ([]dto.PlaidAccount, error) {
	return nil, notConfigured()
}

func (Unconfigured) GetBalances(context.Context, string) ([]dto.PlaidAccount, error) {
	return nil, notConfigured()
}

func (Unconfigured) GetTransactions(context.Context, string, string, string, int, int) (dto.PlaidTransactionsPage, error) {
	return dto.PlaidTransactionsPage{}, notConfigured()
}

func notConfigured() error {
	return errs.NewProviderNotConfiguredError("Plaid")
}
