package plaidclient

import (
	"context"

	"github.com/GregMSThompson/moneyloop/internal/dto"
)

// Client is the provider surface the services use.
type Client interface {
	Configured() bool
	CreateLinkToken(ctx context.Context, uid string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error)
	GetAccounts(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error)
	GetBalances(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error)
	GetTransactions(ctx context.Context, accessToken, start, end string, offset, count int) (dto.PlaidTransactionsPage, error)
}

var (
	_ Client = (*Adapter)(nil)
	_ Client = Unconfigured{}
)
