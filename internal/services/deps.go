package services

import (
	"context"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/models"
)

// Dependencies shared by the services in this package.

// plaidClient is the Plaid SDK adapter surface.
type plaidClient interface {
	Configured() bool
	CreateLinkToken(ctx context.Context, uid string) (linkToken string, err error)
	ExchangePublicToken(ctx context.Context, publicToken string) (itemID string, accessToken string, err error)
	GetAccounts(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error)
	GetBalances(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error)
	GetTransactions(ctx context.Context, accessToken, start, end string, offset, count int) (dto.PlaidTransactionsPage, error)
}

// encrypter seals provider access tokens at rest.
type encrypter interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type institutionStore interface {
	Upsert(ctx context.Context, inst *models.Institution) (*models.Institution, error)
	ListActive(ctx context.Context, uid string) ([]*models.Institution, error)
	SetStatus(ctx context.Context, id, status string) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// accountWriter is what every path that refreshes accounts from Plaid needs.
type accountWriter interface {
	Upsert(ctx context.Context, accounts []models.Account) (dto.UpsertCounts, error)
}

// invalidator drops a user's cached read models after a write.
type invalidator interface {
	Invalidate(uid string)
}
