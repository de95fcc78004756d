package handlers

import (
	"log/slog"

	"github.com/GregMSThompson/moneyloop/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	PlaidSvc        plaidService
	AccountSvc      accountService
	TransactionSvc  transactionService
	DB              pinger
}
