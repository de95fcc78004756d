package plaidclient

import (
	"context"
	"errors"
	"time"

	"github.com/plaid/plaid-go/v24/plaid"
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/metrics"
)

const serviceName = "plaid"

type Adapter struct {
	client       *plaid.APIClient
	clientName   string
	language     string
	countryCodes []plaid.CountryCode
	products     []plaid.Products
}

func NewAdapter(cfg config.PlaidConfig) *Adapter {
	return newAdapter(cfg, toPlaidEnv(cfg.Environment))
}

func newAdapter(cfg config.PlaidConfig, env plaid.Environment) *Adapter {
	pc := plaid.NewConfiguration()
	pc.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	pc.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	pc.UseEnvironment(env)

	codes := make([]plaid.CountryCode, 0, len(cfg.CountryCodes))
	for _, c := range cfg.CountryCodes {
		codes = append(codes, plaid.CountryCode(c))
	}
	products := make([]plaid.Products, 0, len(cfg.Products))
	for _, p := range cfg.Products {
		products = append(products, plaid.Products(p))
	}

	return &Adapter{
		client:       plaid.NewAPIClient(pc),
		clientName:   cfg.ClientName,
		language:     cfg.Language,
		countryCodes: codes,
		products:     products,
	}
}

func (a *Adapter) CreateLinkToken(ctx context.Context, uid string) (token string, err error) {
	defer observe("link_token_create", time.Now(), &err)

	req := plaid.NewLinkTokenCreateRequest(
		a.clientName,
		a.language,
		a.countryCodes,
		plaid.LinkTokenCreateRequestUser{ClientUserId: uid},
	)
	req.SetProducts(a.products)

	resp, _, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", toServiceError(err, "link token request rejected")
	}
	return resp.GetLinkToken(), nil
}

func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error) {
	defer observe("item_public_token_exchange", time.Now(), &err)

	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", "", toServiceError(err, "public token exchange rejected")
	}
	return resp.GetItemId(), resp.GetAccessToken(), nil
}

// GetAccounts lists the item's accounts with cached balances (/accounts/get).
func (a *Adapter) GetAccounts(ctx context.Context, accessToken string) (accounts []dto.PlaidAccount, err error) {
	defer observe("accounts_get", time.Now(), &err)

	req := plaid.NewAccountsGetRequest(accessToken)
	resp, _, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	if err != nil {
		return nil, toServiceError(err, "accounts request rejected")
	}
	return convertAccounts(resp.GetAccounts()), nil
}

// GetBalances fetches real-time balances for every account on the item
// (/accounts/balance/get).
func (a *Adapter) GetBalances(ctx context.Context, accessToken string) (accounts []dto.PlaidAccount, err error) {
	defer observe("accounts_balance_get", time.Now(), &err)

	req := plaid.NewAccountsBalanceGetRequest(accessToken)
	resp, _, err := a.client.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*req).Execute()
	if err != nil {
		return nil, toServiceError(err, "balance request rejected")
	}
	return convertAccounts(resp.GetAccounts()), nil
}

// GetTransactions returns one page of /transactions/get for [start, end].
func (a *Adapter) GetTransactions(ctx context.Context, accessToken, start, end string, offset, count int) (page dto.PlaidTransactionsPage, err error) {
	defer observe("transactions_get", time.Now(), &err)

	req := plaid.NewTransactionsGetRequest(accessToken, start, end)
	opts := plaid.NewTransactionsGetRequestOptions()
	opts.SetCount(int32(count))
	opts.SetOffset(int32(offset))
	req.SetOptions(*opts)

	resp, _, err := a.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
	if err != nil {
		return page, toServiceError(err, "transactions request rejected")
	}

	txs := resp.GetTransactions()
	page.Transactions = make([]dto.PlaidTransaction, 0, len(txs))
	for _, t := range txs {
		page.Transactions = append(page.Transactions, convertTransaction(t))
	}
	page.Total = int(resp.GetTotalTransactions())
	return page, nil
}

func convertAccounts(in []plaid.AccountBase) []dto.PlaidAccount {
	out := make([]dto.PlaidAccount, 0, len(in))
	for _, acc := range in {
		out = append(out, convertAccount(acc))
	}
	return out
}

func convertAccount(acc plaid.AccountBase) dto.PlaidAccount {
	bal := acc.GetBalances()
	return dto.PlaidAccount{
		AccountID:        acc.GetAccountId(),
		Name:             acc.GetName(),
		OfficialName:     acc.GetOfficialName(),
		Type:             string(acc.GetType()),
		Subtype:          string(acc.GetSubtype()),
		Mask:             acc.GetMask(),
		CurrentBalance:   nullDecimal(bal.GetCurrentOk()),
		AvailableBalance: nullDecimal(bal.GetAvailableOk()),
		Currency:         bal.GetIsoCurrencyCode(),
	}
}

func convertTransaction(t plaid.Transaction) dto.PlaidTransaction {
	return dto.PlaidTransaction{
		TransactionID: t.GetTransactionId(),
		AccountID:     t.GetAccountId(),
		Date:          t.GetDate(),
		Amount:        decimal.NewFromFloat(t.GetAmount()),
		MerchantName:  t.GetMerchantName(),
		Name:          t.GetName(),
		Category:      t.GetCategory(),
		CategoryID:    t.GetCategoryId(),
		Pending:       t.GetPending(),
	}
}

func nullDecimal(v *float64, ok bool) decimal.NullDecimal {
	if !ok || v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

// Error codes for which retrying the same request cannot succeed.
var permanentCodes = map[string]bool{
	"INVALID_PUBLIC_TOKEN": true,
	"INVALID_ACCESS_TOKEN": true,
	"ITEM_LOGIN_REQUIRED":  true,
	"INVALID_FIELD":        true,
	"INVALID_INPUT":        true,
}

var transientTypes = map[string]bool{
	"API_ERROR":           true,
	"INSTITUTION_ERROR":   true,
	"RATE_LIMIT_EXCEEDED": true,
}

func toServiceError(err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.NewExternalServiceError(serviceName, "", message, true, err)
	}
	pe, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return errs.NewExternalServiceError(serviceName, "", message, true, err)
	}
	code := pe.GetErrorCode()
	transient := transientTypes[string(pe.GetErrorType())] && !permanentCodes[code]
	return errs.NewExternalServiceError(serviceName, code, message, transient, err)
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordPlaidRequest(operation, time.Since(start), *err)
}

func toPlaidEnv(env dto.PlaidEnvironment) plaid.Environment {
	switch env {
	case dto.PlaidSandbox:
		return plaid.Sandbox
	case dto.PlaidDevelopment:
		return plaid.Development
	default: // dto.PlaidProduction
		return plaid.Production
	}
}

func (a *Adapter) Configured() bool { return true }
