package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/models"
)

// --- fakes ---

type fakePlaid struct {
	unconfigured bool

	linkToken     string
	createLinkErr error

	itemID      string
	accessToken string
	exchangeErr error

	// keyed by access token
	accounts    map[string][]dto.PlaidAccount
	accountsErr map[string]error
	balances    map[string][]dto.PlaidAccount
	balancesErr map[string]error
	txs         map[string][]dto.PlaidTransaction
	txsErr      map[string]error

	txCalls []string
}

func (f *fakePlaid) Configured() bool { return !f.unconfigured }

func (f *fakePlaid) CreateLinkToken(ctx context.Context, uid string) (string, error) {
	return f.linkToken, f.createLinkErr
}

func (f *fakePlaid) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	return f.itemID, f.accessToken, f.exchangeErr
}

func (f *fakePlaid) GetAccounts(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error) {
	if err := f.accountsErr[accessToken]; err != nil {
		return nil, err
	}
	return f.accounts[accessToken], nil
}

func (f *fakePlaid) GetBalances(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error) {
	if err := f.balancesErr[accessToken]; err != nil {
		return nil, err
	}
	return f.balances[accessToken], nil
}

func (f *fakePlaid) GetTransactions(ctx context.Context, accessToken, start, end string, offset, count int) (dto.PlaidTransactionsPage, error) {
	f.txCalls = append(f.txCalls, accessToken+"@"+start+".."+end)
	if err := f.txsErr[accessToken]; err != nil {
		return dto.PlaidTransactionsPage{}, err
	}
	all := f.txs[accessToken]
	page := dto.PlaidTransactionsPage{Total: len(all)}
	if offset < len(all) {
		hi := min(offset+count, len(all))
		page.Transactions = all[offset:hi]
	}
	return page, nil
}

// fakeCrypto "encrypts" by prefixing.
type fakeCrypto struct {
	encryptErr error
	badTokens  map[string]bool
}

func (f *fakeCrypto) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if f.encryptErr != nil {
		return "", f.encryptErr
	}
	return "enc:" + plaintext, nil
}

func (f *fakeCrypto) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if f.badTokens[ciphertext] {
		return "", errs.NewEncryptionError("failed to decrypt credential", errors.New("bad tag"))
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type fakeInstitutions struct {
	byItem    map[string]*models.Institution
	order     []string
	upsertErr error
	listErr   error
	statuses  map[string]string
	touched   map[string]time.Time
}

func newFakeInstitutions(insts ...*models.Institution) *fakeInstitutions {
	f := &fakeInstitutions{
		byItem:   map[string]*models.Institution{},
		statuses: map[string]string{},
		touched:  map[string]time.Time{},
	}
	for _, i := range insts {
		f.byItem[i.PlaidItemID] = i
		f.order = append(f.order, i.PlaidItemID)
	}
	return f
}

func (f *fakeInstitutions) Upsert(ctx context.Context, inst *models.Institution) (*models.Institution, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	cp := *inst
	if existing, ok := f.byItem[inst.PlaidItemID]; ok {
		cp.ID = existing.ID
	} else {
		cp.ID = "inst-" + inst.PlaidItemID
		f.order = append(f.order, inst.PlaidItemID)
	}
	f.byItem[inst.PlaidItemID] = &cp
	return &cp, nil
}

func (f *fakeInstitutions) ListActive(ctx context.Context, uid string) ([]*models.Institution, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Institution
	for _, item := range f.order {
		i := f.byItem[item]
		if i.UserID == uid && i.Status == models.InstitutionActive {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeInstitutions) SetStatus(ctx context.Context, id, status string) error {
	f.statuses[id] = status
	for _, i := range f.byItem {
		if i.ID == id {
			i.Status = status
		}
	}
	return nil
}

func (f *fakeInstitutions) Touch(ctx context.Context, id string, at time.Time) error {
	f.touched[id] = at
	return nil
}

// fakeAccounts keeps rows keyed by provider account id, like the real table.
type fakeAccounts struct {
	rows      map[string]models.Account
	seq       int
	failIDs   map[string]bool
	upsertErr error
	listErr   error
	mapErr    error
	// version counts successful writes, standing in for the store fingerprint.
	version    int
	versionErr error
	listCalls  int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{rows: map[string]models.Account{}, failIDs: map[string]bool{}}
}

func (f *fakeAccounts) Upsert(ctx context.Context, accounts []models.Account) (dto.UpsertCounts, error) {
	var c dto.UpsertCounts
	if f.upsertErr != nil {
		c.Failed = len(accounts)
		return c, f.upsertErr
	}
	for _, a := range accounts {
		if f.failIDs[a.PlaidAccountID] {
			c.Failed++
			continue
		}
		if existing, ok := f.rows[a.PlaidAccountID]; ok {
			a.ID = existing.ID
			a.IsHidden = existing.IsHidden
			c.Updated++
		} else {
			f.seq++
			a.ID = "acct-" + a.PlaidAccountID
			c.Inserted++
		}
		f.rows[a.PlaidAccountID] = a
		f.version++
	}
	return c, nil
}

func (f *fakeAccounts) MapByInstitution(ctx context.Context, institutionID string) (map[string]string, error) {
	if f.mapErr != nil {
		return nil, f.mapErr
	}
	out := map[string]string{}
	for pid, a := range f.rows {
		if a.InstitutionID == institutionID {
			out[pid] = a.ID
		}
	}
	return out, nil
}

func (f *fakeAccounts) Version(ctx context.Context, uid string) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return strconv.Itoa(f.version), nil
}

func (f *fakeAccounts) ListVisible(ctx context.Context, uid string) ([]models.Account, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Account
	for _, a := range f.rows {
		if a.UserID == uid && !a.IsHidden {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeTransactions struct {
	rows      map[string]models.Transaction
	failIDs   map[string]bool
	listRows  []models.Transaction
	listTotal int
	lastQuery dto.TransactionQuery
}

func newFakeTransactions() *fakeTransactions {
	return &fakeTransactions{rows: map[string]models.Transaction{}, failIDs: map[string]bool{}}
}

func (f *fakeTransactions) Upsert(ctx context.Context, tx *models.Transaction) (bool, error) {
	if f.failIDs[tx.PlaidTransactionID] {
		return false, errs.NewDatabaseError("transactions.upsert", "failed to save transaction", errors.New("constraint"))
	}
	_, exists := f.rows[tx.PlaidTransactionID]
	f.rows[tx.PlaidTransactionID] = *tx
	return !exists, nil
}

func (f *fakeTransactions) List(ctx context.Context, uid string, q dto.TransactionQuery) ([]models.Transaction, int, error) {
	f.lastQuery = q
	return f.listRows, f.listTotal, nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]cachedOverview
	invalidated []string
}

type cachedOverview struct {
	version  string
	overview *dto.AccountsOverview
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]cachedOverview{}}
}

func (f *fakeCache) Get(uid, version string) (*dto.AccountsOverview, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[uid]
	if !ok || e.version != version {
		delete(f.entries, uid)
		return nil, false
	}
	return e.overview, true
}

func (f *fakeCache) Set(uid, version string, v *dto.AccountsOverview) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[uid] = cachedOverview{version: version, overview: v}
}

func (f *fakeCache) Invalidate(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, uid)
	f.invalidated = append(f.invalidated, uid)
}
