package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/models"
)

type transactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *transactionStore {
	return &transactionStore{db: db}
}

const upsertTransactionSQL = `
	INSERT INTO transactions (id, user_id, account_id, plaid_transaction_id, date, amount,
		merchant_name, name, category, category_id, subcategory, pending, is_manual)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false)
	ON CONFLICT (plaid_transaction_id) DO UPDATE SET
		account_id    = EXCLUDED.account_id,
		date          = EXCLUDED.date,
		amount        = EXCLUDED.amount,
		merchant_name = EXCLUDED.merchant_name,
		name          = EXCLUDED.name,
		category      = EXCLUDED.category,
		category_id   = EXCLUDED.category_id,
		subcategory   = EXCLUDED.subcategory,
		pending       = EXCLUDED.pending,
		updated_at    = now()
	WHERE transactions.user_id = EXCLUDED.user_id
	RETURNING (xmax = 0) AS inserted`

// Upsert writes one transaction keyed on its provider id and reports whether
// the row was new.
func (s *transactionStore) Upsert(ctx context.Context, tx *models.Transaction) (bool, error) {
	date, err := time.Parse(time.DateOnly, tx.Date)
	if err != nil {
		return false, errs.NewValidationError(fmt.Sprintf("invalid transaction date %q", tx.Date))
	}

	var inserted bool
	err = s.db.QueryRow(ctx, upsertTransactionSQL,
		uuid.NewString(), tx.UserID, tx.AccountID, tx.PlaidTransactionID, date, tx.Amount,
		tx.MerchantName, tx.Name, tx.Category, tx.CategoryID, tx.Subcategory, tx.Pending,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, errs.NewDatabaseError("transactions.upsert", "transaction belongs to another user", err)
	}
	if err != nil {
		return false, errs.NewDatabaseError("transactions.upsert", "failed to save transaction", err)
	}
	return inserted, nil
}

// List returns one page of the user's transactions, newest first, and the
// number of rows matching the filters.
func (s *transactionStore) List(ctx context.Context, uid string, q dto.TransactionQuery) ([]models.Transaction, int, error) {
	where, args := transactionFilters(uid, q)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM transactions t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, errs.NewDatabaseError("transactions.count", "failed to count transactions", err)
	}

	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`
		SELECT t.id, t.user_id, t.account_id, t.plaid_transaction_id, t.date::text, t.amount,
			t.merchant_name, t.name, t.category, t.category_id, t.subcategory, t.pending,
			t.is_manual, t.created_at, t.updated_at,
			a.name, a.type, a.institution_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE %s
		ORDER BY t.date DESC, t.created_at DESC, t.id
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errs.NewDatabaseError("transactions.list", "failed to list transactions", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0, q.Limit)
	for rows.Next() {
		var t models.Transaction
		var acct models.TransactionAccount
		err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.PlaidTransactionID, &t.Date, &t.Amount,
			&t.MerchantName, &t.Name, &t.Category, &t.CategoryID, &t.Subcategory, &t.Pending,
			&t.IsManual, &t.CreatedAt, &t.UpdatedAt,
			&acct.Name, &acct.Type, &acct.InstitutionID,
		)
		if err != nil {
			return nil, 0, errs.NewDatabaseError("transactions.list", "failed to read transaction", err)
		}
		t.Account = &acct
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.NewDatabaseError("transactions.list", "failed to list transactions", err)
	}
	return txs, total, nil
}

func transactionFilters(uid string, q dto.TransactionQuery) (string, []any) {
	clauses := []string{"t.user_id = $1"}
	args := []any{uid}

	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if q.Category != "" {
		add("t.category = ?", q.Category)
	}
	if q.Search != "" {
		add("(t.name ILIKE ? OR t.merchant_name ILIKE ?)", "%"+escapeLike(q.Search)+"%")
	}
	if q.StartDate != "" {
		add("t.date >= ?", dateArg(q.StartDate))
	}
	if q.EndDate != "" {
		add("t.date <= ?", dateArg(q.EndDate))
	}
	return strings.Join(clauses, " AND "), args
}

func dateArg(s string) any {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
