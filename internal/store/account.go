package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/moneyloop/internal/dto"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/models"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

type accountStore struct {
	db DB
}

func NewAccountStore(db DB) *accountStore {
	return &accountStore{db: db}
}

// upsertAccountSQL overwrites provider-owned fields only. user_id,
// institution_id, is_manual and is_hidden keep their first-written values.
const upsertAccountSQL = `
	INSERT INTO accounts (id, user_id, institution_id, plaid_account_id, name, official_name,
		type, subtype, mask, current_balance, available_balance, currency, is_manual, last_synced_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13)
	ON CONFLICT (plaid_account_id) DO UPDATE SET
		name              = EXCLUDED.name,
		official_name     = EXCLUDED.official_name,
		type              = EXCLUDED.type,
		subtype           = EXCLUDED.subtype,
		mask              = EXCLUDED.mask,
		current_balance   = EXCLUDED.current_balance,
		available_balance = EXCLUDED.available_balance,
		currency          = EXCLUDED.currency,
		last_synced_at    = EXCLUDED.last_synced_at,
		updated_at        = now()
	WHERE accounts.user_id = EXCLUDED.user_id
	RETURNING (xmax = 0) AS inserted`

// Upsert writes each account independently. Row failures are logged and
// counted; an error is returned only when nothing could be written.
func (s *accountStore) Upsert(ctx context.Context, accounts []models.Account) (dto.UpsertCounts, error) {
	log := logger.FromContext(ctx)
	var counts dto.UpsertCounts
	var lastErr error

	for _, a := range accounts {
		var inserted bool
		err := s.db.QueryRow(ctx, upsertAccountSQL,
			uuid.NewString(), a.UserID, a.InstitutionID, a.PlaidAccountID, a.Name, a.OfficialName,
			a.Type, a.Subtype, a.Mask, a.CurrentBalance, a.AvailableBalance, a.Currency, a.LastSyncedAt,
		).Scan(&inserted)
		if errors.Is(err, pgx.ErrNoRows) {
			err = errors.New("account belongs to another user")
		}
		if err != nil {
			counts.Failed++
			lastErr = err
			log.Warn("account upsert failed", "plaid_account_id", a.PlaidAccountID, "error", err)
			continue
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}
	}

	if counts.Failed > 0 && counts.Written() == 0 {
		return counts, errs.NewDatabaseError("accounts.upsert", "failed to save accounts", lastErr)
	}
	return counts, nil
}

// MapByInstitution returns provider account id to local account id for every
// account under the institution.
func (s *accountStore) MapByInstitution(ctx context.Context, institutionID string) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT plaid_account_id, id FROM accounts WHERE institution_id = $1`, institutionID)
	if err != nil {
		return nil, errs.NewDatabaseError("accounts.map", "failed to load accounts", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var plaidID, id string
		if err := rows.Scan(&plaidID, &id); err != nil {
			return nil, errs.NewDatabaseError("accounts.map", "failed to read account", err)
		}
		out[plaidID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("accounts.map", "failed to load accounts", err)
	}
	return out, nil
}

// ListVisible returns the user's non-hidden accounts, newest first, each with
// its institution summary.
func (s *accountStore) ListVisible(ctx context.Context, uid string) ([]models.Account, error) {
	const q = `
		SELECT a.id, a.user_id, a.institution_id, a.plaid_account_id, a.name, a.official_name,
			a.type, a.subtype, a.mask, a.current_balance, a.available_balance, a.currency,
			a.is_manual, a.is_hidden, a.last_synced_at, a.created_at, a.updated_at,
			i.id, i.institution_name, i.status, i.last_synced_at
		FROM accounts a
		JOIN institutions i ON i.id = a.institution_id
		WHERE a.user_id = $1 AND a.is_hidden = false
		ORDER BY a.created_at DESC, a.id`

	rows, err := s.db.Query(ctx, q, uid)
	if err != nil {
		return nil, errs.NewDatabaseError("accounts.list_visible", "failed to list accounts", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		var a models.Account
		var inst models.InstitutionSummary
		err := rows.Scan(
			&a.ID, &a.UserID, &a.InstitutionID, &a.PlaidAccountID, &a.Name, &a.OfficialName,
			&a.Type, &a.Subtype, &a.Mask, &a.CurrentBalance, &a.AvailableBalance, &a.Currency,
			&a.IsManual, &a.IsHidden, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt,
			&inst.ID, &inst.InstitutionName, &inst.Status, &inst.LastSyncedAt,
		)
		if err != nil {
			return nil, errs.NewDatabaseError("accounts.list_visible", "failed to read account", err)
		}
		a.Institution = &inst
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("accounts.list_visible", "failed to list accounts", err)
	}
	return accounts, nil
}

// Version fingerprints everything ListVisible reads for the user. It changes
// whenever an account or institution row is written, added or removed.
func (s *accountStore) Version(ctx context.Context, uid string) (string, error) {
	const q = `
		SELECT
			(SELECT count(*) FROM accounts WHERE user_id = $1),
			(SELECT max(updated_at) FROM accounts WHERE user_id = $1),
			(SELECT count(*) FROM institutions WHERE user_id = $1),
			(SELECT max(updated_at) FROM institutions WHERE user_id = $1)`

	var accounts, institutions int64
	var accountsAt, institutionsAt *time.Time
	if err := s.db.QueryRow(ctx, q, uid).Scan(&accounts, &accountsAt, &institutions, &institutionsAt); err != nil {
		return "", errs.NewDatabaseError("accounts.version", "failed to read accounts version", err)
	}
	return fmt.Sprintf("%d.%d.%d.%d", accounts, unixMicro(accountsAt), institutions, unixMicro(institutionsAt)), nil
}

func unixMicro(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMicro()
}
