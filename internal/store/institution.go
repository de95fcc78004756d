package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/models"
)

type institutionStore struct {
	db DB
}

func NewInstitutionStore(db DB) *institutionStore {
	return &institutionStore{db: db}
}

const institutionColumns = `id, user_id, plaid_item_id, access_token, institution_id,
	institution_name, status, last_synced_at, created_at, updated_at`

func scanInstitution(row pgx.Row) (*models.Institution, error) {
	var inst models.Institution
	err := row.Scan(
		&inst.ID, &inst.UserID, &inst.PlaidItemID, &inst.AccessToken, &inst.InstitutionID,
		&inst.InstitutionName, &inst.Status, &inst.LastSyncedAt, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// Upsert registers an item or refreshes it when the item id is already known
// for the same user. A re-link always resets the status to active.
func (s *institutionStore) Upsert(ctx context.Context, inst *models.Institution) (*models.Institution, error) {
	const q = `
		INSERT INTO institutions (id, user_id, plaid_item_id, access_token, institution_id,
			institution_name, status, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7)
		ON CONFLICT (plaid_item_id) DO UPDATE SET
			access_token     = EXCLUDED.access_token,
			institution_id   = EXCLUDED.institution_id,
			institution_name = EXCLUDED.institution_name,
			status           = 'active',
			last_synced_at   = EXCLUDED.last_synced_at,
			updated_at       = now()
		WHERE institutions.user_id = EXCLUDED.user_id
		RETURNING ` + institutionColumns

	row := s.db.QueryRow(ctx, q,
		uuid.NewString(), inst.UserID, inst.PlaidItemID, inst.AccessToken, inst.InstitutionID,
		inst.InstitutionName, inst.LastSyncedAt,
	)
	out, err := scanInstitution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewDatabaseError("institutions.upsert", "item is linked to another user", err)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("institutions.upsert", "failed to save institution", err)
	}
	return out, nil
}

func (s *institutionStore) ListActive(ctx context.Context, uid string) ([]*models.Institution, error) {
	q := `SELECT ` + institutionColumns + `
		FROM institutions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, uid)
	if err != nil {
		return nil, errs.NewDatabaseError("institutions.list_active", "failed to list institutions", err)
	}
	defer rows.Close()

	var out []*models.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, errs.NewDatabaseError("institutions.list_active", "failed to read institution", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("institutions.list_active", "failed to list institutions", err)
	}
	return out, nil
}

func (s *institutionStore) SetStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE institutions SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errs.NewDatabaseError("institutions.set_status", "failed to update institution status", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("institution not found")
	}
	return nil
}

// Touch records a successful sync.
func (s *institutionStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE institutions SET last_synced_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return errs.NewDatabaseError("institutions.touch", "failed to update institution", err)
	}
	return nil
}
