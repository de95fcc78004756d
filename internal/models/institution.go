package models

import (
	"time"
)

const (
	InstitutionActive = "active"
	InstitutionError  = "error"
)

// Institution is one linked Plaid item. AccessToken holds ciphertext and is
// never serialized.
type Institution struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	PlaidItemID     string     `json:"plaid_item_id"`
	AccessToken     string     `json:"-"`
	InstitutionID   *string    `json:"institution_id"`
	InstitutionName string     `json:"institution_name"`
	Status          string     `json:"status"` // "active" | "error"
	LastSyncedAt    *time.Time `json:"last_synced_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// InstitutionSummary is the slice of an institution embedded in account rows.
type InstitutionSummary struct {
	ID              string     `json:"id"`
	InstitutionName string     `json:"institution_name"`
	Status          string     `json:"status"`
	LastSyncedAt    *time.Time `json:"last_synced_at"`
}
