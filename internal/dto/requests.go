package dto

// InstitutionMetadata is what Plaid Link's onSuccess hands back about the
// institution the user picked.
type InstitutionMetadata struct {
	Name          string `json:"name"`
	InstitutionID string `json:"institution_id"`
}

type ExchangeTokenRequest struct {
	PublicToken string               `json:"public_token" validate:"required"`
	Institution *InstitutionMetadata `json:"institution,omitempty"`
}

type SyncTransactionsRequest struct {
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type TransactionQuery struct {
	Page      int    `query:"page" validate:"min=1,max=1000000"`
	Limit     int    `query:"limit" validate:"min=1,max=500"`
	Category  string `query:"category" validate:"max=100"`
	Search    string `query:"search" validate:"max=200"`
	StartDate string `query:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `query:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// Offset is the zero-based row offset of the requested page.
func (q TransactionQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}
