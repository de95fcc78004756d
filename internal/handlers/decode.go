package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/validation"
)

const maxBodyBytes = 1 << 20

// decodeBody reads an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value, so required fields still fail validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errs.NewValidationError("Invalid JSON body")
	}
	return validation.Struct(dst)
}
