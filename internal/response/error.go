package response

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *responseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		log := logger.FromContext(r.Context())
		log.Error("failed to encode error response", "error", err, "status", status, "code", code)
	}
}

// HandleError maps the errs taxonomy onto HTTP. fallback is the coarse,
// user-facing message for 500s; internal error text is only logged.
func (h *responseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := logger.FromContext(r.Context())

	var (
		unauth     *errs.UnauthenticatedError
		validation *errs.ValidationError
		notFound   *errs.NotFoundError
		notConfig  *errs.ProviderNotConfiguredError
		database   *errs.DatabaseError
		external   *errs.ExternalServiceError
		encryption *errs.EncryptionError
	)

	switch {
	case errors.As(err, &unauth):
		log.Warn("unauthenticated request")
		h.WriteError(w, r, http.StatusUnauthorized, "unauthorized", unauth.Message)

	case errors.As(err, &validation):
		log.Warn("validation failed", "error", validation.Message)
		h.WriteError(w, r, http.StatusBadRequest, "invalid_input", validation.Message)

	case errors.As(err, &notFound):
		log.Warn("resource not found", "error", notFound.Message)
		h.WriteError(w, r, http.StatusNotFound, "not_found", notFound.Message)

	case errors.As(err, &notConfig):
		log.Error("provider not configured", "provider", notConfig.Provider)
		h.WriteError(w, r, http.StatusInternalServerError, "provider_not_configured", notConfig.Message)

	case errors.As(err, &database):
		log.Error("database error",
			"operation", database.Operation,
			"error", database.Error())
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error", fallback)

	case errors.As(err, &external):
		level := slog.LevelError
		if external.Transient {
			level = slog.LevelWarn
		}
		log.Log(r.Context(), level, "external service error",
			"service", external.Service,
			"provider_code", external.Code,
			"transient", external.Transient,
			"error", external.Error())
		h.WriteError(w, r, http.StatusInternalServerError, "provider_error", fallback)

	case errors.As(err, &encryption):
		log.Error("encryption error", "error", encryption.Message)
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error", fallback)

	default:
		log.Error("unexpected error",
			"error", err,
			"type", fmt.Sprintf("%T", err))
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error", fallback)
	}
}
