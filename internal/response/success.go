package response

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

// WriteJSON writes data as the whole response body. Routes own their payload
// shape, so there is no envelope.
func (h *responseHandler) WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Last-ditch logging; can't return an error now
		logger.FromContext(r.Context()).Error("failed to encode response", "error", err, "status", status)
	}
}
