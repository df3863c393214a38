package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// respondError writes msg as a JSON error. Server-side failures are logged
// with the underlying cause.
func respondError(w http.ResponseWriter, status int, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("error_message", msg), zap.Error(cause))
	}
	respondJSON(w, status, errorBody{Error: msg})
}

// respondStoreError maps store failures to a status.
func respondStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "analysis not found", err)
		return
	}
	respondError(w, http.StatusInternalServerError, "storage failure", err)
}
