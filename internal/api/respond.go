package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/commission"
	"github.com/sells-group/advisor-reports/internal/ingest"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingest.ErrStructural), errors.Is(err, model.ErrInvalid):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, commission.ErrConfigurationMissing):
		writeMessage(w, http.StatusUnprocessableEntity, "no commission plan is in effect for this period")
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
