package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/apmec/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// ErrorResponse documents the error body shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteServiceError maps typed service errors onto HTTP statuses: bad input
// is 400, a missing resource 404, a guarded state machine refusal or an
// in-use resource 409, anything else 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		WriteError(w, http.StatusNotFound, err.Error())
	case core.IsConflict(err), core.IsInUse(err):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
