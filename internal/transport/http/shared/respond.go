// Package shared centralizes JSON response encoding and domain error
// translation so every handler produces the same envelopes.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "sebenza/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into its HTTP envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Message = err.Error()
	}
	WriteJSON(w, statusOf(code), resp)
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeConflict, dErrors.CodeIntegrityViolation:
		return http.StatusConflict
	case dErrors.CodeSessionLocked:
		return http.StatusLocked
	case dErrors.CodeInvalidTransition, dErrors.CodeEventNotApplicable, dErrors.CodeValidationGate:
		return http.StatusUnprocessableEntity
	case dErrors.CodeLimitExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
