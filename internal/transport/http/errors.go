package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hemovault/bloodbank/internal/domain"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case domain.CodeInsufficientStock, domain.CodeWouldUnderflow, domain.CodeInvalidCommit:
		return http.StatusConflict
	case domain.CodeStaleWrite, domain.CodeContended:
		return http.StatusConflict
	case domain.CodeInconsistent:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeDomainError renders any error as {code, message, details?}. Errors
// without a domain code become an opaque internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, errorResponse{
			Code:    "INTERNAL",
			Message: "internal error",
		})
		return
	}
	writeError(w, statusForCode(de.Code), errorResponse{
		Code:    string(de.Code),
		Message: de.Message,
		Details: de.Details,
	})
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		_, _ = w.Write([]byte(`{"code":"INTERNAL","message":"internal error"}`))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
