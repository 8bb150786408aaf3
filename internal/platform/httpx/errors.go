// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// StatusFor maps domain and platform errors to an HTTP status and problem title.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, db.ErrNoRows):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "Invalid State"
	case errors.Is(err, shared.ErrConflict), errors.Is(err, db.ErrDuplicate):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, db.ErrTxConflict):
		return http.StatusConflict, "Transaction Conflict"
	case errors.Is(err, shared.ErrUnprocessable):
		return http.StatusUnprocessableEntity, "Unprocessable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal failures never
// leak their detail.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	writeProblem(w, ProblemDetail{
		Title:     title,
		Status:    status,
		Detail:    detail,
		Retryable: db.IsRetryable(err),
	})
}
