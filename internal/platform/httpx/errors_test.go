package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: reason required", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: request", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: request is draft", shared.ErrInvalidState), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("%w: serialize", db.ErrTxConflict), http.StatusConflict},
		{fmt.Errorf("%w: overdrawn", shared.ErrUnprocessable), http.StatusUnprocessableEntity},
		{&db.PersistenceError{Op: "commit tx", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := StatusFor(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestRespondErrorMarksRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: serialize", db.ErrTxConflict))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.Retryable)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &db.PersistenceError{Op: "query", Err: errors.New("password=secret")})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Reason string `json:"reason"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorIs(t, DecodeJSON(req, &dst), shared.ErrValidation)
}

func TestValidateFoldsFieldErrors(t *testing.T) {
	dto := struct {
		Reason string `validate:"required"`
	}{}
	err := Validate(validator.New(), dto)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "reason failed required")
}
