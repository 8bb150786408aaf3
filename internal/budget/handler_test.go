package budget

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryBudgetRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/budgets", h.MountRoutes)
	return r, repo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndApprove(t *testing.T) {
	router, repo := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/budgets", `{"department":"Finance","allocated_amount":"10000.00","fiscal_year":2024,"fiscal_quarter":1,"comment":"Q1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Budget
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, StatusPending, created.Status)

	rec = do(t, router, http.MethodPost, "/budgets/"+created.ID.String()+"/approve", `{"approver_id":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusApproved, repo.budgets[created.ID].Status)

	rec = do(t, router, http.MethodPost, "/budgets/"+created.ID.String()+"/reject", `{"approver_id":"`+uuid.NewString()+`","reason":"late"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/budgets", `{"department":"Finance","allocated_amount":"10","fiscal_year":2024,"fiscal_quarter":7,"comment":"Q"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/budgets", `{"department":"Finance","allocated_amount":"-1","fiscal_year":2024,"fiscal_quarter":1,"comment":"Q"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/budgets/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/budgets/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListAndOverview(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/budgets", `{"department":"Finance","allocated_amount":10000,"fiscal_year":2024,"fiscal_quarter":1,"comment":"Q1"}`)

	rec := do(t, router, http.MethodGet, "/budgets?department=Finance&status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Budgets, 1)
	require.Equal(t, 1, list.Pagination.Total)

	rec = do(t, router, http.MethodGet, "/budgets/overview?department=Finance&year=2024&quarter=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/budgets/overview?quarter=x", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
