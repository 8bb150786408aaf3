package directory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

type memoryDirectory struct {
	departments []Department
	users       []User
}

func (m *memoryDirectory) InsertDepartment(ctx context.Context, d Department) error {
	for _, existing := range m.departments {
		if existing.Name == d.Name {
			return fmt.Errorf("%w: department %s already exists", shared.ErrConflict, d.Name)
		}
	}
	m.departments = append(m.departments, d)
	return nil
}

func (m *memoryDirectory) ListDepartments(ctx context.Context) ([]Department, error) {
	return m.departments, nil
}

func (m *memoryDirectory) InsertUser(ctx context.Context, u User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: user %s already exists", shared.ErrConflict, u.Email)
		}
	}
	m.users = append(m.users, u)
	return nil
}

func (m *memoryDirectory) ListUsers(ctx context.Context) ([]User, error) {
	return m.users, nil
}

func TestCreateDepartment(t *testing.T) {
	svc := NewService(&memoryDirectory{})
	ctx := context.Background()

	d, err := svc.CreateDepartment(ctx, "  Finance ")
	require.NoError(t, err)
	require.Equal(t, "Finance", d.Name)

	_, err = svc.CreateDepartment(ctx, "Finance")
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateDepartment(ctx, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUserDefaultsRole(t *testing.T) {
	repo := &memoryDirectory{}
	svc := NewService(repo)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, UserInput{Name: "Ana", Email: "Ana@Example.com", Phone: "+62 811"})
	require.NoError(t, err)
	require.Equal(t, DefaultRole, u.Role)
	require.Equal(t, "ana@example.com", u.Email)

	_, err = svc.CreateUser(ctx, UserInput{Name: "Ana", Email: "ana@example.com", Phone: "1"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateUser(ctx, UserInput{Name: "Bo", Email: "not-an-email", Phone: "1"})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, repo.users, 1)
}

func TestHandlerRoutes(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(&memoryDirectory{}))
	r := chi.NewRouter()
	r.Route("/departments", h.MountDepartmentRoutes)
	r.Route("/users", h.MountUserRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, do(http.MethodPost, "/departments", `{"name":"Ops"}`).Code)
	require.Equal(t, http.StatusConflict, do(http.MethodPost, "/departments", `{"name":"Ops"}`).Code)
	require.Contains(t, do(http.MethodGet, "/departments", "").Body.String(), `"Ops"`)

	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/users", `{"name":"Ana","email":"x","phone":"1"}`).Code)
	rec := do(http.MethodPost, "/users", `{"name":"Ana","email":"ana@example.com","phone":"1","role":"approver"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, do(http.MethodGet, "/users", "").Body.String(), `"approver"`)
}
