package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// RepositoryPort defines data access methods for the directory.
type RepositoryPort interface {
	InsertDepartment(ctx context.Context, d Department) error
	ListDepartments(ctx context.Context) ([]Department, error)
	InsertUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context) ([]User, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertDepartment stores a department. Duplicate names fail with shared.ErrConflict.
func (r *Repository) InsertDepartment(ctx context.Context, d Department) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO departments (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		d.ID, d.Name, d.CreatedAt)
	return duplicate(db.Wrap("insert department", err), "department "+d.Name)
}

// ListDepartments returns all departments by name.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, db.Wrap("list departments", err)
	}
	defer rows.Close()
	departments := []Department{}
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, db.Wrap("scan department", err)
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("list departments", err)
	}
	return departments, nil
}

// InsertUser stores a user. Duplicate e-mails fail with shared.ErrConflict.
func (r *Repository) InsertUser(ctx context.Context, u User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id, name, email, phone, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`, u.ID, u.Name, u.Email, u.Phone, u.Role, u.CreatedAt)
	return duplicate(db.Wrap("insert user", err), "user "+u.Email)
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, phone, role, created_at, updated_at FROM users ORDER BY name`)
	if err != nil {
		return nil, db.Wrap("list users", err)
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, db.Wrap("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("list users", err)
	}
	return users, nil
}

func duplicate(err error, what string) error {
	if errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("%w: %s already exists", shared.ErrConflict, what)
	}
	return err
}
