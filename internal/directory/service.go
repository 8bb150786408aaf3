package directory

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Service handles department and user records.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateDepartment stores a department with a unique name.
func (s *Service) CreateDepartment(ctx context.Context, name string) (Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Department{}, fmt.Errorf("%w: department name required", shared.ErrValidation)
	}
	now := s.now()
	d := Department{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.InsertDepartment(ctx, d); err != nil {
		return Department{}, err
	}
	return d, nil
}

// ListDepartments returns all departments.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}

// CreateUser stores a user. Role defaults to DefaultRole.
func (s *Service) CreateUser(ctx context.Context, input UserInput) (User, error) {
	u := User{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.ToLower(strings.TrimSpace(input.Email)),
		Phone: strings.TrimSpace(input.Phone),
		Role:  strings.TrimSpace(input.Role),
	}
	switch {
	case u.Name == "":
		return User{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	case u.Phone == "":
		return User{}, fmt.Errorf("%w: phone required", shared.ErrValidation)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", shared.ErrValidation)
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	now := s.now()
	u.ID, u.CreatedAt, u.UpdatedAt = uuid.New(), now, now
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}
