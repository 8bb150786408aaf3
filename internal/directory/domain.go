package directory

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned to users created without a role.
const DefaultRole = "user"

// Department groups requesters and owns quarterly budgets.
type Department struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a person who appears as requester, approver, disburser or settler.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserInput carries the fields of a new user.
type UserInput struct {
	Name  string
	Email string
	Phone string
	Role  string
}
