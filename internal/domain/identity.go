package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the user's position on the authorization ladder.
type Role string

const (
	RoleTechnician  Role = "technician"
	RolePathologist Role = "pathologist"
	RoleReviewer    Role = "reviewer"
	RoleAdmin       Role = "admin"
)

// roleRank orders roles for at-least checks. Reviewer sits above technician,
// pathologist above reviewer, admin above all.
var roleRank = map[Role]int{
	RoleTechnician:  1,
	RoleReviewer:    2,
	RolePathologist: 3,
	RoleAdmin:       4,
}

// AtLeast reports whether r carries at minimum the privileges of min.
func (r Role) AtLeast(min Role) bool { return roleRank[r] >= roleRank[min] }

// ValidRole reports whether r names a known role.
func ValidRole(r Role) bool { _, ok := roleRank[r]; return ok }

// Tenant is an isolated laboratory customer.
type Tenant struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User belongs to exactly one tenant. Email is unique per tenant.
type User struct {
	ID           string
	TenantID     string
	Email        string
	FullName     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate enforces creation invariants.
func (u User) Validate() error {
	if u.TenantID == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrInvalidArgument)
	}
	if !ValidRole(u.Role) {
		return fmt.Errorf("%w: invalid role %q", ErrInvalidArgument, u.Role)
	}
	return nil
}

// Identity is what authentication yields for a request.
type Identity struct {
	TenantID string
	UserID   string
	Role     Role
}
