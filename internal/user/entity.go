// AngelaMos | 2026
// entity.go

package user

import (
	"time"

	"github.com/edunlpx/identity/internal/rbac"
)

type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Role         string     `db:"role"`
	IsVerified   bool       `db:"is_verified"`
	IsActive     bool       `db:"is_active"`
	TokenVersion int        `db:"token_version"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func (u *User) IsAdmin() bool {
	return u.Role == rbac.RoleSuperAdmin || u.Role == rbac.RoleAdmin
}

func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CanLogin gates authentication. Deactivated and deleted accounts keep
// their rows but cannot obtain new tokens.
func (u *User) CanLogin() bool {
	return u.IsActive && !u.IsDeleted()
}
