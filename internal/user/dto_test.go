// AngelaMos | 2026
// dto_test.go

package user

import (
	"testing"
	"time"

	"github.com/edunlpx/identity/internal/rbac"
)

func TestListUsersParamsNormalize(t *testing.T) {
	tests := []struct {
		name         string
		params       ListUsersParams
		wantPage     int
		wantPageSize int
	}{
		{"defaults", ListUsersParams{}, 1, 20},
		{"negative page", ListUsersParams{Page: -3, PageSize: 10}, 1, 10},
		{"page size capped", ListUsersParams{Page: 2, PageSize: 500}, 2, 100},
		{"valid untouched", ListUsersParams{Page: 3, PageSize: 50}, 3, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.Normalize()
			if tt.params.Page != tt.wantPage {
				t.Errorf("page = %d, want %d", tt.params.Page, tt.wantPage)
			}
			if tt.params.PageSize != tt.wantPageSize {
				t.Errorf("page size = %d, want %d",
					tt.params.PageSize, tt.wantPageSize)
			}
		})
	}
}

func TestListUsersParamsOffset(t *testing.T) {
	p := ListUsersParams{Page: 3, PageSize: 25}
	if got := p.Offset(); got != 50 {
		t.Errorf("Offset() = %d, want 50", got)
	}
}

func TestUserHelpers(t *testing.T) {
	u := &User{
		FirstName: "Alice",
		LastName:  "Nguyen",
		Role:      rbac.RoleAdmin,
		IsActive:  true,
	}

	if got := u.FullName(); got != "Alice Nguyen" {
		t.Errorf("FullName() = %q", got)
	}
	if !u.IsAdmin() {
		t.Error("admin role not recognized")
	}
	if !u.CanLogin() {
		t.Error("active account cannot log in")
	}

	u.FirstName = ""
	if got := u.FullName(); got != "Nguyen" {
		t.Errorf("FullName() without first name = %q", got)
	}

	now := time.Now()
	u.DeletedAt = &now
	if u.CanLogin() {
		t.Error("deleted account can log in")
	}
	if !u.IsDeleted() {
		t.Error("IsDeleted() = false")
	}

	student := &User{Role: rbac.RoleStudent, IsActive: false}
	if student.IsAdmin() {
		t.Error("student counted as admin")
	}
	if student.CanLogin() {
		t.Error("deactivated account can log in")
	}
}
