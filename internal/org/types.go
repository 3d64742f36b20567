package org

import "time"

// Role is the single role vocabulary used across the whole service, both for
// the organization-wide role on a user and for per-team roles.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Level maps a role to its ordinal. Unknown roles rank below viewer so a
// corrupted value can never grant access.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r meets the minimum role.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// ParseRole validates a role string coming from the outside.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Organization is the tenant boundary. Every other entity hangs off one.
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Domain        string    `json:"domain,omitempty"`
	CreatedByUser string    `json:"created_by_user"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BankDetails are the reimbursement payout defaults attached to a user.
type BankDetails struct {
	IBAN          string `json:"iban,omitempty"`
	BIC           string `json:"bic,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// User belongs to at most one organization.
type User struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	Role           Role        `json:"role"`
	Bank           BankDetails `json:"bank"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
