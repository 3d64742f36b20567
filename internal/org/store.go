package org

import "context"

// Store describes persistence required by the organization subsystem.
type Store interface {
	// Bootstrap creates the organization, its reserves project and the
	// creator as admin in a single transaction. Returns the created
	// organization with the reserves project id.
	Bootstrap(ctx context.Context, o *Organization, creator *User, reservesName string) (reservesProjectID string, err error)

	FindOrganization(ctx context.Context, id string) (*Organization, error)
	FindOrganizationByDomain(ctx context.Context, domain string) (*Organization, error)

	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersByOrg(ctx context.Context, orgID string) ([]*User, error)
	UpdateUserRole(ctx context.Context, userID string, role Role) error
	UpdateUserBank(ctx context.Context, userID string, bank BankDetails) error
}
