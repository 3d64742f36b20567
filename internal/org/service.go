package org

import (
	"context"
	"fmt"
	"strings"

	"kassenwerk.org/internal/ids"
)

// ReservesProjectName is the display name given to the protected reserves
// project created at bootstrap. Protection itself hangs off the IsReserves
// flag, never off this string.
const ReservesProjectName = "Rücklagen"

// Service implements organization and user level operations.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Bootstrap creates an organization for a first signup: the organization row,
// its reserves project and the creating user as admin, atomically.
func (s *Service) Bootstrap(ctx context.Context, name, domain, creatorEmail, passwordHash string) (*Organization, *User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	creatorEmail = normalizeEmail(creatorEmail)
	if creatorEmail == "" {
		return nil, nil, fmt.Errorf("%w: creator email is required", ErrInvalidInput)
	}
	domain = strings.TrimSpace(strings.ToLower(domain))

	creator := &User{
		ID:           ids.New(),
		Email:        creatorEmail,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
	}
	o := &Organization{
		ID:            ids.New(),
		Name:          name,
		Domain:        domain,
		CreatedByUser: creator.ID,
	}
	creator.OrganizationID = o.ID

	if _, err := s.store.Bootstrap(ctx, o, creator, ReservesProjectName); err != nil {
		return nil, nil, err
	}
	return o, creator, nil
}

// Join adds a user to the organization whose domain matches the email's
// domain part. New members start as viewers.
func (s *Service) Join(ctx context.Context, email, passwordHash string) (*User, error) {
	email = normalizeEmail(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	o, err := s.store.FindOrganizationByDomain(ctx, email[at+1:])
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:             ids.New(),
		OrganizationID: o.ID,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           RoleViewer,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUserRole changes a member's organization-wide role. Demoting the last
// remaining admin is rejected so an organization can never lock itself out.
func (s *Service) UpdateUserRole(ctx context.Context, userID string, role Role) error {
	if _, ok := ParseRole(string(role)); !ok {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == RoleAdmin && role != RoleAdmin {
		members, err := s.store.ListUsersByOrg(ctx, u.OrganizationID)
		if err != nil {
			return err
		}
		admins := 0
		for _, m := range members {
			if m.Role == RoleAdmin {
				admins++
			}
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	return s.store.UpdateUserRole(ctx, userID, role)
}

// UpdateUserBank stores reimbursement payout defaults.
func (s *Service) UpdateUserBank(ctx context.Context, userID string, bank BankDetails) error {
	bank.IBAN = strings.ToUpper(strings.ReplaceAll(bank.IBAN, " ", ""))
	bank.BIC = strings.ToUpper(strings.TrimSpace(bank.BIC))
	bank.AccountHolder = strings.TrimSpace(bank.AccountHolder)
	return s.store.UpdateUserBank(ctx, userID, bank)
}

// Members lists users of an organization.
func (s *Service) Members(ctx context.Context, orgID string) ([]*User, error) {
	return s.store.ListUsersByOrg(ctx, orgID)
}

// FindByEmail resolves a user for login.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.FindUserByEmail(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
