package org

import (
	"context"
	"errors"
	"testing"
)

type stubStore struct {
	orgs  map[string]*Organization
	users map[string]*User
}

func newStubStore() *stubStore {
	return &stubStore{orgs: make(map[string]*Organization), users: make(map[string]*User)}
}

func (s *stubStore) Bootstrap(ctx context.Context, o *Organization, creator *User, reservesName string) (string, error) {
	s.orgs[o.ID] = o
	s.users[creator.ID] = creator
	return "prj-reserves", nil
}

func (s *stubStore) FindOrganization(ctx context.Context, id string) (*Organization, error) {
	o, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *stubStore) FindOrganizationByDomain(ctx context.Context, domain string) (*Organization, error) {
	for _, o := range s.orgs {
		if o.Domain == domain {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) CreateUser(ctx context.Context, u *User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *stubStore) FindUser(ctx context.Context, id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) ListUsersByOrg(ctx context.Context, orgID string) ([]*User, error) {
	var out []*User
	for _, u := range s.users {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateUserRole(ctx context.Context, userID string, role Role) error {
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (s *stubStore) UpdateUserBank(ctx context.Context, userID string, bank BankDetails) error {
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Bank = bank
	return nil
}

func TestBootstrap(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)

	o, u, err := svc.Bootstrap(context.Background(), "Verein Sonne", "VEREIN-SONNE.DE", " Anna@Verein-Sonne.de ", "hash")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if o.Domain != "verein-sonne.de" {
		t.Errorf("domain = %q, want lowercased", o.Domain)
	}
	if u.Email != "anna@verein-sonne.de" {
		t.Errorf("email = %q, want normalized", u.Email)
	}
	if u.Role != RoleAdmin {
		t.Errorf("creator role = %q, want admin", u.Role)
	}
	if u.OrganizationID != o.ID || o.CreatedByUser != u.ID {
		t.Error("organization and creator not linked")
	}

	if _, _, err := svc.Bootstrap(context.Background(), " ", "x.de", "a@x.de", "h"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name: err = %v, want ErrInvalidInput", err)
	}
}

func TestJoinByEmailDomain(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, _, err := svc.Bootstrap(ctx, "Verein Sonne", "verein-sonne.de", "anna@verein-sonne.de", "h"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	u, err := svc.Join(ctx, "Ben@verein-sonne.de", "h2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if u.Role != RoleViewer {
		t.Errorf("joined role = %q, want viewer", u.Role)
	}

	if _, err := svc.Join(ctx, "ben@andere.de", "h3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown domain: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Join(ctx, "keine-email", "h4"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("malformed email: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Join(ctx, "ben@verein-sonne.de", "h5"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email: err = %v, want ErrConflict", err)
	}
}

func TestLastAdminGuard(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	o, admin, err := svc.Bootstrap(ctx, "Verein", "v.de", "a@v.de", "h")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	viewer, err := svc.Join(ctx, "b@v.de", "h")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.UpdateUserRole(ctx, admin.ID, RoleEditor); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("demote sole admin: err = %v, want ErrLastAdmin", err)
	}

	// With a second admin in place the demotion goes through.
	if err := svc.UpdateUserRole(ctx, viewer.ID, RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := svc.UpdateUserRole(ctx, admin.ID, RoleEditor); err != nil {
		t.Fatalf("demote with backup admin: %v", err)
	}

	members, _ := svc.Members(ctx, o.ID)
	admins := 0
	for _, m := range members {
		if m.Role == RoleAdmin {
			admins++
		}
	}
	if admins != 1 {
		t.Fatalf("admins = %d, want 1", admins)
	}

	if err := svc.UpdateUserRole(ctx, admin.ID, "owner"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown role: err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateUserBankNormalizes(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	_, u, err := svc.Bootstrap(ctx, "Verein", "v.de", "a@v.de", "h")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	err = svc.UpdateUserBank(ctx, u.ID, BankDetails{
		IBAN:          "de89 3704 0044 0532 0130 00",
		BIC:           " cobadeffxxx ",
		AccountHolder: " Anna Muster ",
	})
	if err != nil {
		t.Fatalf("update bank: %v", err)
	}
	got, _ := store.FindUser(ctx, u.ID)
	if got.Bank.IBAN != "DE89370400440532013000" {
		t.Errorf("iban = %q, want compacted uppercase", got.Bank.IBAN)
	}
	if got.Bank.BIC != "COBADEFFXXX" {
		t.Errorf("bic = %q", got.Bank.BIC)
	}
	if got.Bank.AccountHolder != "Anna Muster" {
		t.Errorf("holder = %q", got.Bank.AccountHolder)
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleEditor) || !RoleEditor.AtLeast(RoleViewer) {
		t.Error("role ordering broken")
	}
	if RoleViewer.AtLeast(RoleEditor) {
		t.Error("viewer must not reach editor")
	}
	if Role("bogus").AtLeast(RoleViewer) {
		t.Error("unknown role must rank below viewer")
	}
	if _, ok := ParseRole("admin"); !ok {
		t.Error("admin should parse")
	}
	if _, ok := ParseRole("Admin"); ok {
		t.Error("roles are case sensitive")
	}
}
