// Package team models the normalized team structure: teams, per-user
// memberships with a team role, and the team-project join that drives
// project visibility.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kassenwerk.org/internal/ids"
	"kassenwerk.org/internal/org"
)

var (
	ErrNotFound     = errors.New("team: not found")
	ErrInvalidInput = errors.New("team: invalid input")
	ErrConflict     = errors.New("team: already exists")
)

// Team groups users and projects inside one organization.
type Team struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Membership links a user to a team with a per-team role.
type Membership struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      org.Role  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectLink attaches a project to a team.
type ProjectLink struct {
	TeamID    string    `json:"team_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store describes persistence required by the team subsystem.
type Store interface {
	CreateTeam(ctx context.Context, t *Team) error
	FindTeam(ctx context.Context, id string) (*Team, error)
	ListTeamsByOrg(ctx context.Context, orgID string) ([]*Team, error)

	// FindUser resolves the membership target for the organization check.
	FindUser(ctx context.Context, id string) (*org.User, error)

	UpsertMembership(ctx context.Context, m *Membership) error
	RemoveMembership(ctx context.Context, teamID, userID string) error
	MembershipsByUser(ctx context.Context, userID string) ([]*Membership, error)

	AttachProject(ctx context.Context, l *ProjectLink) error
	DetachProject(ctx context.Context, teamID, projectID string) error
	ProjectsByTeam(ctx context.Context, teamID string) ([]string, error)
	TeamsByProject(ctx context.Context, projectID string) ([]string, error)
}

// Service implements team management.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create adds a team to the organization.
func (s *Service) Create(ctx context.Context, orgID, name string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	t := &Team{ID: ids.New(), OrganizationID: orgID, Name: name}
	if err := s.store.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetMembership adds a member or updates their per-team role.
func (s *Service) SetMembership(ctx context.Context, orgID, teamID, userID string, role org.Role) error {
	if _, ok := org.ParseRole(string(role)); !ok {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	t, err := s.store.FindTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OrganizationID != orgID {
		return ErrNotFound
	}
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.store.UpsertMembership(ctx, &Membership{TeamID: teamID, UserID: userID, Role: role})
}

// RemoveMembership takes a user off a team.
func (s *Service) RemoveMembership(ctx context.Context, orgID, teamID, userID string) error {
	t, err := s.store.FindTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.store.RemoveMembership(ctx, teamID, userID)
}

// AttachProject makes a project visible to a team's members.
func (s *Service) AttachProject(ctx context.Context, orgID, teamID, projectID string) error {
	t, err := s.store.FindTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.store.AttachProject(ctx, &ProjectLink{TeamID: teamID, ProjectID: projectID})
}

// DetachProject removes a project from a team.
func (s *Service) DetachProject(ctx context.Context, orgID, teamID, projectID string) error {
	t, err := s.store.FindTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.store.DetachProject(ctx, teamID, projectID)
}

// List returns the organization's teams.
func (s *Service) List(ctx context.Context, orgID string) ([]*Team, error) {
	return s.store.ListTeamsByOrg(ctx, orgID)
}
