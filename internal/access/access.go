// Package access resolves what the current user may see and mutate: the
// organization-wide role gate and the team-driven project visibility set.
package access

import (
	"context"
	"errors"

	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/org"
	"kassenwerk.org/internal/project"
	"kassenwerk.org/internal/team"
)

// ErrAccessDenied is returned for every authorization failure, including
// cross-tenant probes, so a caller can never learn whether an entity exists.
var ErrAccessDenied = errors.New("access: denied")

// RequireRole rejects principals whose organization-wide role ranks below min.
func RequireRole(p auth.Principal, min org.Role) error {
	if !p.Role.AtLeast(min) {
		return ErrAccessDenied
	}
	return nil
}

// Resolver computes project visibility from team memberships.
type Resolver struct {
	teams    team.Store
	projects project.Store
}

// NewResolver constructs a Resolver.
func NewResolver(teams team.Store, projects project.Store) *Resolver {
	return &Resolver{teams: teams, projects: projects}
}

// AccessibleProjectIDs returns the set of project ids the principal may see.
// Admins see every project in their organization; everyone else sees the
// union of projects attached to the teams they belong to.
func (r *Resolver) AccessibleProjectIDs(ctx context.Context, p auth.Principal) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if p.IsAdmin() {
		all, err := r.projects.ListProjectsByOrg(ctx, p.OrganizationID, true)
		if err != nil {
			return nil, err
		}
		for _, pr := range all {
			out[pr.ID] = struct{}{}
		}
		return out, nil
	}
	memberships, err := r.teams.MembershipsByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		ids, err := r.teams.ProjectsByTeam(ctx, m.TeamID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// ProjectScoped is anything carrying an optional project reference.
type ProjectScoped interface {
	ProjectRef() string
}

// FilterByProjectAccess narrows items to those whose project the principal
// may see. Items without a project stay visible only to admins.
func FilterByProjectAccess[T ProjectScoped](p auth.Principal, accessible map[string]struct{}, items []T) []T {
	if p.IsAdmin() {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := item.ProjectRef()
		if id == "" {
			continue
		}
		if _, ok := accessible[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// CanAccessProject checks that the principal can act on one project at the
// required role. Admins pass outright. Everyone else needs a membership, in
// some team holding the project, whose team role meets the requirement; the
// maximum role across qualifying memberships counts.
func (r *Resolver) CanAccessProject(ctx context.Context, p auth.Principal, projectID string, required org.Role) error {
	pr, err := r.projects.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if pr.OrganizationID != p.OrganizationID {
		return ErrAccessDenied
	}
	if p.IsAdmin() {
		return nil
	}
	teamIDs, err := r.teams.TeamsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	holding := make(map[string]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		holding[id] = struct{}{}
	}
	memberships, err := r.teams.MembershipsByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	best := 0
	for _, m := range memberships {
		if _, ok := holding[m.TeamID]; !ok {
			continue
		}
		if lvl := m.Role.Level(); lvl > best {
			best = lvl
		}
	}
	if best < required.Level() {
		return ErrAccessDenied
	}
	return nil
}
