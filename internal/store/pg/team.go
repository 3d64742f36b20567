package pg

import (
	"context"
	"database/sql"
	"errors"

	"kassenwerk.org/internal/team"
)

var _ team.Store = (*Store)(nil)

func (s *Store) CreateTeam(ctx context.Context, t *team.Team) error {
	_, err := s.db.ExecContext(ctx, `
		insert into teams (id, organization_id, name) values ($1, $2, $3)
	`, t.ID, t.OrganizationID, t.Name)
	if isUniqueViolation(err) {
		return team.ErrConflict
	}
	return err
}

func (s *Store) FindTeam(ctx context.Context, id string) (*team.Team, error) {
	var t team.Team
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, created_at, updated_at from teams where id = $1
	`, id).Scan(&t.ID, &t.OrganizationID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, team.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTeamsByOrg(ctx context.Context, orgID string) ([]*team.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, name, created_at, updated_at
		from teams where organization_id = $1 order by name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*team.Team
	for rows.Next() {
		var t team.Team
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) UpsertMembership(ctx context.Context, m *team.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into team_memberships (team_id, user_id, role)
		values ($1, $2, $3)
		on conflict (team_id, user_id) do update set role = excluded.role
	`, m.TeamID, m.UserID, m.Role)
	return err
}

func (s *Store) RemoveMembership(ctx context.Context, teamID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from team_memberships where team_id = $1 and user_id = $2
	`, teamID, userID)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, team.ErrNotFound)
}

func (s *Store) MembershipsByUser(ctx context.Context, userID string) ([]*team.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select team_id, user_id, role, created_at from team_memberships where user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*team.Membership
	for rows.Next() {
		var m team.Membership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) AttachProject(ctx context.Context, l *team.ProjectLink) error {
	_, err := s.db.ExecContext(ctx, `
		insert into team_projects (team_id, project_id)
		values ($1, $2)
		on conflict (team_id, project_id) do nothing
	`, l.TeamID, l.ProjectID)
	return err
}

func (s *Store) DetachProject(ctx context.Context, teamID, projectID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from team_projects where team_id = $1 and project_id = $2
	`, teamID, projectID)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, team.ErrNotFound)
}

func (s *Store) ProjectsByTeam(ctx context.Context, teamID string) ([]string, error) {
	return s.stringColumn(ctx, `select project_id from team_projects where team_id = $1`, teamID)
}

func (s *Store) TeamsByProject(ctx context.Context, projectID string) ([]string, error) {
	return s.stringColumn(ctx, `select team_id from team_projects where project_id = $1`, projectID)
}

func (s *Store) stringColumn(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
