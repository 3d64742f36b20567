package pg

import (
	"context"
	"database/sql"
	"errors"

	"kassenwerk.org/internal/project"
)

var _ project.Store = (*Store)(nil)

const projectColumns = `id, organization_id, name, parent_id, is_reserves, archived, created_at, updated_at`

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	_, err := s.db.ExecContext(ctx, `
		insert into projects (id, organization_id, name, parent_id, is_reserves, archived)
		values ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.OrganizationID, p.Name, nullStr(p.ParentID), p.IsReserves, p.Archived)
	if isUniqueViolation(err) {
		return project.ErrInvalidInput
	}
	return err
}

func (s *Store) FindProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx, `select `+projectColumns+` from projects where id = $1`, id)
	return scanProject(row.Scan)
}

func scanProject(scan func(...any) error) (*project.Project, error) {
	var (
		p      project.Project
		parent sql.NullString
	)
	if err := scan(&p.ID, &p.OrganizationID, &p.Name, &parent, &p.IsReserves, &p.Archived,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, project.ErrNotFound
		}
		return nil, err
	}
	p.ParentID = fromNull(parent)
	return &p, nil
}

func (s *Store) ListProjectsByOrg(ctx context.Context, orgID string, includeArchived bool) ([]*project.Project, error) {
	query := `select ` + projectColumns + ` from projects where organization_id = $1`
	if !includeArchived {
		query += ` and not archived`
	}
	query += ` order by name`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*project.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SetProjectParent(ctx context.Context, id, parentID string) error {
	res, err := s.db.ExecContext(ctx, `
		update projects set parent_id = $2, updated_at = now() where id = $1
	`, id, nullStr(parentID))
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, project.ErrNotFound)
}

func (s *Store) SetProjectArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `
		update projects set archived = $2, updated_at = now() where id = $1
	`, id, archived)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, project.ErrNotFound)
}

func (s *Store) RenameProject(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `
		update projects set name = $2, updated_at = now() where id = $1
	`, id, name)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, project.ErrNotFound)
}

func (s *Store) ProjectHasChildren(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from projects where parent_id = $1)
	`, id).Scan(&exists)
	return exists, err
}

func (s *Store) ReservesProject(ctx context.Context, orgID string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+projectColumns+` from projects where organization_id = $1 and is_reserves
	`, orgID)
	return scanProject(row.Scan)
}
