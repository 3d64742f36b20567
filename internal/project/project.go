// Package project holds the two-level project tree: root departments and at
// most one level of children, plus the protected reserves project that
// absorbs unallocated split remainders.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kassenwerk.org/internal/ids"
)

var (
	ErrNotFound       = errors.New("project: not found")
	ErrInvalidInput   = errors.New("project: invalid input")
	ErrNestingTooDeep = errors.New("project: departments cannot be nested deeper than one level")
	ErrReservesLocked = errors.New("project: the reserves project cannot be archived or nested under")
	ErrHasChildren    = errors.New("project: a department with children cannot be moved")
	ErrSelfParent     = errors.New("project: a project cannot be its own parent")
)

// Project is a budget line in the organization's tree.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	ParentID       string    `json:"parent_id,omitempty"`
	IsReserves     bool      `json:"is_reserves"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store describes persistence required by the project subsystem.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	FindProject(ctx context.Context, id string) (*Project, error)
	ListProjectsByOrg(ctx context.Context, orgID string, includeArchived bool) ([]*Project, error)
	SetProjectParent(ctx context.Context, id, parentID string) error
	SetProjectArchived(ctx context.Context, id string, archived bool) error
	RenameProject(ctx context.Context, id, name string) error
	ProjectHasChildren(ctx context.Context, id string) (bool, error)
	ReservesProject(ctx context.Context, orgID string) (*Project, error)
}

// Service enforces the hierarchy rules before touching the store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create adds a project. A parent may be named, but only a root project
// (one without a parent of its own) qualifies, and never the reserves project.
func (s *Service) Create(ctx context.Context, orgID, name, parentID string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if parentID != "" {
		parent, err := s.store.FindProject(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent.OrganizationID != orgID {
			return nil, ErrNotFound
		}
		if parent.IsReserves {
			return nil, ErrReservesLocked
		}
		if parent.ParentID != "" {
			return nil, ErrNestingTooDeep
		}
	}
	p := &Project{
		ID:             ids.New(),
		OrganizationID: orgID,
		Name:           name,
		ParentID:       parentID,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Move reparents a project. The target must be a root project in the same
// organization, must not be the reserves project or the project itself, and
// the project being moved must not carry children of its own. A vanished
// current parent is tolerated: the reference is cleared and the move applied.
func (s *Service) Move(ctx context.Context, orgID, id, targetParentID string) error {
	p, err := s.store.FindProject(ctx, id)
	if err != nil {
		return err
	}
	if p.OrganizationID != orgID {
		return ErrNotFound
	}
	if targetParentID == "" {
		return s.store.SetProjectParent(ctx, id, "")
	}
	if targetParentID == id {
		return ErrSelfParent
	}
	hasChildren, err := s.store.ProjectHasChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return ErrHasChildren
	}
	target, err := s.store.FindProject(ctx, targetParentID)
	if err != nil {
		return err
	}
	if target.OrganizationID != orgID {
		return ErrNotFound
	}
	if target.IsReserves {
		return ErrReservesLocked
	}
	if target.ParentID != "" {
		return ErrNestingTooDeep
	}
	// Stale parent references left behind by earlier cleanups are dropped
	// silently; the move itself already supersedes them.
	if p.ParentID != "" {
		if _, err := s.store.FindProject(ctx, p.ParentID); errors.Is(err, ErrNotFound) {
			if err := s.store.SetProjectParent(ctx, id, ""); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return s.store.SetProjectParent(ctx, id, targetParentID)
}

// Archive soft-deletes a project. The reserves project is protected.
func (s *Service) Archive(ctx context.Context, orgID, id string) error {
	return s.setArchived(ctx, orgID, id, true)
}

// Unarchive restores an archived project.
func (s *Service) Unarchive(ctx context.Context, orgID, id string) error {
	return s.setArchived(ctx, orgID, id, false)
}

func (s *Service) setArchived(ctx context.Context, orgID, id string, archived bool) error {
	p, err := s.store.FindProject(ctx, id)
	if err != nil {
		return err
	}
	if p.OrganizationID != orgID {
		return ErrNotFound
	}
	if p.IsReserves && archived {
		return ErrReservesLocked
	}
	return s.store.SetProjectArchived(ctx, id, archived)
}

// Rename changes the display name. Renaming the reserves project is fine:
// protection hangs off the IsReserves flag, not the name.
func (s *Service) Rename(ctx context.Context, orgID, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	p, err := s.store.FindProject(ctx, id)
	if err != nil {
		return err
	}
	if p.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.store.RenameProject(ctx, id, name)
}

// Get returns one project scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Project, error) {
	p, err := s.store.FindProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns the organization's projects.
func (s *Service) List(ctx context.Context, orgID string, includeArchived bool) ([]*Project, error) {
	return s.store.ListProjectsByOrg(ctx, orgID, includeArchived)
}
