package httpapi

import (
	"net/http"
	"strings"

	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/org"
	"kassenwerk.org/internal/project"
)

type createProjectRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID string `json:"parent_id"`
}

type moveProjectRequest struct {
	ParentID string `json:"parent_id"`
}

type renameProjectRequest struct {
	Name string `json:"name" validate:"required"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listProjects(w, r)
	case http.MethodPost:
		a.createProject(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// listProjects returns only the projects the caller may see: all of them for
// admins, the team-derived set for everyone else.
func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	all, err := a.svc.Projects.List(r.Context(), p.OrganizationID, includeArchived)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !p.IsAdmin() {
		accessible, err := a.svc.Access.AccessibleProjectIDs(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		visible := make([]*project.Project, 0, len(all))
		for _, pr := range all {
			if _, ok := accessible[pr.ID]; ok {
				visible = append(visible, pr)
			}
		}
		all = visible
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": all})
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.svc.Projects.Create(r.Context(), p.OrganizationID, req.Name, req.ParentID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.create", map[string]any{
		"project_id": created.ID,
		"name":       created.Name,
	})
	w.Header().Set("Location", "/v1/projects/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	if len(parts) == 1 {
		a.getProject(w, r, id)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "move":
		a.moveProject(w, r, id)
	case "rename":
		a.renameProject(w, r, id)
	case "archive":
		a.setProjectArchived(w, r, id, true)
	case "unarchive":
		a.setProjectArchived(w, r, id, false)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.svc.Access.CanAccessProject(r.Context(), p, id, org.RoleViewer); err != nil {
		handleDomainError(w, r, err)
		return
	}
	pr, err := a.svc.Projects.Get(r.Context(), p.OrganizationID, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (a *API) moveProject(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var req moveProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Projects.Move(r.Context(), p.OrganizationID, id, req.ParentID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.move", map[string]any{
		"project_id": id,
		"parent_id":  req.ParentID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) renameProject(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.svc.Access.CanAccessProject(r.Context(), p, id, org.RoleEditor); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req renameProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Projects.Rename(r.Context(), p.OrganizationID, id, req.Name); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setProjectArchived(w http.ResponseWriter, r *http.Request, id string, archived bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var err error
	if archived {
		err = a.svc.Projects.Archive(r.Context(), p.OrganizationID, id)
	} else {
		err = a.svc.Projects.Unarchive(r.Context(), p.OrganizationID, id)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.archive", map[string]any{
		"project_id": id,
		"archived":   archived,
	})
	w.WriteHeader(http.StatusNoContent)
}
