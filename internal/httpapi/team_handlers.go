package httpapi

import (
	"net/http"
	"strings"

	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/org"
)

type createTeamRequest struct {
	Name string `json:"name" validate:"required"`
}

type membershipRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type teamProjectRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
}

func (a *API) handleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := principal(w, r)
		if !ok {
			return
		}
		teams, err := a.svc.Teams.List(r.Context(), p.OrganizationID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
	case http.MethodPost:
		p, ok := requireRole(w, r, org.RoleAdmin)
		if !ok {
			return
		}
		var req createTeamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.svc.Teams.Create(r.Context(), p.OrganizationID, req.Name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.create", map[string]any{
			"team_id": t.ID,
			"name":    t.Name,
		})
		w.Header().Set("Location", "/v1/teams/"+t.ID)
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/teams/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	teamID := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "members":
		a.setTeamMembership(w, r, teamID)
	case len(parts) == 3 && parts[1] == "members":
		a.removeTeamMembership(w, r, teamID, parts[2])
	case len(parts) == 2 && parts[1] == "projects":
		a.attachTeamProject(w, r, teamID)
	case len(parts) == 3 && parts[1] == "projects":
		a.detachTeamProject(w, r, teamID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) setTeamMembership(w http.ResponseWriter, r *http.Request, teamID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var req membershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, valid := org.ParseRole(req.Role)
	if !valid {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	if err := a.svc.Teams.SetMembership(r.Context(), p.OrganizationID, teamID, req.UserID, role); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.membership.set", map[string]any{
		"team_id":        teamID,
		"member_user_id": req.UserID,
		"role":           string(role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeTeamMembership(w http.ResponseWriter, r *http.Request, teamID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	if err := a.svc.Teams.RemoveMembership(r.Context(), p.OrganizationID, teamID, userID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) attachTeamProject(w http.ResponseWriter, r *http.Request, teamID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var req teamProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The project must exist in the caller's organization before it can be
	// shared with a team.
	if _, err := a.svc.Projects.Get(r.Context(), p.OrganizationID, req.ProjectID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.svc.Teams.AttachProject(r.Context(), p.OrganizationID, teamID, req.ProjectID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) detachTeamProject(w http.ResponseWriter, r *http.Request, teamID, projectID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	if err := a.svc.Teams.DetachProject(r.Context(), p.OrganizationID, teamID, projectID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
