package httpapi

import (
	"net/http"
	"strings"

	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/org"
)

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type bankDetailsRequest struct {
	IBAN          string `json:"iban"`
	BIC           string `json:"bic"`
	AccountHolder string `json:"account_holder"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	users, err := a.svc.Orgs.Members(r.Context(), p.OrganizationID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, valid := org.ParseRole(req.Role)
	if !valid {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	userID := parts[0]
	// Scope check: the target must belong to the caller's organization.
	target, err := a.findOrgUser(r, p.OrganizationID, userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.svc.Orgs.UpdateUserRole(r.Context(), target.ID, role); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role.update", map[string]any{
		"target_user_id": target.ID,
		"role":           string(role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMyBank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req bankDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.IBAN) == "" || strings.TrimSpace(req.AccountHolder) == "" {
		writeError(w, r, http.StatusBadRequest, "iban and account_holder are required")
		return
	}
	bank := org.BankDetails{IBAN: req.IBAN, BIC: req.BIC, AccountHolder: req.AccountHolder}
	if err := a.svc.Orgs.UpdateUserBank(r.Context(), p.UserID, bank); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// findOrgUser loads a user and hides users of other organizations behind
// not-found.
func (a *API) findOrgUser(r *http.Request, orgID, userID string) (*org.User, error) {
	users, err := a.svc.Orgs.Members(r.Context(), orgID)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, org.ErrNotFound
}
