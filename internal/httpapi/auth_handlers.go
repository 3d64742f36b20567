package httpapi

import (
	"errors"
	"net/http"
	"time"

	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/org"
)

type registerRequest struct {
	OrganizationName string `json:"organization_name" validate:"required"`
	Domain           string `json:"domain" validate:"required,fqdn"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=10"`
}

type joinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=10"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *org.User `json:"user"`
}

// handleRegister bootstraps a fresh organization: the org record, its
// protected reserves project, the creator as admin and the trial window, then
// hands back a token.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}
	o, u, err := a.svc.Orgs.Bootstrap(r.Context(), req.OrganizationName, req.Domain, req.Email, hash)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if _, err := a.svc.Billing.StartTrial(r.Context(), o.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.register", map[string]any{
		"organization_id": o.ID,
		"domain":          o.Domain,
	})
	token, exp, err := a.svc.Tokens.Generate(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"organization": o,
		"token":        token,
		"expires_at":   exp,
		"user":         u,
	})
}

// handleJoin lets a user self-register into the organization matching their
// email domain, entering as viewer.
func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "join failed")
		return
	}
	u, err := a.svc.Orgs.Join(r.Context(), req.Email, hash)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.join", map[string]any{
		"organization_id": u.OrganizationID,
		"joined_user_id":  u.ID,
	})
	token, exp, err := a.svc.Tokens.Generate(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "join failed")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.svc.Orgs.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, org.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, exp, err := a.svc.Tokens.Generate(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}
