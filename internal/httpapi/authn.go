package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"kassenwerk.org/internal/access"
	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/org"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/join",
	"/v1/auth/login",
	"/v1/billing/webhook",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// Shared-link endpoints serve external submitters without an account.
var publicPrefixes = []string{
	"/v1/shared/",
}

// Authenticated paths that stay reachable with an expired trial, so the
// organization can still see and fix its subscription.
var billingExemptPrefixes = []string{
	"/v1/billing/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		principal, err := a.svc.Tokens.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		if a.svc.Billing != nil && !isBillingExempt(r.URL.Path) {
			if err := a.svc.Billing.CheckAccess(r.Context(), principal.OrganizationID); err != nil {
				handleDomainError(w, r, err)
				return
			}
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principal pulls the authenticated principal; withAuth guarantees it exists
// on protected routes.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

// requireRole gates a handler on the organization-wide role.
func requireRole(w http.ResponseWriter, r *http.Request, min org.Role) (auth.Principal, bool) {
	p, ok := principal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if err := access.RequireRole(p, min); err != nil {
		writeError(w, r, http.StatusForbidden, "access denied")
		return auth.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isBillingExempt(path string) bool {
	for _, prefix := range billingExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
