// Package auth issues and verifies the bearer tokens that identify the
// current user, and carries the resolved principal through request contexts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kassenwerk.org/internal/org"
)

const issuer = "kassenwerk"

// Principal is the resolved current user attached to every authenticated
// request. Handlers never see a nil principal: requests without one are
// rejected by the middleware before any domain code runs.
type Principal struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           org.Role
}

// IsAdmin reports whether the principal holds the organization-wide admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == org.RoleAdmin
}

// Claims are the JWT claims minted for a session.
type Claims struct {
	OrganizationID string `json:"org"`
	Role           string `json:"role"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens mints and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens constructs a token codec. The secret must be non-empty.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (t *Tokens) WithClock(fn func() time.Time) *Tokens {
	if fn != nil {
		t.now = fn
	}
	return t
}

// Generate signs a session token for the given user.
func (t *Tokens) Generate(u *org.User) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := Claims{
		OrganizationID: u.OrganizationID,
		Role:           string(u.Role),
		Email:          u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify validates the token and returns the principal it encodes.
func (t *Tokens) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	role, ok := org.ParseRole(claims.Role)
	if !ok || claims.Subject == "" || claims.OrganizationID == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
		Role:           role,
	}, nil
}
