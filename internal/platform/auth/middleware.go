package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

const defaultSessionTTL = 24 * time.Hour

var (
	// ErrTokenExpired signals that the session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the session token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// SessionClaims is the JWT payload of a customer or admin session.
type SessionClaims struct {
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// SessionAuthenticator issues and verifies HS256 session tokens and
// exposes the HTTP middleware that enforces them.
type SessionAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// SessionOption customises SessionAuthenticator behaviour.
type SessionOption func(*SessionAuthenticator)

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(d time.Duration) SessionOption {
	return func(a *SessionAuthenticator) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithSessionClock injects a custom clock, primarily for tests.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(a *SessionAuthenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewSessionAuthenticator constructs an authenticator over the shared
// signing secret.
func NewSessionAuthenticator(secret, issuer string, opts ...SessionOption) (*SessionAuthenticator, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("auth: session secret is required")
	}
	a := &SessionAuthenticator{
		secret: []byte(trimmed),
		issuer: strings.TrimSpace(issuer),
		ttl:    defaultSessionTTL,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Issue signs a session token for the identity.
func (a *SessionAuthenticator) Issue(identity Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	now := a.clock().UTC()
	expiresAt := now.Add(a.ttl)
	claims := SessionClaims{
		Email:  identity.Email,
		Role:   identity.Role,
		Locale: identity.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses the token and returns the embedded identity. The
// parser only checks the signature; time claims are validated against
// the authenticator's clock.
func (a *SessionAuthenticator) Verify(tokenStr string) (Identity, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	now := a.clock().UTC()
	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	if now.After(claims.ExpiresAt.Time) {
		return Identity{}, ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return Identity{}, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return Identity{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	role := normaliseRole(claims.Role)
	if role == "" {
		role = RoleCustomer
	}
	return Identity{
		UserID: claims.Subject,
		Email:  strings.TrimSpace(claims.Email),
		Role:   role,
		Locale: strings.TrimSpace(claims.Locale),
	}, nil
}

// RequireSession verifies the Authorization bearer token and ensures
// the session carries one of the allowed roles.
func (a *SessionAuthenticator) RequireSession(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := a.Verify(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[identity.Role]; !ok {
					respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &identity)))
		})
	}
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "session token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "session token invalid")
	}
}
