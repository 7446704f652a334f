// Package auth validates session tokens and carries caller identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Role is the enumerated permission tag attached to every account.
type Role string

const (
	RoleAthlete Role = "athlete"
	RoleDoctor  Role = "doctor"
)

// ParseRole maps a raw claim value onto a known role.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleAthlete, RoleDoctor:
		return Role(value), true
	}
	return "", false
}

// Claims represents the payload extracted from a session JWT.
type Claims struct {
	Subject   string
	Role      Role
	ExpiresAt time.Time
}

// HasRole reports whether the claims carry one of the allowed roles.
func (c *Claims) HasRole(allowed ...Role) bool {
	if c == nil {
		return false
	}
	for _, role := range allowed {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// Parse validates a session JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	rawRole, _ := claims["role"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}

	role, ok := ParseRole(rawRole)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, rawRole)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return &Claims{
		Subject:   subject,
		Role:      role,
		ExpiresAt: exp.Time,
	}, nil
}
